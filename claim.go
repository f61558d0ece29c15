package pool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Claim 从池中借出一个对象，无可用对象时阻塞直到有对象或池关闭
func (p *Pool[T]) Claim() (*Poolable[T], error) {
	return p.ClaimContext(context.Background())
}

// ClaimWithTimeout 同 Claim，等待超时返回 (nil, nil)
func (p *Pool[T]) ClaimWithTimeout(timeout time.Duration) (*Poolable[T], error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	h, err := p.ClaimContext(ctx)
	if err != nil && errors.Is(err, ErrInterrupted) && ctx.Err() == context.DeadlineExceeded {
		return nil, nil
	}
	return h, err
}

// ClaimContext 同 Claim，ctx 取消时返回 ErrInterrupted
func (p *Pool[T]) ClaimContext(ctx context.Context) (*Poolable[T], error) {
	retried := false
	for {
		p.mu.Lock()
		if p.state != stateRunning {
			p.mu.Unlock()
			return nil, ErrPoolNotRunning
		}

		// 优先复用最近归还的空闲对象
		if n := len(p.idle); n > 0 {
			h := p.idle[n-1]
			p.idle = p.idle[:n-1]
			h.state = handleClaimed
			p.claimed[h.id] = h
			first := h.claimCount == 0
			p.mu.Unlock()
			if first || p.activate(h) {
				return p.finishClaim(h), nil
			}
			continue
		}

		if p.allocated < p.maxSize {
			// 分配耗时较长，采用乐观策略，先占用名额，失败后再释放
			p.allocated++
			p.mu.Unlock()
			obj, err := p.safeAllocate()
			if err != nil {
				p.mu.Lock()
				p.releaseSlotLocked(false)
				p.mu.Unlock()
				return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
			}
			p.mu.Lock()
			h := p.newHandleLocked(obj)
			h.state = handleClaimed
			p.claimed[h.id] = h
			p.totalAllocated++
			p.mu.Unlock()
			return p.finishClaim(h), nil
		}

		// 池已满，排队等待归还或名额空出
		w := &waiter[T]{ch: make(chan handoff[T], 1)}
		if retried {
			// 因名额空出被唤醒却没抢到的等待者回到队首
			p.waiters = append([]*waiter[T]{w}, p.waiters...)
		} else {
			p.waiters = append(p.waiters, w)
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.abandonWait(w)
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		case got := <-w.ch:
			if got.h == nil {
				retried = true
				continue
			}
			h := got.h
			if h.claimCount == 0 || p.activate(h) {
				return p.finishClaim(h), nil
			}
			retried = true
			continue
		}
	}
}

// finishClaim 借出成功后的统一记账
func (p *Pool[T]) finishClaim(h *Poolable[T]) *Poolable[T] {
	p.mu.Lock()
	h.claimCount++
	h.lastClaimedAt = time.Now()
	p.totalClaimed++
	p.mu.Unlock()
	return h
}

// activate 借出前激活对象，失败则销毁并释放名额
func (p *Pool[T]) activate(h *Poolable[T]) bool {
	err := p.safeAllocateForReuse(h)
	if err == nil {
		return true
	}
	p.log.WithFields(logrusFields(h.id, err)).Warn("activation failed, destroying poolable")
	p.mu.Lock()
	delete(p.claimed, h.id)
	h.state = handleDestroyed
	p.mu.Unlock()
	p.safeDeallocate(h)
	p.mu.Lock()
	p.releaseSlotLocked(true)
	p.mu.Unlock()
	return false
}

// abandonWait 超时或取消时退出队列；
// 如果已经被并发递到了对象，代为归还，不能泄漏
func (p *Pool[T]) abandonWait(w *waiter[T]) {
	p.mu.Lock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// 已出队的等待者必然恰好收到一条消息
	got := <-w.ch
	if got.h != nil {
		p.returnHandoff(got.h)
		return
	}
	p.mu.Lock()
	if p.state == stateRunning {
		p.wakeHeadLocked(nil)
	}
	p.mu.Unlock()
}

// returnHandoff 把递交途中被放弃的对象放回池中，
// 对象在上次归还时已经休眠，不再重复休眠
func (p *Pool[T]) returnHandoff(h *Poolable[T]) {
	p.mu.Lock()
	if p.state != stateRunning {
		delete(p.claimed, h.id)
		h.state = handleDestroyed
		p.mu.Unlock()
		p.safeDeallocate(h)
		p.mu.Lock()
		p.releaseSlotLocked(false)
		p.mu.Unlock()
		return
	}
	if p.wakeHeadLocked(h) {
		p.mu.Unlock()
		return
	}
	delete(p.claimed, h.id)
	h.state = handleIdle
	p.idle = append(p.idle, h)
	p.maybeStartEvictorLocked()
	p.mu.Unlock()
}
