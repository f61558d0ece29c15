package pool

import (
	"errors"
	"time"
)

// ReleasePoolableObject 将对象归还池中，等价于 h.Release()
func (p *Pool[T]) ReleasePoolableObject(h *Poolable[T]) error {
	if h == nil {
		return errors.New("poolable is nil, rejecting")
	}
	p.mu.Lock()
	if h.state != handleClaimed {
		// 已经归还或销毁过
		p.mu.Unlock()
		return nil
	}
	if p.state != stateRunning {
		// 关闭过程中归还的对象直接销毁
		p.destroyLocked(h, false)
		return nil
	}
	h.state = handleReleasing
	p.mu.Unlock()

	err := p.safeDeallocateForReuse(h)

	p.mu.Lock()
	if err != nil {
		p.log.WithFields(logrusFields(h.id, err)).Warn("passivation failed, destroying poolable")
		p.destroyLocked(h, true)
		return nil
	}
	if p.state != stateRunning {
		p.destroyLocked(h, false)
		return nil
	}
	h.lastReleasedAt = time.Now()
	if len(p.waiters) > 0 {
		// 直接递给队首等待者，不经过空闲集合，防止新来的借出插队
		h.state = handleClaimed
		p.wakeHeadLocked(h)
		p.mu.Unlock()
		return nil
	}
	delete(p.claimed, h.id)
	h.state = handleIdle
	p.idle = append(p.idle, h)
	p.maybeStartEvictorLocked()
	p.mu.Unlock()
	return nil
}

// invalidate 销毁借出中的对象并释放名额，销毁回调异步执行
func (p *Pool[T]) invalidate(h *Poolable[T]) error {
	p.mu.Lock()
	if h.state != handleClaimed {
		p.mu.Unlock()
		return nil
	}
	delete(p.claimed, h.id)
	h.state = handleDestroyed
	p.mu.Unlock()

	go func() {
		p.safeDeallocate(h)
		p.mu.Lock()
		p.releaseSlotLocked(true)
		p.mu.Unlock()
	}()
	return nil
}

// destroyLocked 销毁对象并释放名额，锁内进入、锁内退出后已解锁
// Assumes p.mu is locked; unlocks before returning
func (p *Pool[T]) destroyLocked(h *Poolable[T], refill bool) {
	delete(p.claimed, h.id)
	h.state = handleDestroyed
	p.mu.Unlock()
	p.safeDeallocate(h)
	p.mu.Lock()
	p.releaseSlotLocked(refill)
	p.mu.Unlock()
}
