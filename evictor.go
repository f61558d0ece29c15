package pool

import (
	"time"
)

const defaultEvictionInterval = time.Second

// maybeStartEvictorLocked 配置了淘汰策略的池在第一次出现空闲对象时
// 才启动后台淘汰任务
// Assumes p.mu is locked
func (p *Pool[T]) maybeStartEvictorLocked() {
	if p.policy == nil || p.evictor != nil || p.state != stateRunning {
		return
	}
	p.log.Debug("starting eviction worker")
	p.evictor = p.factory(p.evictLoop)
}

// evictLoop separate background task for sweeping idle poolables
func (p *Pool[T]) evictLoop() {
	for {
		delay := p.policy.NextCheckDelay()
		if delay <= 0 {
			delay = defaultEvictionInterval
		}
		t := time.NewTimer(delay)
		select {
		case <-p.evictorStop:
			t.Stop()
			p.log.Debug("eviction worker stopped")
			return
		case <-t.C:
		}
		p.sweep()
	}
}

type evictCandidate[T any] struct {
	h    *Poolable[T]
	meta HandleMetadata
}

// sweep 从最久未用的一端扫描空闲集合，策略在锁外求值；
// 策略本身出错时按淘汰处理，扫描后按需补足核心数量
func (p *Pool[T]) sweep() {
	now := time.Now()

	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return
	}
	candidates := make([]evictCandidate[T], 0, len(p.idle))
	for _, h := range p.idle {
		candidates = append(candidates, evictCandidate[T]{h: h, meta: h.metadataLocked()})
	}
	p.mu.Unlock()

	for _, c := range candidates {
		evict, err := p.safeShouldEvict(c.meta, now)
		if err != nil {
			p.log.WithFields(logrusFields(c.h.id, err)).Warn("expiration policy failed, destroying poolable")
			evict = true
		}
		if !evict {
			continue
		}

		p.mu.Lock()
		if p.state != stateRunning || c.h.state != handleIdle {
			p.mu.Unlock()
			continue
		}
		p.removeIdleLocked(c.h)
		c.h.state = handleDestroyed
		p.mu.Unlock()

		p.safeDeallocate(c.h)

		p.mu.Lock()
		p.releaseSlotLocked(false)
		p.mu.Unlock()
	}

	p.mu.Lock()
	if p.state == stateRunning && p.allocated < p.coreSize {
		p.fillCoreLocked()
	}
	p.mu.Unlock()
}

// Assumes p.mu is locked
func (p *Pool[T]) removeIdleLocked(h *Poolable[T]) {
	for i, q := range p.idle {
		if q == h {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}
