package pool

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// 用户回调一律在锁外执行，panic 统一转为 error，
// 失败的休眠/销毁/策略回调不向调用方传播

func logrusFields(id uint64, err error) logrus.Fields {
	return logrus.Fields{"poolable": id, "error": err}
}

func (p *Pool[T]) safeAllocate() (obj T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("allocate panic: %v", r)
		}
	}()
	return p.alloc.Allocate()
}

func (p *Pool[T]) safeAllocateForReuse(h *Poolable[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("allocateForReuse panic: %v", r)
		}
	}()
	return p.alloc.AllocateForReuse(h.obj)
}

func (p *Pool[T]) safeDeallocateForReuse(h *Poolable[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deallocateForReuse panic: %v", r)
		}
	}()
	return p.alloc.DeallocateForReuse(h.obj)
}

func (p *Pool[T]) safeDeallocate(h *Poolable[T]) {
	p.safeDeallocateObj(h.id, h.obj)
}

func (p *Pool[T]) safeDeallocateObj(id uint64, obj T) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{"poolable": id, "panic": r}).Warn("deallocate panicked")
		}
	}()
	if err := p.alloc.Deallocate(obj); err != nil {
		p.log.WithFields(logrusFields(id, err)).Warn("deallocate failed")
	}
}

func (p *Pool[T]) safeShouldEvict(meta HandleMetadata, now time.Time) (evict bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shouldEvict panic: %v", r)
		}
	}()
	return p.policy.ShouldEvict(meta, now), nil
}
