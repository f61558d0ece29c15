package pool

import (
	"errors"
	"sync/atomic"
	"testing"
)

// lifecycleAllocator 每个生命周期回调都会累加计数
type lifecycleAllocator struct {
	count          atomic.Int64
	failDeallocate bool
}

func (a *lifecycleAllocator) Allocate() (bool, error) {
	a.count.Add(1)
	return true, nil
}

func (a *lifecycleAllocator) AllocateForReuse(bool) error {
	a.count.Add(1)
	return nil
}

func (a *lifecycleAllocator) DeallocateForReuse(bool) error {
	a.count.Add(1)
	return nil
}

func (a *lifecycleAllocator) Deallocate(bool) error {
	a.count.Add(1)
	if a.failDeallocate {
		return errors.New("deallocation fail")
	}
	return nil
}

// runLifecycleRound 执行 claim; release; claim; invalidate 一轮，
// 校验同步回调计数与异步销毁后的计数
func runLifecycleRound(t *testing.T, p *Pool[bool], alloc *lifecycleAllocator, syncWant, asyncWant int64) {
	t.Helper()

	h, err := p.Claim()
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	h, err = p.Claim()
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if got := alloc.count.Load(); got != syncWant {
		t.Fatalf("lifecycle count = %d before invalidate, want %d", got, syncWant)
	}
	if err := h.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	waitFor(t, "asynchronous deallocate", func() bool {
		return alloc.count.Load() == asyncWant
	})
	waitFor(t, "allocated to drop to zero", func() bool {
		return p.GetPoolMetrics().CurrentlyAllocated == 0
	})
}

func TestObjectLifecycle(t *testing.T) {
	alloc := &lifecycleAllocator{}
	p, err := New(Config[bool]{MaxPoolsize: 1}, alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// allocate; deallocateForReuse; allocateForReuse; 之后异步 deallocate
	runLifecycleRound(t, p, alloc, 3, 4)
	runLifecycleRound(t, p, alloc, 7, 8)
}

func TestDeallocationFailureDoesNotLeak(t *testing.T) {
	alloc := &lifecycleAllocator{failDeallocate: true}
	p, err := New(Config[bool]{MaxPoolsize: 1}, alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runLifecycleRound(t, p, alloc, 3, 4)
	runLifecycleRound(t, p, alloc, 7, 8)

	// 名额没有泄漏，仍然可以继续借出
	h, err := p.Claim()
	if err != nil {
		t.Fatalf("claim after failing deallocations: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestActivationFailureDestroysAndRetries(t *testing.T) {
	var allocated, activated atomic.Int64
	alloc := FuncAllocator[int]{
		AllocateFunc: func() (int, error) {
			return int(allocated.Add(1)), nil
		},
		AllocateForReuseFunc: func(int) error {
			activated.Add(1)
			return errors.New("reset fail")
		},
	}
	p, err := New(Config[int]{MaxPoolsize: 1}, alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.Claim()
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	// 激活失败的空闲对象被销毁，借出重新分配一个新对象
	h, err = p.Claim()
	if err != nil {
		t.Fatalf("claim after activation failure: %v", err)
	}
	if activated.Load() != 1 {
		t.Fatalf("activation attempts = %d, want 1", activated.Load())
	}
	if h.Object() != 2 {
		t.Fatalf("claim returned object %d, want freshly allocated 2", h.Object())
	}
	if m := p.GetPoolMetrics(); m.TotalAllocated != 2 || m.CurrentlyAllocated != 1 {
		t.Fatalf("unexpected metrics: %v", m)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestPassivationFailureDestroysHandle(t *testing.T) {
	var allocated atomic.Int64
	var deallocated atomic.Int64
	alloc := FuncAllocator[int]{
		AllocateFunc: func() (int, error) {
			return int(allocated.Add(1)), nil
		},
		DeallocateForReuseFunc: func(int) error {
			return errors.New("flush fail")
		},
		DeallocateFunc: func(int) error {
			deallocated.Add(1)
			return nil
		},
	}
	p, err := New(Config[int]{MaxPoolsize: 1}, alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.Claim()
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	waitFor(t, "destroyed handle to be deallocated", func() bool {
		return deallocated.Load() == 1
	})
	if m := p.GetPoolMetrics(); m.CurrentlyAllocated != 0 {
		t.Fatalf("CurrentlyAllocated = %d after passivation failure, want 0", m.CurrentlyAllocated)
	}

	// 名额已经释放，下一次借出重新分配
	h, err = p.Claim()
	if err != nil {
		t.Fatalf("claim after passivation failure: %v", err)
	}
	if h.Object() != 2 {
		t.Fatalf("claim returned object %d, want freshly allocated 2", h.Object())
	}
}

func TestPanickingCallbacksAreContained(t *testing.T) {
	alloc := FuncAllocator[string]{
		AllocateFunc: func() (string, error) { return "x", nil },
		DeallocateFunc: func(string) error {
			panic("deallocate blew up")
		},
	}
	p, err := New(Config[string]{MaxPoolsize: 1}, alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.Claim()
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	waitFor(t, "slot to be reclaimed despite panic", func() bool {
		return p.GetPoolMetrics().CurrentlyAllocated == 0
	})
	if _, err := p.Claim(); err != nil {
		t.Fatalf("claim after panicking deallocate: %v", err)
	}
}
