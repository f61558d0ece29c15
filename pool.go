// Package pool 实现一个进程内的泛型对象池：有上界、并发安全，
// 通过缓存空闲对象摊薄昂贵资源（连接、会话、加密上下文等）的构造成本。
package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolNotRunning 对象池已经关闭或正在关闭Error
	ErrPoolNotRunning = errors.New("pool is not running")
	// ErrAllocationFailed 分配新对象失败
	ErrAllocationFailed = errors.New("allocation failed")
	// ErrInterrupted 等待期间被取消
	ErrInterrupted = errors.New("claim interrupted")
)

type poolState int

const (
	stateRunning poolState = iota
	stateShuttingDown
	stateTerminated
)

// Config 对象池相关配置
type Config[T any] struct {
	// 最大并发存活对象数，必填且 >= 1
	MaxPoolsize int
	// 运行期间维持的最小存活对象数，0 <= CorePoolsize <= MaxPoolsize
	CorePoolsize int
	// 空闲对象淘汰策略，为 nil 时不启动淘汰任务
	ExpirationPolicy ExpirationPolicy
	// 后台任务的创建方式，默认每任务一个 goroutine
	WorkerFactory WorkerFactory
	// 回调失败与生命周期事件的日志出口，默认 logrus.StandardLogger
	Logger *logrus.Logger
}

// handoff 递给排队等待者的消息，h 为 nil 表示名额空出需要重新尝试
type handoff[T any] struct {
	h *Poolable[T]
}

type waiter[T any] struct {
	ch chan handoff[T]
}

// Pool 存放对象池状态
type Pool[T any] struct {
	mu sync.Mutex

	alloc   Allocator[T]
	policy  ExpirationPolicy
	factory WorkerFactory
	log     *logrus.Logger

	maxSize  int
	coreSize int

	// 空闲集合，队首最久未用，队尾最近归还
	idle    []*Poolable[T]
	claimed map[uint64]*Poolable[T]
	waiters []*waiter[T]

	// allocated 包含已预留但尚未完成分配的名额
	allocated      int
	totalAllocated uint64
	totalClaimed   uint64

	nextID uint64
	state  poolState

	evictor     Worker
	evictorStop chan struct{}

	done chan struct{}
}

// New 初始化对象池，CorePoolsize > 0 时异步预热
func New[T any](cfg Config[T], alloc Allocator[T]) (*Pool[T], error) {
	if alloc == nil {
		return nil, errors.New("invalid allocator settings")
	}
	if cfg.MaxPoolsize < 1 {
		return nil, errors.New("invalid max poolsize settings")
	}
	if cfg.CorePoolsize < 0 || cfg.CorePoolsize > cfg.MaxPoolsize {
		return nil, errors.New("invalid core poolsize settings")
	}

	p := &Pool[T]{
		alloc:       alloc,
		policy:      cfg.ExpirationPolicy,
		factory:     cfg.WorkerFactory,
		log:         cfg.Logger,
		maxSize:     cfg.MaxPoolsize,
		coreSize:    cfg.CorePoolsize,
		claimed:     make(map[uint64]*Poolable[T]),
		evictorStop: make(chan struct{}),
		done:        make(chan struct{}),
	}
	if p.factory == nil {
		p.factory = GoWorker
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}

	if p.coreSize > 0 {
		p.mu.Lock()
		p.fillCoreLocked()
		p.mu.Unlock()
	}

	return p, nil
}

// newHandleLocked 创建包装，分配单调递增的 id
// Assumes p.mu is locked
func (p *Pool[T]) newHandleLocked(obj T) *Poolable[T] {
	p.nextID++
	return &Poolable[T]{
		pool:      p,
		obj:       obj,
		id:        p.nextID,
		createdAt: time.Now(),
		state:     handleAllocating,
	}
}

// wakeHeadLocked 唤醒队首等待者，一次只唤醒一个
// Assumes p.mu is locked
func (p *Pool[T]) wakeHeadLocked(h *Poolable[T]) bool {
	l := len(p.waiters)
	if l == 0 {
		return false
	}
	w := p.waiters[0]
	copy(p.waiters, p.waiters[1:])
	p.waiters = p.waiters[:l-1]
	w.ch <- handoff[T]{h: h}
	return true
}

// releaseSlotLocked 归还一个名额：运行中优先唤醒等待者，
// 否则按需补足核心数量；关闭过程中检查是否可以终止
// Assumes p.mu is locked
func (p *Pool[T]) releaseSlotLocked(refill bool) {
	p.allocated--
	switch p.state {
	case stateRunning:
		if p.wakeHeadLocked(nil) {
			return
		}
		if refill && p.allocated < p.coreSize {
			p.fillCoreLocked()
		}
	case stateShuttingDown:
		p.maybeTerminateLocked()
	}
}

// fillCoreLocked 为核心数量的缺口预留名额并异步补足
// Assumes p.mu is locked
func (p *Pool[T]) fillCoreLocked() {
	for p.allocated < p.coreSize {
		p.allocated++
		go p.fillOne()
	}
}

// fillOne 补足一个核心对象，失败时只记录日志不再重试
func (p *Pool[T]) fillOne() {
	obj, err := p.safeAllocate()
	if err != nil {
		p.log.WithField("error", err).Warn("core fill allocation failed")
		p.mu.Lock()
		p.allocated--
		p.maybeTerminateLocked()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	if p.state != stateRunning {
		p.allocated--
		p.maybeTerminateLocked()
		p.mu.Unlock()
		p.safeDeallocateObj(0, obj)
		return
	}
	h := p.newHandleLocked(obj)
	p.totalAllocated++
	if len(p.waiters) > 0 {
		h.state = handleClaimed
		p.claimed[h.id] = h
		p.wakeHeadLocked(h)
	} else {
		h.state = handleIdle
		p.idle = append(p.idle, h)
		p.maybeStartEvictorLocked()
	}
	p.mu.Unlock()
}

// Shutdown 发起优雅关闭：拒绝新的借出，唤醒全部等待者，
// 销毁空闲对象并等待借出中的对象归还。重复调用返回同一个完成信号
func (p *Pool[T]) Shutdown() <-chan struct{} {
	p.mu.Lock()
	if p.state != stateRunning {
		done := p.done
		p.mu.Unlock()
		return done
	}
	p.state = stateShuttingDown
	close(p.evictorStop)
	idle := p.idle
	p.idle = nil
	for _, h := range idle {
		h.state = handleDestroyed
	}
	waiters := p.waiters
	p.waiters = nil
	claimed := len(p.claimed)
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"idle":    len(idle),
		"claimed": claimed,
		"waiting": len(waiters),
	}).Info("pool shutting down")

	for _, w := range waiters {
		w.ch <- handoff[T]{}
	}

	go func() {
		for _, h := range idle {
			p.safeDeallocate(h)
			p.mu.Lock()
			p.allocated--
			p.mu.Unlock()
		}
		p.mu.Lock()
		p.maybeTerminateLocked()
		p.mu.Unlock()
	}()

	return p.done
}

// maybeTerminateLocked 所有名额归零后进入终态，
// 等淘汰任务退出再发出完成信号
// Assumes p.mu is locked
func (p *Pool[T]) maybeTerminateLocked() {
	if p.state != stateShuttingDown || p.allocated != 0 {
		return
	}
	p.state = stateTerminated
	p.claimed = make(map[uint64]*Poolable[T])
	ev := p.evictor
	done := p.done
	log := p.log
	go func() {
		if ev != nil {
			ev.Join()
		}
		log.Info("pool terminated")
		close(done)
	}()
}
