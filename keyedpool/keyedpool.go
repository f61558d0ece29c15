// Package keyedpool 在核心对象池外包一层按 key 分片的映射，
// 每个 key 懒创建一个独立的子池。
package keyedpool

import (
	"errors"
	"sync"
	"time"

	pool "github.com/rahulbhawsar/generic-object-pool"
)

// ErrClosed 分片池已经关闭Error
var ErrClosed = errors.New("keyed pool is closed")

// KeyedPool 按 key 分片的对象池，每个子池各自持有 Config 的名额
type KeyedPool[K comparable, T any] struct {
	mu     sync.RWMutex
	pools  map[K]*pool.Pool[T]
	cfg    pool.Config[T]
	alloc  func(key K) pool.Allocator[T]
	closed bool
	done   chan struct{}
}

// New 初始化分片池，alloc 为每个 key 生成对应的 Allocator
func New[K comparable, T any](cfg pool.Config[T], alloc func(key K) pool.Allocator[T]) (*KeyedPool[K, T], error) {
	if alloc == nil {
		return nil, errors.New("invalid allocator factory settings")
	}
	if cfg.MaxPoolsize < 1 {
		return nil, errors.New("invalid max poolsize settings")
	}
	return &KeyedPool[K, T]{
		pools: make(map[K]*pool.Pool[T]),
		cfg:   cfg,
		alloc: alloc,
		done:  make(chan struct{}),
	}, nil
}

// getPool 获取 key 对应的子池，不存在则创建
func (kp *KeyedPool[K, T]) getPool(key K) (*pool.Pool[T], error) {
	kp.mu.RLock()
	if kp.closed {
		kp.mu.RUnlock()
		return nil, ErrClosed
	}
	if p, exist := kp.pools[key]; exist {
		kp.mu.RUnlock()
		return p, nil
	}
	kp.mu.RUnlock()

	kp.mu.Lock()
	defer kp.mu.Unlock()
	if kp.closed {
		return nil, ErrClosed
	}
	if p, exist := kp.pools[key]; exist {
		return p, nil
	}
	p, err := pool.New(kp.cfg, kp.alloc(key))
	if err != nil {
		return nil, err
	}
	kp.pools[key] = p
	return p, nil
}

// Claim 从 key 对应的子池借出一个对象
func (kp *KeyedPool[K, T]) Claim(key K) (*pool.Poolable[T], error) {
	p, err := kp.getPool(key)
	if err != nil {
		return nil, err
	}
	return p.Claim()
}

// ClaimWithTimeout 同 Claim，等待超时返回 (nil, nil)
func (kp *KeyedPool[K, T]) ClaimWithTimeout(key K, timeout time.Duration) (*pool.Poolable[T], error) {
	p, err := kp.getPool(key)
	if err != nil {
		return nil, err
	}
	return p.ClaimWithTimeout(timeout)
}

// GetPoolMetrics 返回 key 对应子池的快照，key 不存在时计数全为零，
// CorePoolsize/MaxPoolsize 取自配置
func (kp *KeyedPool[K, T]) GetPoolMetrics(key K) pool.PoolMetrics {
	kp.mu.RLock()
	p, exist := kp.pools[key]
	kp.mu.RUnlock()
	if !exist {
		return pool.PoolMetrics{
			CorePoolsize: kp.cfg.CorePoolsize,
			MaxPoolsize:  kp.cfg.MaxPoolsize,
		}
	}
	return p.GetPoolMetrics()
}

// Shutdown 关闭全部子池，所有子池终止后发出完成信号。
// 重复调用返回同一个完成信号
func (kp *KeyedPool[K, T]) Shutdown() <-chan struct{} {
	kp.mu.Lock()
	if kp.closed {
		done := kp.done
		kp.mu.Unlock()
		return done
	}
	kp.closed = true
	pools := make([]*pool.Pool[T], 0, len(kp.pools))
	for _, p := range kp.pools {
		pools = append(pools, p)
	}
	done := kp.done
	kp.mu.Unlock()

	go func() {
		for _, p := range pools {
			<-p.Shutdown()
		}
		close(done)
	}()
	return done
}
