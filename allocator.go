package pool

// Allocator 管理池内对象的完整生命周期
type Allocator[T any] interface {
	// Allocate 创建一个可直接使用的新对象
	Allocate() (T, error)

	// AllocateForReuse 在对象再次借出前将其恢复为可用状态
	AllocateForReuse(obj T) error

	// DeallocateForReuse 在对象归还后、进入空闲集合前将其置为休眠状态
	DeallocateForReuse(obj T) error

	// Deallocate 彻底释放对象占用的资源
	Deallocate(obj T) error
}

// BaseAllocator 内嵌后只需实现 Allocate
type BaseAllocator[T any] struct{}

func (BaseAllocator[T]) AllocateForReuse(T) error { return nil }

func (BaseAllocator[T]) DeallocateForReuse(T) error { return nil }

func (BaseAllocator[T]) Deallocate(T) error { return nil }

// FuncAllocator 以函数字段的方式配置生命周期回调，未设置的字段视为无操作
type FuncAllocator[T any] struct {
	AllocateFunc           func() (T, error)
	AllocateForReuseFunc   func(T) error
	DeallocateForReuseFunc func(T) error
	DeallocateFunc         func(T) error
}

func (a FuncAllocator[T]) Allocate() (T, error) {
	return a.AllocateFunc()
}

func (a FuncAllocator[T]) AllocateForReuse(obj T) error {
	if a.AllocateForReuseFunc == nil {
		return nil
	}
	return a.AllocateForReuseFunc(obj)
}

func (a FuncAllocator[T]) DeallocateForReuse(obj T) error {
	if a.DeallocateForReuseFunc == nil {
		return nil
	}
	return a.DeallocateForReuseFunc(obj)
}

func (a FuncAllocator[T]) Deallocate(obj T) error {
	if a.DeallocateFunc == nil {
		return nil
	}
	return a.DeallocateFunc(obj)
}
