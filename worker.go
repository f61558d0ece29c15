package pool

// Worker 池的后台任务句柄
type Worker interface {
	// Join 阻塞直到任务退出
	Join()
}

// WorkerFactory 创建并立即启动一个后台任务
type WorkerFactory func(run func()) Worker

type goWorker struct {
	done chan struct{}
}

// GoWorker 默认实现，每个任务一个 goroutine
func GoWorker(run func()) Worker {
	w := &goWorker{done: make(chan struct{})}
	go func() {
		defer close(w.done)
		run()
	}()
	return w
}

func (w *goWorker) Join() {
	<-w.done
}
