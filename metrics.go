package pool

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PoolMetrics 计数器的一致性快照
type PoolMetrics struct {
	CurrentlyClaimed      int
	CurrentlyWaitingCount int
	CorePoolsize          int
	MaxPoolsize           int
	CurrentlyAllocated    int
	TotalAllocated        uint64
	TotalClaimed          uint64
}

// GetPoolMetrics 在锁内取快照，各字段之间相互一致
func (p *Pool[T]) GetPoolMetrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolMetrics{
		CurrentlyClaimed:      len(p.claimed),
		CurrentlyWaitingCount: len(p.waiters),
		CorePoolsize:          p.coreSize,
		MaxPoolsize:           p.maxSize,
		CurrentlyAllocated:    len(p.idle) + len(p.claimed),
		TotalAllocated:        p.totalAllocated,
		TotalClaimed:          p.totalClaimed,
	}
}

func (m PoolMetrics) String() string {
	return fmt.Sprintf("claimed=%d waiting=%d allocated=%d core=%d max=%d totalAllocated=%d totalClaimed=%d",
		m.CurrentlyClaimed, m.CurrentlyWaitingCount, m.CurrentlyAllocated,
		m.CorePoolsize, m.MaxPoolsize, m.TotalAllocated, m.TotalClaimed)
}

// Fields 方便以结构化字段输出
func (m PoolMetrics) Fields() logrus.Fields {
	return logrus.Fields{
		"claimed":        m.CurrentlyClaimed,
		"waiting":        m.CurrentlyWaitingCount,
		"allocated":      m.CurrentlyAllocated,
		"core":           m.CorePoolsize,
		"max":            m.MaxPoolsize,
		"totalAllocated": m.TotalAllocated,
		"totalClaimed":   m.TotalClaimed,
	}
}
