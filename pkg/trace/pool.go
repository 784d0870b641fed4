// Package trace pools the float64 buffers that trace and I/Q reads land in.
// Sweeps are read repeatedly with the same point count, so buffers are
// recycled per size class instead of allocated per read.
package trace

import (
	"sync"
	"sync/atomic"
)

// Size classes in points. 1001 is the default sweep length of current
// analyzers, 32001 the largest selectable sweep on most of them.
const (
	SmallPoints  = 1024
	MediumPoints = 32768
	LargePoints  = 131072

	// MaxPoints bounds a single read; anything above LargePoints is
	// allocated directly
	MaxPoints = 1 << 22
)

// Buffer is a pooled destination for a float array read
type Buffer struct {
	Data []float64
	// Written and Available mirror the gateway read results
	Written   int
	Available int
	pool      *Pool
	// fresh marks a buffer sync.Pool just created; its Get counts as a miss
	fresh bool
}

// Values returns the written part of the buffer
func (b *Buffer) Values() []float64 {
	return b.Data[:b.Written]
}

// Truncated reports whether the instrument had more points than fit
func (b *Buffer) Truncated() bool {
	return b.Available > b.Written
}

// Release returns the buffer to its pool
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.Put(b)
	}
}

func (b *Buffer) reset() {
	clear(b.Data[:cap(b.Data)])
	b.Written = 0
	b.Available = 0
}

type class struct {
	points int
	pool   sync.Pool
	hits   atomic.Int64
	misses atomic.Int64
}

// Pool hands out buffers from three size classes. Requests above the
// largest class are allocated directly and never pooled.
type Pool struct {
	classes [3]*class
	direct  atomic.Int64
}

// NewPool creates an empty pool
func NewPool() *Pool {
	p := &Pool{}
	for i, points := range []int{SmallPoints, MediumPoints, LargePoints} {
		c := &class{points: points}
		c.pool.New = func() interface{} {
			c.misses.Add(1)
			return &Buffer{Data: make([]float64, c.points), pool: p, fresh: true}
		}
		p.classes[i] = c
	}
	return p
}

func (p *Pool) classFor(points int) *class {
	for _, c := range p.classes {
		if points <= c.points {
			return c
		}
	}
	return nil
}

// Get returns a zeroed buffer with len(Data) == points. points < 1 is
// treated as 1.
func (p *Pool) Get(points int) *Buffer {
	if points < 1 {
		points = 1
	}

	c := p.classFor(points)
	if c == nil {
		p.direct.Add(1)
		return &Buffer{Data: make([]float64, points), pool: p}
	}

	b := c.pool.Get().(*Buffer)
	if b.fresh {
		b.fresh = false
	} else {
		c.hits.Add(1)
	}
	b.Data = b.Data[:points]
	return b
}

// Put returns a buffer to the class matching its capacity
func (p *Pool) Put(b *Buffer) {
	if b == nil || b.Data == nil {
		return
	}
	b.reset()

	capacity := cap(b.Data)
	for _, c := range p.classes {
		if capacity == c.points {
			b.Data = b.Data[:capacity]
			c.pool.Put(b)
			return
		}
	}
	// oversized or foreign buffers are left to the GC
}

// Stats are pool counters, reported by the daemon STATUS command
type Stats struct {
	Hits   map[int]int64 `json:"hits"`
	Misses map[int]int64 `json:"misses"`
	Direct int64         `json:"direct"`
}

// Stats returns a snapshot of the pool counters keyed by class size
func (p *Pool) Stats() Stats {
	s := Stats{Hits: map[int]int64{}, Misses: map[int]int64{}, Direct: p.direct.Load()}
	for _, c := range p.classes {
		s.Hits[c.points] = c.hits.Load()
		s.Misses[c.points] = c.misses.Load()
	}
	return s
}
