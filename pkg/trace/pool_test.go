package trace

import (
	"sync"
	"testing"
)

func TestPool(t *testing.T) {
	pool := NewPool()

	t.Run("Sizes", func(t *testing.T) {
		for _, points := range []int{1, 1001, SmallPoints, 32001, LargePoints} {
			b := pool.Get(points)
			if len(b.Data) != points {
				t.Errorf("Get(%d): len %d", points, len(b.Data))
			}
			b.Release()
		}
	})

	t.Run("Zero Request", func(t *testing.T) {
		b := pool.Get(0)
		if len(b.Data) != 1 {
			t.Errorf("expected one point, got %d", len(b.Data))
		}
		b.Release()
	})

	t.Run("Released Buffers Are Zeroed", func(t *testing.T) {
		b := pool.Get(8)
		for i := range b.Data {
			b.Data[i] = -42
		}
		b.Written, b.Available = 8, 10
		if !b.Truncated() {
			t.Error("expected truncated buffer")
		}
		b.Release()

		// sync.Pool may or may not hand the same buffer back; either way it
		// must be clean
		again := pool.Get(16)
		for i, v := range again.Data {
			if v != 0 {
				t.Fatalf("point %d not zeroed: %g", i, v)
			}
		}
		if again.Written != 0 || again.Available != 0 {
			t.Errorf("counters not reset: %d/%d", again.Written, again.Available)
		}
		again.Release()
	})

	t.Run("Values", func(t *testing.T) {
		b := pool.Get(4)
		copy(b.Data, []float64{1, 2, 3, 4})
		b.Written = 2
		if got := b.Values(); len(got) != 2 || got[1] != 2 {
			t.Errorf("unexpected values %v", got)
		}
		b.Release()
	})

	t.Run("Oversized", func(t *testing.T) {
		before := pool.Stats().Direct
		b := pool.Get(LargePoints + 1)
		if len(b.Data) != LargePoints+1 {
			t.Errorf("unexpected len %d", len(b.Data))
		}
		b.Release()
		if pool.Stats().Direct != before+1 {
			t.Error("direct allocation not counted")
		}
	})

	t.Run("Nil Put", func(t *testing.T) {
		pool.Put(nil)
		pool.Put(&Buffer{})
	})
}

func TestPoolStats(t *testing.T) {
	pool := NewPool()
	b := pool.Get(100)
	b.Release()

	stats := pool.Stats()
	if stats.Misses[SmallPoints] != 1 {
		t.Errorf("expected the first get to miss once, got %d", stats.Misses[SmallPoints])
	}
	if stats.Hits[SmallPoints] != 0 {
		t.Errorf("a miss must not count as a hit, got %d hits", stats.Hits[SmallPoints])
	}

	// sync.Pool may drop the released buffer, so the second get is either
	// a hit or a miss but never both
	b = pool.Get(200)
	b.Release()
	stats = pool.Stats()
	if total := stats.Hits[SmallPoints] + stats.Misses[SmallPoints]; total != 2 {
		t.Errorf("expected hits+misses == 2 after two gets, got %d", total)
	}
	if stats.Hits[MediumPoints] != 0 {
		t.Errorf("unexpected medium hits %d", stats.Hits[MediumPoints])
	}
}

func TestPoolConcurrent(t *testing.T) {
	pool := NewPool()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b := pool.Get(1 + (g*997+i)%MediumPoints)
				b.Data[0] = float64(i)
				b.Release()
			}
		}(g)
	}
	wg.Wait()
}
