package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLamportClock(t *testing.T) {
	clock := NewLamportClock()

	require.NotNil(t, clock)
	assert.Equal(t, uint64(0), clock.Current(), "Initial counter should be 0")
	assert.NotEmpty(t, clock.Actor(), "Actor should not be empty")
}

func TestNewLamportClockWithActor(t *testing.T) {
	clock := NewLamportClockWithActor("alice")

	require.NotNil(t, clock)
	assert.Equal(t, uint64(0), clock.Current())
	assert.Equal(t, "alice", clock.Actor())
}

func TestLamportClock_Tick_Monotonicity(t *testing.T) {
	clock := NewLamportClock()

	var previous uint64
	for i := 0; i < 100; i++ {
		current := clock.Tick()
		assert.Greater(t, current, previous, "Tick should always increase")
		previous = current
	}

	assert.Equal(t, uint64(100), clock.Current())
}

func TestLamportClock_Witness(t *testing.T) {
	tests := []struct {
		name     string
		local    int
		remote   uint64
		expected uint64
	}{
		{name: "remote greater than local", local: 5, remote: 10, expected: 10},
		{name: "remote less than local", local: 15, remote: 10, expected: 15},
		{name: "remote equal to local", local: 10, remote: 10, expected: 10},
		{name: "remote is zero", local: 5, remote: 0, expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewLamportClockWithActor("node")
			for i := 0; i < tt.local; i++ {
				clock.Tick()
			}

			clock.Witness(tt.remote)

			assert.Equal(t, tt.expected, clock.Current())
			assert.Equal(t, tt.expected+1, clock.Tick(), "Next tick should exceed witnessed value")
		})
	}
}

func TestLamportClock_UniqueActors(t *testing.T) {
	actors := make(map[string]bool)

	for i := 0; i < 10; i++ {
		actor := NewLamportClock().Actor()
		assert.False(t, actors[actor], "Actor should be unique")
		actors[actor] = true
	}

	assert.Len(t, actors, 10)
}

func TestLamportClock_ConcurrentTick(t *testing.T) {
	clock := NewLamportClock()
	iterations := 1000
	goroutines := 10

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				clock.Tick()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, uint64(goroutines*iterations), clock.Current(),
		"Concurrent Tick calls should increment counter correctly")
}

func TestLamportClock_ConcurrentMixedOperations(t *testing.T) {
	clock := NewLamportClock()
	operations := 100

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < operations; i++ {
			clock.Tick()
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < operations; i++ {
			clock.Witness(uint64(i))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < operations; i++ {
			_ = clock.Current()
		}
	}()

	wg.Wait()

	assert.GreaterOrEqual(t, clock.Current(), uint64(operations))
}

func BenchmarkLamportClock_Tick(b *testing.B) {
	clock := NewLamportClock()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		clock.Tick()
	}
}
