package awareness

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophtex/internal/models"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func remoteEntry(id string, timestamp int64, cursor int) models.AwarenessEntry {
	return models.AwarenessEntry{
		ParticipantID: id,
		Fields:        models.AwarenessFields{DisplayName: id, Color: "#4ECDC4", Cursor: cursor},
		Timestamp:     timestamp,
	}
}

func TestNewStore(t *testing.T) {
	store := NewStore()

	require.NotNil(t, store)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, DefaultTimeout, store.Timeout())
	assert.Equal(t, 5*time.Second, NewStore(WithTimeout(5*time.Second)).Timeout())
}

func TestStore_SetLocal_TimestampStrictlyIncreases(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	first := store.SetLocal("alice", models.AwarenessFields{Cursor: 1})
	second := store.SetLocal("alice", models.AwarenessFields{Cursor: 2})

	assert.Greater(t, second.Timestamp, first.Timestamp, "frozen clock must not repeat timestamps")

	got, ok := store.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 2, got.Fields.Cursor)
}

func TestStore_ApplyRemote(t *testing.T) {
	tests := []struct {
		name     string
		incoming models.AwarenessEntry
		cursor   int
		applied  bool
	}{
		{name: "newer entry wins", incoming: remoteEntry("bob", 20, 7), applied: true, cursor: 7},
		{name: "older entry is stale", incoming: remoteEntry("bob", 5, 7), applied: false, cursor: 1},
		{name: "equal timestamp is stale", incoming: remoteEntry("bob", 10, 7), applied: false, cursor: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			require.True(t, store.ApplyRemote(remoteEntry("bob", 10, 1)))

			applied := store.ApplyRemote(tt.incoming)

			assert.Equal(t, tt.applied, applied)
			got, ok := store.Get("bob")
			require.True(t, ok)
			assert.Equal(t, tt.cursor, got.Fields.Cursor)
		})
	}
}

func TestStore_ApplyRemote_IgnoresLocalParticipant(t *testing.T) {
	store := NewStore()
	local := store.SetLocal("alice", models.AwarenessFields{Cursor: 3})

	assert.False(t, store.ApplyRemote(remoteEntry("alice", local.Timestamp+100, 9)))
	assert.False(t, store.ApplyRemote(remoteEntry("", 1, 0)))

	got, _ := store.Get("alice")
	assert.Equal(t, 3, got.Fields.Cursor)
}

func TestStore_Remove(t *testing.T) {
	store := NewStore()
	store.ApplyRemote(remoteEntry("bob", 10, 1))

	assert.True(t, store.Remove("bob"))
	assert.False(t, store.Remove("bob"), "second remove is a no-op")
	assert.False(t, store.Remove("nobody"))

	assert.False(t, store.ApplyRemote(remoteEntry("bob", 10, 1)), "late duplicate must not resurrect")
	assert.True(t, store.ApplyRemote(remoteEntry("bob", 11, 2)), "fresh state after leave is accepted")
}

func TestStore_Expire(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now), WithTimeout(30*time.Second))

	store.SetLocal("alice", models.AwarenessFields{})
	store.ApplyRemote(remoteEntry("bob", 1, 0))
	clock.Advance(20 * time.Second)
	store.ApplyRemote(remoteEntry("carol", 1, 0))

	assert.Empty(t, store.Expire(clock.Now()), "nobody is past the timeout yet")

	clock.Advance(15 * time.Second)
	expired := store.Expire(clock.Now())

	assert.Equal(t, []string{"bob"}, expired)
	assert.Equal(t, 2, store.Len())

	clock.Advance(time.Hour)
	assert.Equal(t, []string{"carol"}, store.Expire(clock.Now()))

	_, ok := store.Get("alice")
	assert.True(t, ok, "local participant never expires")
}

func TestStore_Refresh(t *testing.T) {
	store := NewStore()
	first := store.SetLocal("alice", models.AwarenessFields{Cursor: 4})

	refreshed, ok := store.Refresh("alice")

	require.True(t, ok)
	assert.Greater(t, refreshed.Timestamp, first.Timestamp)
	assert.Equal(t, first.Fields, refreshed.Fields)

	store.ApplyRemote(remoteEntry("bob", 1, 0))
	_, ok = store.Refresh("bob")
	assert.False(t, ok, "remote entries are not refreshed locally")
}

func TestStore_Snapshot_Sorted(t *testing.T) {
	store := NewStore()
	store.ApplyRemote(remoteEntry("carol", 1, 0))
	store.SetLocal("alice", models.AwarenessFields{})
	store.ApplyRemote(remoteEntry("bob", 1, 0))

	snapshot := store.Snapshot()

	require.Len(t, snapshot, 3)
	assert.Equal(t, "alice", snapshot[0].ParticipantID)
	assert.Equal(t, "bob", snapshot[1].ParticipantID)
	assert.Equal(t, "carol", snapshot[2].ParticipantID)

	local := store.Local()
	require.Len(t, local, 1)
	assert.Equal(t, "alice", local[0].ParticipantID)
}

func TestStore_Subscribe(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(WithClock(clock.Now))

	var events []Event
	unsubscribe := store.Subscribe(func(e Event) {
		events = append(events, e)
		_ = store.Len()
	})

	store.SetLocal("alice", models.AwarenessFields{})
	store.ApplyRemote(remoteEntry("bob", 1, 0))
	store.ApplyRemote(remoteEntry("bob", 1, 0))
	clock.Advance(time.Minute)
	store.Expire(clock.Now())
	unsubscribe()
	store.ApplyRemote(remoteEntry("carol", 1, 0))

	require.Len(t, events, 3)
	assert.True(t, events[0].Local)
	assert.Equal(t, EventUpdated, events[1].Kind)
	assert.Equal(t, EventRemoved, events[2].Kind)
	assert.Equal(t, "bob", events[2].Entry.ParticipantID)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			store.SetLocal("alice", models.AwarenessFields{Cursor: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			store.ApplyRemote(remoteEntry("bob", int64(i+1), i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = store.Snapshot()
			store.Expire(time.Now())
		}
	}()
	wg.Wait()

	got, ok := store.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 99, got.Fields.Cursor)
}
