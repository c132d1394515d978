package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMemoryStore_Lifecycle walks a record through put, increment and delete.
func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	_, ok := s.Get("1")
	require.False(t, ok)

	s.Put(Record{ID: "1", Camera: "frigate_porch"})
	require.Equal(t, 1, s.Len())

	n, err := s.IncrementImages("1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.IncrementImages("1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rec, ok := s.Get("1")
	require.True(t, ok)
	require.Equal(t, 2, rec.ImagesSent)

	// Overwrite resets the counter.
	s.Put(Record{ID: "1"})

	rec, _ = s.Get("1")
	require.Zero(t, rec.ImagesSent)

	require.True(t, s.Delete("1"))
	require.False(t, s.Delete("1"))
	require.Zero(t, s.Len())

	_, err = s.IncrementImages("1")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestMemoryStore_GetReturnsCopy ensures callers cannot mutate stored records.
func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.Put(Record{ID: "1"})

	rec, _ := s.Get("1")
	rec.ImagesSent = 42

	stored, _ := s.Get("1")
	require.Zero(t, stored.ImagesSent)
}

// TestMemoryStore_ListSorted checks List ordering and concurrent safety.
func TestMemoryStore_ListSorted(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	var wg sync.WaitGroup
	for _, id := range []string{"c", "a", "b"} {
		wg.Go(func() {
			s.Put(Record{ID: id})
		})
	}

	wg.Wait()

	list := s.List()
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)
	require.Equal(t, "c", list[2].ID)
}
