package ingestion

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorReserveAndRelease(t *testing.T) {
	dedup := NewDeduplicator()

	assert.Equal(t, ReservationNew, dedup.CheckAndReserve("hash1", "task-a"))
	assert.Equal(t, ReservationDuplicate, dedup.CheckAndReserve("hash1", "task-b"))

	holder, ok := dedup.Holder("hash1")
	assert.True(t, ok)
	assert.Equal(t, "task-a", holder)

	// After release the hash is free for a retry.
	dedup.Release("hash1")
	assert.Equal(t, ReservationNew, dedup.CheckAndReserve("hash1", "task-b"))
}

func TestDeduplicatorCommit(t *testing.T) {
	dedup := NewDeduplicator()

	dedup.CheckAndReserve("hash1", "task-a")
	dedup.Commit("hash1")

	_, ok := dedup.Holder("hash1")
	assert.False(t, ok)
}

func TestDeduplicatorConcurrentReservation(t *testing.T) {
	dedup := NewDeduplicator()

	const goroutines = 32
	var wg sync.WaitGroup
	winners := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if dedup.CheckAndReserve("contested", id) == ReservationNew {
				winners <- id
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	// Exactly one goroutine wins the reservation.
	assert.Len(t, winners, 1)
}
