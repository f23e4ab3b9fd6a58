package ingestion

import "sync"

// ReservationState is the outcome of a deduplication check.
type ReservationState int

const (
	// ReservationNew means the caller holds the reservation and should
	// proceed with ingestion.
	ReservationNew ReservationState = iota

	// ReservationDuplicate means another in-flight task already holds a
	// reservation for this hash.
	ReservationDuplicate
)

// Deduplicator serializes concurrent ingestion of identical content.
// The store's hash index catches duplicates that already finished; this
// catches the window where two tasks with the same content are in flight
// at once. Reservations are in-memory only: after a restart the store
// index alone is authoritative.
type Deduplicator struct {
	mu       sync.Mutex
	reserved map[string]string // content hash -> task ID holding it
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{reserved: make(map[string]string)}
}

// CheckAndReserve atomically checks for an existing reservation on the
// hash and takes one if free.
func (d *Deduplicator) CheckAndReserve(contentHash, taskID string) ReservationState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, held := d.reserved[contentHash]; held {
		return ReservationDuplicate
	}
	d.reserved[contentHash] = taskID
	return ReservationNew
}

// Release frees a reservation after a failed ingestion so the content
// can be retried.
func (d *Deduplicator) Release(contentHash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.reserved, contentHash)
}

// Commit frees a reservation after a successful ingestion. The store's
// hash index takes over from here.
func (d *Deduplicator) Commit(contentHash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.reserved, contentHash)
}

// Holder returns the task ID holding the reservation, if any.
func (d *Deduplicator) Holder(contentHash string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.reserved[contentHash]
	return id, ok
}
