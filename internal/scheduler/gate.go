package scheduler

import "context"

// MarkerStore is the durable backing for the dispatch gate. The insert must
// be atomic (unique-constraint style): exactly one caller per key sees true.
type MarkerStore interface {
	InsertDispatchMarker(ctx context.Context, taskID int64, kind, occurrence string) (bool, error)
}

// Gate enforces at-most-once dispatch per trigger key. It is correct across
// concurrent scheduler instances because the check-and-create is a single
// store operation, not loop-local state.
type Gate struct {
	store MarkerStore
}

func NewGate(store MarkerStore) *Gate {
	return &Gate{store: store}
}

// Admit records tr and reports whether the caller won the right to send.
// false with a nil error means a duplicate was suppressed.
func (g *Gate) Admit(ctx context.Context, tr Trigger) (bool, error) {
	return g.store.InsertDispatchMarker(ctx, tr.TaskID, string(tr.Kind), tr.Occurrence)
}
