// README: Reassignment queue item model.
package requeue

import (
	"time"

	"relay/internal/types"
)

type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Item is one request waiting for another round of matching. At most one
// open (pending or processing) item exists per request.
type Item struct {
	ID        types.ID   `json:"id"`
	RequestID types.ID   `json:"request_id"`
	Status    ItemStatus `json:"status"`
	Priority  int        `json:"priority"`
	// Attempts counts drain rounds, including the one in flight.
	Attempts   int       `json:"attempts"`
	Reason     string    `json:"reason"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
