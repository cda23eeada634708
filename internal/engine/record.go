package engine

import (
	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/outbox"
)

// DefaultStoreKey is the storage key of the persisted record.
const DefaultStoreKey = "ceremony-store"

// persistedRecord is the on-disk layout. The ledger fields are flattened
// into the top-level object.
type persistedRecord struct {
	ledger.Record

	PendingStats []outbox.Item `json:"pendingStats"`

	// SyncSeq is the last issued outbox seq. It survives a drained queue so
	// seqs never repeat across restarts.
	SyncSeq int64 `json:"syncSeq,omitempty"`
}
