package reorg

import "fmt"

// BeyondFinalityError is fatal: the chain diverged at a ledger the indexer
// already considers confirmed. Recovering requires a full resync.
type BeyondFinalityError struct {
	From     uint64
	Boundary uint64
}

func (e *BeyondFinalityError) Error() string {
	return fmt.Sprintf("reorg at ledger %d crosses confirmed boundary %d, resync required", e.From, e.Boundary)
}
