package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNoItemsAvailable = errors.New("no items available")
	ErrNoEntry          = errors.New("no ledger entry")
)
