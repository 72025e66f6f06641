package trade

import "errors"

// Sentinel kinds for trade errors.
var (
	ErrSelfTrade       = errors.New("cannot trade with yourself")
	ErrSameItem        = errors.New("cannot trade an item for itself")
	ErrUnknownItem     = errors.New("unknown item")
	ErrOwnership       = errors.New("item not owned")
	ErrNotParticipant  = errors.New("only the trade target can respond")
	ErrSessionNotFound = errors.New("trade not found")
	ErrSessionTerminal = errors.New("trade already resolved")
)
