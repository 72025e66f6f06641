package model

import "time"

// TradeState is the lifecycle state of a trade session.
type TradeState string

// Trade states. pending -> processing -> accepted|failed; pending -> rejected|expired.
const (
	TradePending    TradeState = "pending"
	TradeProcessing TradeState = "processing"
	TradeAccepted   TradeState = "accepted"
	TradeRejected   TradeState = "rejected"
	TradeFailed     TradeState = "failed"
	TradeExpired    TradeState = "expired"
)

// Terminal reports whether no further transition is possible.
func (s TradeState) Terminal() bool {
	switch s {
	case TradeAccepted, TradeRejected, TradeFailed, TradeExpired:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s TradeState) Valid() bool {
	switch s {
	case TradePending, TradeProcessing, TradeAccepted, TradeRejected, TradeFailed, TradeExpired:
		return true
	}
	return false
}

// TradeSession is a two-party swap proposal: Requester gives Give and receives Want from Target.
type TradeSession struct {
	ID        string
	ListID    string
	Requester string
	Target    string
	Give      string // filename the requester hands over
	Want      string // filename the requester receives
	State     TradeState
	Reason    string // set when failed
	CreatedAt time.Time
	UpdatedAt time.Time
	Deadline  time.Time
}

// TradeEvent announces a trade session state change.
type TradeEvent struct {
	Session TradeSession
	At      time.Time
}

// Recipients are the users who should hear about the event.
func (e TradeEvent) Recipients() []string {
	switch e.Session.State {
	case TradePending:
		return []string{e.Session.Target}
	case TradeExpired, TradeRejected:
		return []string{e.Session.Requester}
	default:
		return []string{e.Session.Requester, e.Session.Target}
	}
}
