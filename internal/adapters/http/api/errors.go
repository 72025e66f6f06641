package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	service "github.com/okian/fishy/internal/app"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/app/ledger"
	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/ratelimit"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrMissingUser = errors.New("missing X-User-ID header")
	ErrUpgrade     = errors.New("websocket upgrade failed")
	ErrInternal    = errors.New("internal error")
)

// opError is an "op: kind: cause" error that still matches its kind and cause.
type opError struct {
	op    string
	kind  error
	cause error
}

func (e *opError) Error() string {
	switch {
	case e.kind != nil && e.cause != nil:
		return e.op + ": " + e.kind.Error() + ": " + e.cause.Error()
	case e.kind != nil:
		return e.op + ": " + e.kind.Error()
	case e.cause != nil:
		return e.op + ": " + e.cause.Error()
	}
	return e.op
}

func (e *opError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Wrap annotates err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, cause: err}
}

// WrapKind annotates err with op and a sentinel kind.
func WrapKind(op string, kind, err error) error {
	return &opError{op: op, kind: kind, cause: err}
}

// NewKind returns an error of kind raised at op.
func NewKind(op string, kind error) error {
	return &opError{op: op, kind: kind}
}

// failure is how an error is shown to clients.
type failure struct {
	status  int
	code    string
	message string
}

// classify maps domain errors to statuses and terse client messages.
// Unknown errors become 500 and keep their detail out of the response.
func classify(err error) failure {
	switch {
	case errors.Is(err, ErrMissingUser):
		return failure{http.StatusBadRequest, "missing_user", ErrMissingUser.Error()}
	case errors.Is(err, ErrBadRequest):
		return failure{http.StatusBadRequest, "bad_request", badRequestMessage(err)}
	case errors.Is(err, ratelimit.ErrLimited):
		return failure{http.StatusTooManyRequests, "cooldown", "you are on cooldown"}
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return failure{http.StatusServiceUnavailable, "cooldown_unavailable", "cooldowns are unavailable, try again later"}
	case errors.Is(err, catalog.ErrUnknownList):
		return failure{http.StatusNotFound, "unknown_list", "unknown list"}
	case errors.Is(err, ledger.ErrNoItemsAvailable):
		return failure{http.StatusServiceUnavailable, "no_items", "no items available"}
	case errors.Is(err, ledger.ErrNoEntry):
		return failure{http.StatusNotFound, "no_entry", "no draws on this list yet"}
	case errors.Is(err, trade.ErrOwnership):
		return failure{http.StatusConflict, "not_owned", "you do not own this item"}
	case errors.Is(err, trade.ErrSelfTrade):
		return failure{http.StatusBadRequest, "self_trade", "you cannot trade with yourself"}
	case errors.Is(err, trade.ErrSameItem):
		return failure{http.StatusBadRequest, "same_item", "you cannot trade an item for itself"}
	case errors.Is(err, trade.ErrUnknownItem):
		return failure{http.StatusNotFound, "unknown_item", "unknown item"}
	case errors.Is(err, trade.ErrNotParticipant):
		return failure{http.StatusForbidden, "not_participant", "only the trade target can respond"}
	case errors.Is(err, trade.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		return failure{http.StatusNotFound, "not_found", "not found"}
	case errors.Is(err, ingest.ErrRunInProgress):
		return failure{http.StatusConflict, "refresh_in_progress", "a refresh is already running"}
	case errors.Is(err, service.ErrUnknownAction):
		return failure{http.StatusBadRequest, "unknown_action", "unknown cooldown action"}
	}
	return failure{http.StatusInternalServerError, "internal_error", ErrInternal.Error()}
}

// badRequestMessage keeps the validation detail, which is client supplied.
func badRequestMessage(err error) string {
	var oe *opError
	if errors.As(err, &oe) && oe.cause != nil {
		return oe.cause.Error()
	}
	return ErrBadRequest.Error()
}

// retryAfter sets Retry-After for cooldown denials.
func retryAfter(w http.ResponseWriter, err error) {
	var cd *service.CooldownError
	if errors.As(err, &cd) {
		secs := int(cd.ResetIn.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}
