package scoring

import "errors"

// ErrUnknownFormula is returned by Lookup for unregistered names.
var ErrUnknownFormula = errors.New("unknown scoring formula")
