package sources

import "errors"

// Sentinel errors. Fetch returns an empty sequence alongside either of them.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrManifestInvalid   = errors.New("manifest invalid")
)
