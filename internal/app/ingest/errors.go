package ingest

import "errors"

// Sentinel kinds for ingestion errors.
var (
	ErrRunInProgress = errors.New("ingestion run in progress")
	ErrEmptySource   = errors.New("source returned no items")
)
