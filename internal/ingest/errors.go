package ingest

import "errors"

var (
	ErrAuthRequired = errors.New("provider authentication required")
	ErrRateLimited  = errors.New("provider rate limited")
	ErrTransient    = errors.New("transient provider failure")
	ErrNoFares      = errors.New("no fares found")
)
