package model

import "errors"

// ErrScanActive is returned when a scan creation loses the
// single-active-scan race: another scan is already pending or running.
var ErrScanActive = errors.New("a scan is already pending or running")

// ErrNotFound is returned for lookups of records that do not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidSortKey is returned when a requested sort key is not on the
// allow-list.
var ErrInvalidSortKey = errors.New("sort key not allowed")
