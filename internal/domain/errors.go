// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrToolUnknown indicates dispatch was requested for an unregistered tool.
var ErrToolUnknown = errors.New("unknown tool")

// ErrIndexNotReady indicates the knowledge-base index has not been built yet.
var ErrIndexNotReady = errors.New("index not built")

// ErrMissingQuery indicates a request arrived without a query.
var ErrMissingQuery = errors.New("missing q")
