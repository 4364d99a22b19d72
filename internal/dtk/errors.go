package dtk

import "errors"

// Ledger input errors. These are returned before any backend call is made
// and leave the ledger untouched.
var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrUnknownDataType    = errors.New("unknown data type")
	ErrInvalidDuration    = errors.New("duration must be between 1 and 365 days")
	ErrNegativeDelta      = errors.New("usage deltas must not be negative")
	ErrCreateInProgress   = errors.New("token creation already in progress")
)

// Persistence errors.
var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrCorruptBlob  = errors.New("corrupt token blob")
	ErrKeyMismatch  = errors.New("blob was not sealed with the configured key")
	ErrInvalidKey   = errors.New("invalid storage key")
)
