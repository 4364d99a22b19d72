package app

import (
	"context"

	"dtk-go/internal/database"
)

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks a CLI command that may mutate the ledger. Operations
// are created in memory with ID=0; only mutating commands are journaled,
// and only when the store keeps a journal.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been journaled.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record marks the operation failed when err is non-nil and passes err through.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

// Journal persists operation records. *database.SQLiteStore implements it.
type Journal interface {
	CreateOperation(ctx context.Context, operation, parameters string) (int64, error)
	FinishOperation(ctx context.Context, id int64, status string) error
	ListOperations(ctx context.Context, limit int) ([]database.Operation, error)
}

var _ Journal = (*database.SQLiteStore)(nil)
