// Package storage provides abstractions for persistent receipt storage.
package storage

import (
	"context"
	"errors"

	"github.com/tabsync/tabsync/internal/models"
)

// ErrNotFound is returned when no receipt matches the given id or token.
var ErrNotFound = errors.New("receipt not found")

// Store defines the interface for receipt storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// CreateReceipt persists a new receipt built from the given fields and
	// returns the stored document with its assigned ID, AccessToken and
	// timestamps populated.
	CreateReceipt(ctx context.Context, fields models.ReceiptFields) (*models.Receipt, error)

	// GetReceipt retrieves a receipt by its ID.
	// Returns ErrNotFound if no receipt has that id.
	GetReceipt(ctx context.Context, id string) (*models.Receipt, error)

	// GetReceiptByToken retrieves a receipt by its access token.
	// The token column is uniquely indexed. Returns ErrNotFound if no
	// receipt has that token.
	GetReceiptByToken(ctx context.Context, token string) (*models.Receipt, error)

	// UpdateReceipt overwrites the receipt's mutable fields wholesale and
	// refreshes UpdatedAt. Omitted fields in the given set are written as
	// their empty defaults; callers must send the complete field set.
	// Returns ErrNotFound if no receipt has that id.
	UpdateReceipt(ctx context.Context, id string, fields models.ReceiptFields) (*models.Receipt, error)

	// DeleteReceipt removes a receipt by ID. The returned bool reports
	// whether a row was actually deleted.
	DeleteReceipt(ctx context.Context, id string) (bool, error)

	// ListReceipts returns up to limit receipts, most recently updated
	// first.
	ListReceipts(ctx context.Context, limit int) ([]*models.Receipt, error)

	// Close releases any resources held by the store.
	Close() error
}
