// Package service implements the receipt operations between the HTTP
// boundary and storage: input validation, creation defaults, and the
// whole-document update contract.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tabsync/tabsync/internal/models"
	"github.com/tabsync/tabsync/internal/storage"
)

// ErrNameRequired is returned when a creation payload has no name.
var ErrNameRequired = errors.New("receipt name is required")

// DefaultListLimit bounds list results when the caller does not specify
// a limit.
const DefaultListLimit = 50

// DefaultTaxRates is the two-entry starter tax set applied when a
// creation payload configures no taxes.
func DefaultTaxRates() []models.TaxRate {
	return []models.TaxRate{
		{ID: 1, Name: "GST", Rate: 5.00},
		{ID: 2, Name: "PLT", Rate: 10.00},
	}
}

// DefaultTipConfig is the 20% percentage tip applied when a creation
// payload configures no tip.
func DefaultTipConfig() models.TipConfig {
	return models.TipConfig{IsPercentage: true, Value: 20.00}
}

// CreateInput is the creation payload. TipConfig is a pointer so an
// explicitly supplied zero tip (is_percentage false, value 0) stays
// distinguishable from an absent one; only the latter takes the default.
type CreateInput struct {
	Name      string            `json:"name"`
	ImageURL  string            `json:"image_url,omitempty"`
	ImageType string            `json:"image_type,omitempty"`
	Items     []models.Item     `json:"items"`
	People    []string          `json:"people"`
	TaxRates  []models.TaxRate  `json:"tax_rates"`
	TipConfig *models.TipConfig `json:"tip_config"`
}

// ReceiptService implements the receipt operations on top of a store.
type ReceiptService struct {
	store storage.Store
}

// NewReceiptService creates a ReceiptService with the given storage
// backend.
func NewReceiptService(store storage.Store) *ReceiptService {
	return &ReceiptService{store: store}
}

// CreateReceipt validates the payload, applies creation defaults, and
// persists a new receipt with a server-assigned id and access token.
func (s *ReceiptService) CreateReceipt(ctx context.Context, input CreateInput) (*models.Receipt, error) {
	if input.Name == "" {
		return nil, ErrNameRequired
	}

	fields := models.ReceiptFields{
		Name:      input.Name,
		ImageURL:  input.ImageURL,
		ImageType: input.ImageType,
		Items:     input.Items,
		People:    input.People,
		TaxRates:  input.TaxRates,
		TipConfig: DefaultTipConfig(),
	}
	if fields.TaxRates == nil {
		fields.TaxRates = DefaultTaxRates()
	}
	if input.TipConfig != nil {
		fields.TipConfig = *input.TipConfig
	}

	receipt, err := s.store.CreateReceipt(ctx, fields)
	if err != nil {
		slog.Error("CreateReceipt failed", "error", err)
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	slog.Info("Receipt created", "receipt_id", receipt.ID)
	return receipt, nil
}

// GetReceipt retrieves a receipt by id.
func (s *ReceiptService) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	return s.store.GetReceipt(ctx, id)
}

// GetReceiptByToken retrieves a receipt by its access token. Token shape
// validation happens at the boundary, before this is called.
func (s *ReceiptService) GetReceiptByToken(ctx context.Context, token string) (*models.Receipt, error) {
	return s.store.GetReceiptByToken(ctx, token)
}

// UpdateReceipt overwrites the receipt's mutable fields wholesale.
// Callers must send the complete current field set: an omitted field is
// replaced with its empty default, not preserved.
func (s *ReceiptService) UpdateReceipt(ctx context.Context, id string, fields models.ReceiptFields) (*models.Receipt, error) {
	receipt, err := s.store.UpdateReceipt(ctx, id, fields)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		slog.Error("UpdateReceipt failed", "receipt_id", id, "error", err)
		return nil, fmt.Errorf("failed to update receipt: %w", err)
	}
	return receipt, nil
}

// UpdateReceiptByToken resolves the token to its receipt, then performs
// the same whole-document overwrite as UpdateReceipt.
func (s *ReceiptService) UpdateReceiptByToken(ctx context.Context, token string, fields models.ReceiptFields) (*models.Receipt, error) {
	existing, err := s.store.GetReceiptByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.UpdateReceipt(ctx, existing.ID, fields)
}

// DeleteReceipt removes a receipt by id. Returns storage.ErrNotFound when
// no row was removed.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteReceipt(ctx, id)
	if err != nil {
		slog.Error("DeleteReceipt failed", "receipt_id", id, "error", err)
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	if !deleted {
		return storage.ErrNotFound
	}
	slog.Info("Receipt deleted", "receipt_id", id)
	return nil
}

// ListReceipts returns up to limit receipts, most recently updated first.
// A non-positive limit falls back to DefaultListLimit.
func (s *ReceiptService) ListReceipts(ctx context.Context, limit int) ([]*models.Receipt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	receipts, err := s.store.ListReceipts(ctx, limit)
	if err != nil {
		slog.Error("ListReceipts failed", "error", err)
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	if receipts == nil {
		receipts = []*models.Receipt{}
	}
	return receipts, nil
}
