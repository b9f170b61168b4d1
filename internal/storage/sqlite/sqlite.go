// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/tabsync/tabsync/internal/models"
	"github.com/tabsync/tabsync/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
// Receipt documents are stored as one row per receipt with the items,
// people, tax rates and tip config serialized to JSON text columns,
// mirroring the whole-document write semantics of the API.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically;
// schema setup is idempotent and safe on every cold start.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateReceipt persists a new receipt and assigns its id and access token.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, fields models.ReceiptFields) (*models.Receipt, error) {
	if fields.Items == nil {
		fields.Items = []models.Item{}
	}
	if fields.People == nil {
		fields.People = []string{}
	}
	if fields.TaxRates == nil {
		fields.TaxRates = []models.TaxRate{}
	}

	now := time.Now().Unix()
	receipt := &models.Receipt{
		ID:          uuid.New().String(),
		AccessToken: uuid.New().String(),
		Name:        fields.Name,
		ImageURL:    fields.ImageURL,
		ImageType:   fields.ImageType,
		Items:       fields.Items,
		People:      fields.People,
		TaxRates:    fields.TaxRates,
		TipConfig:   fields.TipConfig,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	items, people, taxRates, tipConfig, err := marshalDocument(fields)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO receipts (id, access_token, name, image_url, image_type, items, people, tax_rates, tip_config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.AccessToken, receipt.Name,
		nullable(receipt.ImageURL), nullable(receipt.ImageType),
		items, people, taxRates, tipConfig,
		receipt.CreatedAt, receipt.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert receipt: %w", err)
	}

	return receipt, nil
}

// GetReceipt retrieves a receipt by id.
func (s *SQLiteStore) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	return s.getWhere(ctx, "id = ?", id)
}

// GetReceiptByToken retrieves a receipt by its access token.
func (s *SQLiteStore) GetReceiptByToken(ctx context.Context, token string) (*models.Receipt, error) {
	return s.getWhere(ctx, "access_token = ?", token)
}

func (s *SQLiteStore) getWhere(ctx context.Context, where string, arg any) (*models.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, access_token, name, image_url, image_type, items, people, tax_rates, tip_config, created_at, updated_at
		 FROM receipts WHERE `+where, arg,
	)
	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// UpdateReceipt overwrites the receipt's mutable fields wholesale and
// refreshes updated_at. Every column is written from the given field set,
// so omitted fields become their empty defaults.
func (s *SQLiteStore) UpdateReceipt(ctx context.Context, id string, fields models.ReceiptFields) (*models.Receipt, error) {
	items, people, taxRates, tipConfig, err := marshalDocument(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE receipts
		 SET name = ?, image_url = ?, image_type = ?, items = ?, people = ?, tax_rates = ?, tip_config = ?, updated_at = ?
		 WHERE id = ?`,
		fields.Name, nullable(fields.ImageURL), nullable(fields.ImageType),
		items, people, taxRates, tipConfig, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update receipt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetReceipt(ctx, id)
}

// DeleteReceipt removes a receipt by id.
func (s *SQLiteStore) DeleteReceipt(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM receipts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete receipt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// ListReceipts returns up to limit receipts, most recently updated first.
func (s *SQLiteStore) ListReceipts(ctx context.Context, limit int) ([]*models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, access_token, name, image_url, image_type, items, people, tax_rates, tip_config, created_at, updated_at
		 FROM receipts ORDER BY updated_at DESC, created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}

	return receipts, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*models.Receipt, error) {
	var (
		receipt   models.Receipt
		imageURL  sql.NullString
		imageType sql.NullString
		items     string
		people    string
		taxRates  string
		tipConfig string
	)
	err := row.Scan(
		&receipt.ID, &receipt.AccessToken, &receipt.Name,
		&imageURL, &imageType,
		&items, &people, &taxRates, &tipConfig,
		&receipt.CreatedAt, &receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	receipt.ImageURL = imageURL.String
	receipt.ImageType = imageType.String

	if err := json.Unmarshal([]byte(items), &receipt.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(people), &receipt.People); err != nil {
		return nil, fmt.Errorf("failed to decode people: %w", err)
	}
	if err := json.Unmarshal([]byte(taxRates), &receipt.TaxRates); err != nil {
		return nil, fmt.Errorf("failed to decode tax rates: %w", err)
	}
	if err := json.Unmarshal([]byte(tipConfig), &receipt.TipConfig); err != nil {
		return nil, fmt.Errorf("failed to decode tip config: %w", err)
	}

	return &receipt, nil
}

// marshalDocument serializes the JSON document columns. Nil slices are
// written as empty JSON arrays so reads round-trip to non-null values.
func marshalDocument(fields models.ReceiptFields) (items, people, taxRates, tipConfig string, err error) {
	if fields.Items == nil {
		fields.Items = []models.Item{}
	}
	if fields.People == nil {
		fields.People = []string{}
	}
	if fields.TaxRates == nil {
		fields.TaxRates = []models.TaxRate{}
	}

	itemsJSON, err := json.Marshal(fields.Items)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode items: %w", err)
	}
	peopleJSON, err := json.Marshal(fields.People)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode people: %w", err)
	}
	taxRatesJSON, err := json.Marshal(fields.TaxRates)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode tax rates: %w", err)
	}
	tipConfigJSON, err := json.Marshal(fields.TipConfig)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to encode tip config: %w", err)
	}

	return string(itemsJSON), string(peopleJSON), string(taxRatesJSON), string(tipConfigJSON), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
