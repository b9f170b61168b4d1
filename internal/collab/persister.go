package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tabsync/tabsync/internal/models"
)

// HTTPPersister loads and saves a receipt through the REST API. The owner
// path addresses the document by id; the share path addresses it by
// access token.
type HTTPPersister struct {
	client *http.Client
	url    string
}

// NewOwnerPersister targets the id-based owner path.
func NewOwnerPersister(baseURL, receiptID string) *HTTPPersister {
	return &HTTPPersister{
		client: http.DefaultClient,
		url:    fmt.Sprintf("%s/api/receipts/%s", baseURL, receiptID),
	}
}

// NewSharePersister targets the token-based share path.
func NewSharePersister(baseURL, token string) *HTTPPersister {
	return &HTTPPersister{
		client: http.DefaultClient,
		url:    fmt.Sprintf("%s/api/receipts/share/%s", baseURL, token),
	}
}

// receiptEnvelope is the API's response wrapper.
type receiptEnvelope struct {
	Receipt *models.Receipt `json:"receipt"`
	Error   string          `json:"error"`
}

// Load fetches the full document.
func (p *HTTPPersister) Load(ctx context.Context) (*models.Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

// Save sends the complete field set as one full-document update.
func (p *HTTPPersister) Save(ctx context.Context, fields models.ReceiptFields) (*models.Receipt, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req)
}

func (p *HTTPPersister) do(req *http.Request) (*models.Receipt, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope receiptEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if envelope.Error != "" {
			return nil, fmt.Errorf("receipt request failed: %s", envelope.Error)
		}
		return nil, fmt.Errorf("receipt request failed with status %d", resp.StatusCode)
	}
	if envelope.Receipt == nil {
		return nil, fmt.Errorf("response carried no receipt")
	}
	return envelope.Receipt, nil
}
