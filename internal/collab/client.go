package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabsync/tabsync/internal/models"
)

// defaultDebounce is the quiet period after the last local edit before the
// full state is persisted.
const defaultDebounce = 2 * time.Second

// Envelope is the relay message shape. The connected acknowledgement and
// state-update broadcasts share it.
type Envelope struct {
	Type      string `json:"type"`
	ReceiptID string `json:"receiptId"`
	Changes   *Patch `json:"changes,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Sender is the outgoing half of a relay channel.
type Sender interface {
	// Send transmits an envelope to the relay. It fails when the channel
	// is not connected; a failed send is not queued.
	Send(Envelope) error
}

// Persister loads and saves the full receipt document. Save always sends
// the complete field set (the store's whole-document overwrite contract).
type Persister interface {
	Load(ctx context.Context) (*models.Receipt, error)
	Save(ctx context.Context, fields models.ReceiptFields) (*models.Receipt, error)
}

// Client holds one session's local copy of a shared receipt and keeps it
// synchronized: local edits are applied optimistically, broadcast to
// siblings, and persisted after a debounce; remote edits are merged only
// when stamped strictly newer than the last locally-applied timestamp.
type Client struct {
	receiptID string
	sessionID string
	sender    Sender
	persister Persister
	debounce  time.Duration
	onChange  func(State)

	mu          sync.Mutex
	name        string
	state       State
	lastApplied time.Time
	saveTimer   *time.Timer
	saveErr     error
}

// Option configures a Client.
type Option func(*Client)

// WithDebounce overrides the save-coalescing delay.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) { c.debounce = d }
}

// WithOnChange registers a callback invoked (outside the client lock is
// not guaranteed) whenever local state changes, locally or remotely.
func WithOnChange(fn func(State)) Option {
	return func(c *Client) { c.onChange = fn }
}

// NewClient creates a synchronizer for one receipt session. The session
// id is assigned once here and threaded through every outgoing message.
// A nil persister puts the client in ephemeral mode: edits broadcast live
// but nothing is saved.
func NewClient(receiptID string, sender Sender, persister Persister, opts ...Option) *Client {
	c := &Client{
		receiptID: receiptID,
		sessionID: "user-" + uuid.New().String()[:8],
		sender:    sender,
		persister: persister,
		debounce:  defaultDebounce,
		state:     DefaultState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the per-session user identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// State returns a snapshot of the current local state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastApplied returns the timestamp of the most recent applied edit,
// local or remote.
func (c *Client) LastApplied() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastApplied
}

// Err returns the most recent background-save failure, if the last
// attempt failed. It is cleared by the next successful save. A failed
// save never destroys local edits; the next edit schedules the next
// attempt.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveErr
}

// Load fetches the full document and replaces local state wholesale.
// The fetch is not retried on failure; the error is surfaced to the
// caller as a visible error state.
func (c *Client) Load(ctx context.Context) error {
	if c.persister == nil {
		return fmt.Errorf("ephemeral session has no persistence")
	}

	receipt, err := c.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load receipt: %w", err)
	}

	c.mu.Lock()
	c.name = receipt.Name
	c.state = StateFromReceipt(receipt)
	c.mu.Unlock()

	c.notify()
	return nil
}

// AddPerson adds a participant (uniqueness enforced here, not the store).
func (c *Client) AddPerson(name string) {
	c.mu.Lock()
	patch, ok := c.state.AddPerson(name)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// RemovePerson removes a participant and all of their item assignments.
func (c *Client) RemovePerson(name string) {
	c.mu.Lock()
	patch := c.state.RemovePerson(name)
	c.mu.Unlock()
	c.applyLocal(patch)
}

// AddItem appends a line item.
func (c *Client) AddItem(item models.Item) {
	c.mu.Lock()
	patch := c.state.AddItem(item)
	c.mu.Unlock()
	c.applyLocal(patch)
}

// UpdateItem replaces the item at index.
func (c *Client) UpdateItem(index int, item models.Item) {
	c.mu.Lock()
	patch, ok := c.state.UpdateItem(index, item)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// RemoveItem drops the item at index.
func (c *Client) RemoveItem(index int) {
	c.mu.Lock()
	patch, ok := c.state.RemoveItem(index)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// AddTaxRate appends a new zero-rate tax with the next monotonic id.
func (c *Client) AddTaxRate() {
	c.mu.Lock()
	patch := c.state.AddTaxRate()
	c.mu.Unlock()
	c.applyLocal(patch)
}

// RemoveTaxRate drops a tax and its flags on every item.
func (c *Client) RemoveTaxRate(taxID int) {
	c.mu.Lock()
	patch := c.state.RemoveTaxRate(taxID)
	c.mu.Unlock()
	c.applyLocal(patch)
}

// UpdateTaxRate changes a tax's name or rate.
func (c *Client) UpdateTaxRate(taxID int, name string, rate float64) {
	c.mu.Lock()
	patch, ok := c.state.UpdateTaxRate(taxID, name, rate)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// ToggleItemTax flips one tax flag on one item.
func (c *Client) ToggleItemTax(index, taxID int) {
	c.mu.Lock()
	patch, ok := c.state.ToggleItemTax(index, taxID)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// ToggleAssignment adds or removes one person on one item.
func (c *Client) ToggleAssignment(index int, person string) {
	c.mu.Lock()
	patch, ok := c.state.ToggleAssignment(index, person)
	c.mu.Unlock()
	if ok {
		c.applyLocal(patch)
	}
}

// SetTipConfig replaces the tip configuration.
func (c *Client) SetTipConfig(tip models.TipConfig) {
	c.mu.Lock()
	patch := c.state.SetTipConfig(tip)
	c.mu.Unlock()
	c.applyLocal(patch)
}

// SetImage replaces the uploaded file reference.
func (c *Client) SetImage(url, fileType string) {
	c.mu.Lock()
	patch := c.state.SetImage(url, fileType)
	c.mu.Unlock()
	c.applyLocal(patch)
}

// applyLocal replaces local state with the patched copy, advances the
// last-applied mark to now, broadcasts the changed fields, and restarts
// the debounced save (persisted mode only).
func (c *Client) applyLocal(patch Patch) {
	c.mu.Lock()
	c.state = c.state.Merge(patch)
	c.lastApplied = time.Now()
	c.scheduleSaveLocked()
	c.mu.Unlock()

	c.notify()

	if c.sender != nil {
		envelope := Envelope{
			Type:      "state_update",
			ReceiptID: c.receiptID,
			Changes:   &patch,
			UserID:    c.sessionID,
		}
		if err := c.sender.Send(envelope); err != nil {
			// Live broadcast is best-effort; persistence still runs.
			slog.Debug("Relay send skipped", "receipt_id", c.receiptID, "error", err)
		}
	}
}

// HandleRemote merges a relay broadcast into local state, but only when
// its server timestamp is strictly newer than the last applied mark.
// This is the sole conflict rule: last-writer-wins, whole payload, no
// field-level merge.
func (c *Client) HandleRemote(envelope Envelope) {
	if envelope.Type != "state_update" || envelope.ReceiptID != c.receiptID || envelope.Changes == nil {
		return
	}

	stamp, err := time.Parse(time.RFC3339Nano, envelope.Timestamp)
	if err != nil {
		slog.Error("Error parsing remote timestamp", "receipt_id", c.receiptID, "error", err)
		return
	}

	c.mu.Lock()
	if !stamp.After(c.lastApplied) {
		c.mu.Unlock()
		return
	}
	c.state = c.state.Merge(*envelope.Changes)
	c.lastApplied = stamp
	c.mu.Unlock()

	c.notify()
}

// Flush cancels any pending debounce timer and saves immediately.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.mu.Unlock()
	return c.save(ctx)
}

// Close stops the pending save timer without flushing.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
}

// scheduleSaveLocked (re)starts the debounce timer; an edit arriving
// before it fires replaces the previous timer. Caller holds c.mu.
func (c *Client) scheduleSaveLocked() {
	if c.persister == nil {
		return
	}
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(c.debounce, func() {
		if err := c.save(context.Background()); err != nil {
			slog.Error("Auto-save failed", "receipt_id", c.receiptID, "error", err)
		}
	})
}

// save persists the complete current field set as one update. There is
// no automatic retry of a failed attempt; the next edit's debounce is the
// next chance.
func (c *Client) save(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}

	c.mu.Lock()
	fields := c.state.Fields(c.name)
	c.mu.Unlock()

	_, err := c.persister.Save(ctx, fields)

	c.mu.Lock()
	c.saveErr = err
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

func (c *Client) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}
