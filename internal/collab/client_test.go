package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tabsync/tabsync/internal/models"
)

// fakeSender records outgoing envelopes.
type fakeSender struct {
	mu        sync.Mutex
	envelopes []Envelope
	err       error
}

func (f *fakeSender) Send(envelope Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envelopes = append(f.envelopes, envelope)
	return nil
}

func (f *fakeSender) sent() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.envelopes))
	copy(out, f.envelopes)
	return out
}

// fakePersister records saves and can be set to fail.
type fakePersister struct {
	mu      sync.Mutex
	receipt *models.Receipt
	saves   []models.ReceiptFields
	loadErr error
	saveErr error
}

func (f *fakePersister) Load(ctx context.Context) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.receipt, nil
}

func (f *fakePersister) Save(ctx context.Context, fields models.ReceiptFields) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saves = append(f.saves, fields)
	return f.receipt, nil
}

func (f *fakePersister) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func TestLocalEditBroadcasts(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient("receipt-1", sender, nil)

	client.AddPerson("Alice")
	client.AddPerson("Bob")

	sent := sender.sent()
	if len(sent) != 2 {
		t.Fatalf("Sent %d envelopes, want 2", len(sent))
	}
	for _, envelope := range sent {
		if envelope.Type != "state_update" {
			t.Errorf("Type = %q, want state_update", envelope.Type)
		}
		if envelope.ReceiptID != "receipt-1" {
			t.Errorf("ReceiptID = %q, want receipt-1", envelope.ReceiptID)
		}
		if envelope.UserID != client.SessionID() {
			t.Errorf("UserID = %q, want the stable session id %q", envelope.UserID, client.SessionID())
		}
		if envelope.Changes == nil || envelope.Changes.People == nil {
			t.Error("Expected the changed people field in the payload")
		}
	}

	// One session id assigned at open, not regenerated per message.
	if sent[0].UserID != sent[1].UserID {
		t.Error("Session id changed between messages")
	}
}

func TestLastWriterWins(t *testing.T) {
	client := NewClient("receipt-1", nil, nil)
	client.AddPerson("Alice")

	mark := client.LastApplied()
	older := []string{"Older"}
	newer := []string{"Newer"}

	t.Run("older remote message is discarded", func(t *testing.T) {
		client.HandleRemote(Envelope{
			Type:      "state_update",
			ReceiptID: "receipt-1",
			Changes:   &Patch{People: &older},
			Timestamp: mark.Add(-time.Second).Format(time.RFC3339Nano),
		})

		if got := client.State().People; len(got) != 1 || got[0] != "Alice" {
			t.Errorf("State changed by stale message: %v", got)
		}
		if !client.LastApplied().Equal(mark) {
			t.Error("Last-applied mark advanced on a discarded message")
		}
	})

	t.Run("equal timestamp is discarded", func(t *testing.T) {
		client.HandleRemote(Envelope{
			Type:      "state_update",
			ReceiptID: "receipt-1",
			Changes:   &Patch{People: &older},
			Timestamp: mark.Format(time.RFC3339Nano),
		})
		if got := client.State().People; got[0] != "Alice" {
			t.Errorf("State changed by equal-stamped message: %v", got)
		}
	})

	t.Run("newer remote message is applied", func(t *testing.T) {
		stamp := mark.Add(time.Second)
		client.HandleRemote(Envelope{
			Type:      "state_update",
			ReceiptID: "receipt-1",
			Changes:   &Patch{People: &newer},
			Timestamp: stamp.Format(time.RFC3339Nano),
		})

		if got := client.State().People; len(got) != 1 || got[0] != "Newer" {
			t.Errorf("Expected newer message applied, got %v", got)
		}
		if !client.LastApplied().Equal(stamp) {
			t.Errorf("Last-applied = %v, want %v", client.LastApplied(), stamp)
		}
	})

	t.Run("other receipts and malformed stamps are ignored", func(t *testing.T) {
		before := client.State().People
		client.HandleRemote(Envelope{
			Type:      "state_update",
			ReceiptID: "receipt-2",
			Changes:   &Patch{People: &older},
			Timestamp: time.Now().Add(time.Hour).Format(time.RFC3339Nano),
		})
		client.HandleRemote(Envelope{
			Type:      "state_update",
			ReceiptID: "receipt-1",
			Changes:   &Patch{People: &older},
			Timestamp: "not-a-time",
		})
		if got := client.State().People; got[0] != before[0] {
			t.Errorf("State changed by message that should be ignored: %v", got)
		}
	})
}

func TestDebouncedSaveCoalesces(t *testing.T) {
	persister := &fakePersister{receipt: &models.Receipt{ID: "receipt-1", Name: "Dinner"}}
	client := NewClient("receipt-1", nil, persister, WithDebounce(50*time.Millisecond))
	defer client.Close()

	client.AddPerson("Alice")
	client.AddPerson("Bob")
	client.AddItem(models.Item{Name: "Burger", Price: 10})

	if persister.saveCount() != 0 {
		t.Fatal("Save fired before the quiet period")
	}

	waitFor(t, func() bool { return persister.saveCount() == 1 })
	time.Sleep(100 * time.Millisecond)
	if got := persister.saveCount(); got != 1 {
		t.Errorf("Saves = %d, want exactly 1 coalesced save", got)
	}

	persister.mu.Lock()
	saved := persister.saves[0]
	persister.mu.Unlock()
	if len(saved.People) != 2 || len(saved.Items) != 1 {
		t.Errorf("Save did not carry the latest full state: %+v", saved)
	}
}

func TestEphemeralModeNeverSaves(t *testing.T) {
	client := NewClient("", &fakeSender{}, nil, WithDebounce(10*time.Millisecond))
	client.AddPerson("Alice")

	time.Sleep(50 * time.Millisecond)
	// No persister: nothing to assert beyond not panicking, and Flush is a no-op.
	if err := client.Flush(context.Background()); err != nil {
		t.Errorf("Flush in ephemeral mode = %v, want nil", err)
	}
}

func TestSaveFailureSurfacesAndIsNotRetried(t *testing.T) {
	persister := &fakePersister{receipt: &models.Receipt{ID: "receipt-1"}, saveErr: errors.New("store down")}
	client := NewClient("receipt-1", nil, persister, WithDebounce(10*time.Millisecond))
	defer client.Close()

	client.AddPerson("Alice")
	waitFor(t, func() bool { return client.Err() != nil })

	// No automatic retry of the failed attempt.
	count := persister.saveCount()
	time.Sleep(50 * time.Millisecond)
	if persister.saveCount() != count {
		t.Error("Failed save was retried without a new edit")
	}

	// The next edit schedules the next attempt; success clears the error.
	persister.mu.Lock()
	persister.saveErr = nil
	persister.mu.Unlock()

	client.AddPerson("Bob")
	waitFor(t, func() bool { return persister.saveCount() == 1 })
	waitFor(t, func() bool { return client.Err() == nil })

	persister.mu.Lock()
	saved := persister.saves[0]
	persister.mu.Unlock()
	if len(saved.People) != 2 {
		t.Errorf("Local edits lost across failed save: %v", saved.People)
	}
}

func TestLoadReplacesStateWholesale(t *testing.T) {
	persister := &fakePersister{receipt: &models.Receipt{
		ID:       "receipt-1",
		Name:     "Dinner",
		People:   []string{"Alice"},
		Items:    []models.Item{{Name: "Burger", Price: 10, ApplicableTaxes: map[int]bool{5: true}}},
		TaxRates: []models.TaxRate{{ID: 5, Name: "GST", Rate: 5}},
		TipConfig: models.TipConfig{
			IsPercentage: false,
			Value:        7,
		},
	}}
	client := NewClient("receipt-1", nil, persister)

	// Local scratch state that must not survive the load.
	client.AddPerson("Ghost")

	if err := client.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	state := client.State()
	if len(state.People) != 1 || state.People[0] != "Alice" {
		t.Errorf("People = %v, want wholesale replacement with [Alice]", state.People)
	}
	if state.NextTaxID != 6 {
		t.Errorf("NextTaxID = %d, want max+1 = 6", state.NextTaxID)
	}
	if state.TipConfig.IsPercentage || state.TipConfig.Value != 7 {
		t.Errorf("TipConfig = %+v, want loaded fixed tip", state.TipConfig)
	}
}

func TestLoadFailureSurfaces(t *testing.T) {
	persister := &fakePersister{loadErr: errors.New("store down")}
	client := NewClient("receipt-1", nil, persister)

	if err := client.Load(context.Background()); err == nil {
		t.Error("Expected load failure to surface")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}
