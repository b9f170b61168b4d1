// Package collab implements the client-side state synchronizer for a
// shared receipt: optimistic local edits, changed-field broadcasts over
// the relay channel, debounced persistence, and last-writer-wins merging
// of remote edits by server timestamp.
package collab

import (
	"fmt"

	"github.com/tabsync/tabsync/internal/models"
)

// State is a client's local copy of the shared receipt document. Edits
// never mutate a State in place; every operation returns a Patch that
// Merge applies onto a fresh copy.
type State struct {
	People    []string          `json:"people"`
	Items     []models.Item     `json:"items"`
	TaxRates  []models.TaxRate  `json:"taxRates"`
	NextTaxID int               `json:"nextTaxId"`
	TipConfig models.TipConfig  `json:"tipConfig"`
	ImageURL  string            `json:"currentImageUrl,omitempty"`
	ImageType string            `json:"currentFileType,omitempty"`
}

// Patch is a changed-fields subset of State: nil fields are untouched by
// Merge, set fields replace wholesale. This is the payload broadcast to
// sibling clients.
type Patch struct {
	People    *[]string         `json:"people,omitempty"`
	Items     *[]models.Item    `json:"items,omitempty"`
	TaxRates  *[]models.TaxRate `json:"taxRates,omitempty"`
	NextTaxID *int              `json:"nextTaxId,omitempty"`
	TipConfig *models.TipConfig `json:"tipConfig,omitempty"`
	ImageURL  *string           `json:"currentImageUrl,omitempty"`
	ImageType *string           `json:"currentFileType,omitempty"`
}

// DefaultState is the starting state for a fresh, unsaved receipt: the
// two-entry starter tax set and a 20% tip.
func DefaultState() State {
	return State{
		People: []string{},
		Items:  []models.Item{},
		TaxRates: []models.TaxRate{
			{ID: 1, Name: "GST", Rate: 5.00},
			{ID: 2, Name: "PLT", Rate: 10.00},
		},
		NextTaxID: 3,
		TipConfig: models.TipConfig{IsPercentage: true, Value: 20.00},
	}
}

// StateFromReceipt builds local state from a freshly fetched document.
// NextTaxID is recomputed as one past the highest configured tax id, so
// the counter stays ahead of every id even after a full reload.
func StateFromReceipt(receipt *models.Receipt) State {
	maxID := 0
	for _, rate := range receipt.TaxRates {
		if rate.ID > maxID {
			maxID = rate.ID
		}
	}
	return State{
		People:    receipt.People,
		Items:     receipt.Items,
		TaxRates:  receipt.TaxRates,
		NextTaxID: maxID + 1,
		TipConfig: receipt.TipConfig,
		ImageURL:  receipt.ImageURL,
		ImageType: receipt.ImageType,
	}
}

// Fields converts the state to the full mutable field set for a persisted
// save. Name is carried separately because it is not part of the
// collaborative state.
func (s State) Fields(name string) models.ReceiptFields {
	return models.ReceiptFields{
		Name:      name,
		ImageURL:  s.ImageURL,
		ImageType: s.ImageType,
		Items:     s.Items,
		People:    s.People,
		TaxRates:  s.TaxRates,
		TipConfig: s.TipConfig,
	}
}

// Merge returns a copy of the state with the patch's set fields replaced
// wholesale. There is no field-level reconciliation: a set field wins in
// its entirety.
func (s State) Merge(p Patch) State {
	next := s
	if p.People != nil {
		next.People = *p.People
	}
	if p.Items != nil {
		next.Items = *p.Items
	}
	if p.TaxRates != nil {
		next.TaxRates = *p.TaxRates
	}
	if p.NextTaxID != nil {
		next.NextTaxID = *p.NextTaxID
	}
	if p.TipConfig != nil {
		next.TipConfig = *p.TipConfig
	}
	if p.ImageURL != nil {
		next.ImageURL = *p.ImageURL
	}
	if p.ImageType != nil {
		next.ImageType = *p.ImageType
	}
	return next
}

// AddPerson returns the patch adding a participant. Adding an empty or
// duplicate name is a no-op (reported by ok=false).
func (s State) AddPerson(name string) (Patch, bool) {
	if name == "" {
		return Patch{}, false
	}
	for _, person := range s.People {
		if person == name {
			return Patch{}, false
		}
	}
	people := append(cloneStrings(s.People), name)
	return Patch{People: &people}, true
}

// RemovePerson returns the patch removing a participant and, in the same
// cycle, removing them from every item's assignment set.
func (s State) RemovePerson(name string) Patch {
	people := make([]string, 0, len(s.People))
	for _, person := range s.People {
		if person != name {
			people = append(people, person)
		}
	}

	items := make([]models.Item, len(s.Items))
	for i, item := range s.Items {
		items[i] = cloneItem(item)
		assigned := items[i].AssignedPeople[:0]
		for _, person := range items[i].AssignedPeople {
			if person != name {
				assigned = append(assigned, person)
			}
		}
		items[i].AssignedPeople = assigned
	}

	return Patch{People: &people, Items: &items}
}

// AddItem returns the patch appending a new item. A nil applicable-taxes
// map is seeded with an explicit false flag per configured tax.
func (s State) AddItem(item models.Item) Patch {
	if item.ApplicableTaxes == nil {
		item.ApplicableTaxes = make(map[int]bool, len(s.TaxRates))
		for _, rate := range s.TaxRates {
			item.ApplicableTaxes[rate.ID] = false
		}
	}
	if item.AssignedPeople == nil {
		item.AssignedPeople = []string{}
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	items := append(cloneItems(s.Items), item)
	return Patch{Items: &items}
}

// UpdateItem returns the patch replacing the item at index. Out-of-range
// indexes are a no-op.
func (s State) UpdateItem(index int, item models.Item) (Patch, bool) {
	if index < 0 || index >= len(s.Items) {
		return Patch{}, false
	}
	items := cloneItems(s.Items)
	items[index] = item
	return Patch{Items: &items}, true
}

// RemoveItem returns the patch dropping the item at index.
func (s State) RemoveItem(index int) (Patch, bool) {
	if index < 0 || index >= len(s.Items) {
		return Patch{}, false
	}
	items := append(cloneItems(s.Items[:index]), cloneItems(s.Items[index+1:])...)
	return Patch{Items: &items}, true
}

// AddTaxRate returns the patch appending a new zero-rate tax with the next
// monotonic id, seeding a false flag for it on every item.
func (s State) AddTaxRate() Patch {
	rate := models.TaxRate{
		ID:   s.NextTaxID,
		Name: fmt.Sprintf("Tax %d", len(s.TaxRates)+1),
		Rate: 0,
	}
	taxRates := append(cloneTaxRates(s.TaxRates), rate)
	nextID := s.NextTaxID + 1

	items := cloneItems(s.Items)
	for i := range items {
		if items[i].ApplicableTaxes == nil {
			items[i].ApplicableTaxes = map[int]bool{}
		}
		items[i].ApplicableTaxes[rate.ID] = false
	}

	return Patch{TaxRates: &taxRates, NextTaxID: &nextID, Items: &items}
}

// RemoveTaxRate returns the patch dropping a configured tax and, in the
// same cycle, deleting its key from every item so no dangling references
// survive.
func (s State) RemoveTaxRate(taxID int) Patch {
	taxRates := make([]models.TaxRate, 0, len(s.TaxRates))
	for _, rate := range s.TaxRates {
		if rate.ID != taxID {
			taxRates = append(taxRates, rate)
		}
	}

	items := cloneItems(s.Items)
	for i := range items {
		delete(items[i].ApplicableTaxes, taxID)
	}

	return Patch{TaxRates: &taxRates, Items: &items}
}

// UpdateTaxRate returns the patch changing a configured tax's name or
// rate. An unknown id is a no-op.
func (s State) UpdateTaxRate(taxID int, name string, rate float64) (Patch, bool) {
	found := false
	taxRates := cloneTaxRates(s.TaxRates)
	for i := range taxRates {
		if taxRates[i].ID == taxID {
			taxRates[i].Name = name
			taxRates[i].Rate = rate
			found = true
		}
	}
	if !found {
		return Patch{}, false
	}
	return Patch{TaxRates: &taxRates}, true
}

// ToggleItemTax returns the patch flipping one tax flag on one item.
func (s State) ToggleItemTax(index, taxID int) (Patch, bool) {
	if index < 0 || index >= len(s.Items) {
		return Patch{}, false
	}
	items := cloneItems(s.Items)
	if items[index].ApplicableTaxes == nil {
		items[index].ApplicableTaxes = map[int]bool{}
	}
	items[index].ApplicableTaxes[taxID] = !items[index].ApplicableTaxes[taxID]
	return Patch{Items: &items}, true
}

// ToggleAssignment returns the patch adding or removing one person from
// one item's assignment set.
func (s State) ToggleAssignment(index int, person string) (Patch, bool) {
	if index < 0 || index >= len(s.Items) {
		return Patch{}, false
	}
	items := cloneItems(s.Items)

	assigned := items[index].AssignedPeople
	for i, existing := range assigned {
		if existing == person {
			items[index].AssignedPeople = append(assigned[:i:i], assigned[i+1:]...)
			return Patch{Items: &items}, true
		}
	}
	items[index].AssignedPeople = append(assigned, person)
	return Patch{Items: &items}, true
}

// SetTipConfig returns the patch replacing the tip configuration.
func (s State) SetTipConfig(tip models.TipConfig) Patch {
	return Patch{TipConfig: &tip}
}

// SetImage returns the patch replacing the uploaded file reference.
func (s State) SetImage(url, fileType string) Patch {
	return Patch{ImageURL: &url, ImageType: &fileType}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTaxRates(in []models.TaxRate) []models.TaxRate {
	out := make([]models.TaxRate, len(in))
	copy(out, in)
	return out
}

func cloneItem(item models.Item) models.Item {
	clone := item
	clone.AssignedPeople = cloneStrings(item.AssignedPeople)
	if item.ApplicableTaxes != nil {
		clone.ApplicableTaxes = make(map[int]bool, len(item.ApplicableTaxes))
		for id, applies := range item.ApplicableTaxes {
			clone.ApplicableTaxes[id] = applies
		}
	}
	return clone
}

func cloneItems(in []models.Item) []models.Item {
	out := make([]models.Item, len(in))
	for i, item := range in {
		out[i] = cloneItem(item)
	}
	return out
}
