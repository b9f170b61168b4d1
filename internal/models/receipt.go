package models

// Receipt represents a shared bill document: the uploaded receipt image
// reference, its line items, the people splitting it, and the configured
// taxes and tip.
type Receipt struct {
	// ID is the unique identifier for the receipt (UUID format).
	// Assigned by the store at creation, immutable.
	ID string `json:"id"`

	// AccessToken is the public share credential (UUID v4, 122 bits of
	// randomness). Possession of the token is the only requirement for
	// read/write access via the share path.
	AccessToken string `json:"access_token"`

	// Name is the human-readable label for the receipt.
	Name string `json:"name"`

	// ImageURL references the externally-stored uploaded file, if any.
	ImageURL string `json:"image_url,omitempty"`

	// ImageType is the MIME type of the uploaded file, if any.
	ImageType string `json:"image_type,omitempty"`

	// Items are the line items on the receipt, in display order.
	Items []Item `json:"items"`

	// People are the participant names splitting the receipt.
	// Insertion order is preserved for display; uniqueness is enforced
	// by the sync client, not the store.
	People []string `json:"people"`

	// TaxRates are the configured taxes, in display order.
	TaxRates []TaxRate `json:"tax_rates"`

	// TipConfig is the tip setting for the whole receipt.
	TipConfig TipConfig `json:"tip_config"`

	// CreatedAt is the Unix timestamp when the receipt was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last persisted write.
	UpdatedAt int64 `json:"updated_at"`
}

// Item represents a single line item on a receipt.
type Item struct {
	// Name is the description of the item (e.g., "Burger").
	Name string `json:"name"`

	// Price is the line's base amount. It is already the full line price;
	// Quantity is informational only and never multiplied in.
	Price float64 `json:"price"`

	// Quantity is display-only metadata from the printed receipt.
	Quantity int `json:"quantity"`

	// ApplicableTaxes maps a configured TaxRate id to whether that tax
	// applies to this line. Every key must reference a currently
	// configured tax rate.
	ApplicableTaxes map[int]bool `json:"applicable_taxes"`

	// AssignedPeople are the participants splitting this item, drawn from
	// the receipt's People. If multiple people are assigned, the item
	// total is split equally among them.
	AssignedPeople []string `json:"assigned_people"`
}

// TaxRate is one configured tax on a receipt.
type TaxRate struct {
	// ID is unique within a receipt, monotonically assigned by the
	// sync client's per-receipt counter.
	ID int `json:"id"`

	// Name is the display name (e.g., "GST").
	Name string `json:"name"`

	// Rate is the tax percentage, 0-100.
	Rate float64 `json:"rate"`
}

// TipConfig is the tip setting for a receipt.
type TipConfig struct {
	// IsPercentage selects how Value is interpreted.
	IsPercentage bool `json:"is_percentage"`

	// Value is a percentage (0-100) when IsPercentage is true, otherwise
	// an absolute currency amount.
	Value float64 `json:"value"`
}

// ReceiptFields is the mutable field set of a Receipt, used by create and
// update. Updates replace every field wholesale: callers must send the
// complete current field set, not a delta; omitted fields are written as
// their empty defaults.
type ReceiptFields struct {
	Name      string    `json:"name"`
	ImageURL  string    `json:"image_url,omitempty"`
	ImageType string    `json:"image_type,omitempty"`
	Items     []Item    `json:"items"`
	People    []string  `json:"people"`
	TaxRates  []TaxRate `json:"tax_rates"`
	TipConfig TipConfig `json:"tip_config"`
}

// Fields returns the receipt's mutable field set.
func (r *Receipt) Fields() ReceiptFields {
	return ReceiptFields{
		Name:      r.Name,
		ImageURL:  r.ImageURL,
		ImageType: r.ImageType,
		Items:     r.Items,
		People:    r.People,
		TaxRates:  r.TaxRates,
		TipConfig: r.TipConfig,
	}
}
