package calculator

import (
	"math"
	"testing"

	"github.com/tabsync/tabsync/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

func TestItemTotal(t *testing.T) {
	gst := []models.TaxRate{{ID: 1, Name: "GST", Rate: 5}}

	tests := []struct {
		name       string
		item       models.Item
		taxRates   []models.TaxRate
		tipPercent float64
		want       float64
	}{
		{
			name:       "burger with GST and 20 percent tip",
			item:       models.Item{Name: "Burger", Price: 10.00, Quantity: 1, ApplicableTaxes: map[int]bool{1: true}},
			taxRates:   gst,
			tipPercent: 20,
			// 10.00 + 0.50 tax = 10.50, +20% tip = 12.60
			want: 12.60,
		},
		{
			name:       "tax flagged off",
			item:       models.Item{Name: "Water", Price: 2.00, ApplicableTaxes: map[int]bool{1: false}},
			taxRates:   gst,
			tipPercent: 0,
			want:       2.00,
		},
		{
			name: "multiple taxes stack on base price",
			item: models.Item{Name: "Wine", Price: 20.00, ApplicableTaxes: map[int]bool{1: true, 2: true}},
			taxRates: []models.TaxRate{
				{ID: 1, Name: "GST", Rate: 5},
				{ID: 2, Name: "PLT", Rate: 10},
			},
			tipPercent: 0,
			// 20 + 1.00 + 2.00
			want: 23.00,
		},
		{
			name:       "quantity is display-only",
			item:       models.Item{Name: "Beer", Price: 6.00, Quantity: 4},
			tipPercent: 0,
			want:       6.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemTotal(tt.item, tt.taxRates, tt.tipPercent)
			if !almostEqual(got, tt.want) {
				t.Errorf("ItemTotal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGrandTotalScenario(t *testing.T) {
	// Dinner: one burger, GST 5%, 20% tip. Expected 12.60.
	items := []models.Item{
		{Name: "Burger", Price: 10.00, Quantity: 1, ApplicableTaxes: map[int]bool{1: true}},
	}
	taxRates := []models.TaxRate{{ID: 1, Name: "GST", Rate: 5}}
	tip := models.TipConfig{IsPercentage: true, Value: 20}

	if got := GrandTotal(items, taxRates, tip); !almostEqual(got, 12.60) {
		t.Errorf("GrandTotal() = %v, want 12.60", got)
	}

	breakdown := TaxBreakdown(items, taxRates)
	if !almostEqual(breakdown[1], 0.50) {
		t.Errorf("TaxBreakdown()[1] = %v, want 0.50", breakdown[1])
	}
}

func TestPersonShares(t *testing.T) {
	taxRates := []models.TaxRate{{ID: 1, Name: "GST", Rate: 5}}
	tip := models.TipConfig{IsPercentage: true, Value: 20}

	t.Run("two people split the burger evenly", func(t *testing.T) {
		items := []models.Item{
			{Name: "Burger", Price: 10.00, Quantity: 1, ApplicableTaxes: map[int]bool{1: true}, AssignedPeople: []string{"Alice", "Bob"}},
		}

		shares, err := PersonShares(items, taxRates, tip, []string{"Alice", "Bob"})
		if err != nil {
			t.Fatalf("PersonShares failed: %v", err)
		}

		for _, person := range []string{"Alice", "Bob"} {
			if !almostEqual(shares[person].Total, 6.30) {
				t.Errorf("%s total = %v, want 6.30", person, shares[person].Total)
			}
		}
	})

	t.Run("unassigned items contribute nothing", func(t *testing.T) {
		items := []models.Item{
			{Name: "Salad", Price: 8.00, AssignedPeople: nil},
		}

		shares, err := PersonShares(items, taxRates, tip, []string{"Alice"})
		if err != nil {
			t.Fatalf("PersonShares failed: %v", err)
		}
		if shares["Alice"].Total != 0 {
			t.Errorf("Alice total = %v, want 0", shares["Alice"].Total)
		}
	})

	t.Run("participants without items still appear", func(t *testing.T) {
		items := []models.Item{
			{Name: "Steak", Price: 30.00, AssignedPeople: []string{"Alice"}},
		}

		shares, err := PersonShares(items, nil, models.TipConfig{}, []string{"Alice", "Bob"})
		if err != nil {
			t.Fatalf("PersonShares failed: %v", err)
		}
		if _, ok := shares["Bob"]; !ok {
			t.Fatal("Expected Bob to appear in shares")
		}
		if shares["Bob"].Total != 0 {
			t.Errorf("Bob total = %v, want 0", shares["Bob"].Total)
		}
		if !almostEqual(shares["Alice"].Total, 30.00) {
			t.Errorf("Alice total = %v, want 30.00", shares["Alice"].Total)
		}
	})

	t.Run("no participants errors", func(t *testing.T) {
		if _, err := PersonShares(nil, nil, models.TipConfig{}, nil); err == nil {
			t.Error("Expected error for empty participants")
		}
	})
}

func TestTipPercent(t *testing.T) {
	tests := []struct {
		name     string
		tip      models.TipConfig
		subtotal float64
		want     float64
	}{
		{"percentage passes through", models.TipConfig{IsPercentage: true, Value: 20}, 50, 20},
		{"fixed amount converts against subtotal", models.TipConfig{IsPercentage: false, Value: 5}, 50, 10},
		{"fixed amount on zero subtotal", models.TipConfig{IsPercentage: false, Value: 5}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TipPercent(tt.tip, tt.subtotal); !almostEqual(got, tt.want) {
				t.Errorf("TipPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}
