// Package calculator computes receipt totals and per-person shares.
//
// An item's price is already the full line amount (quantity is display-only
// and never multiplied in). Each configured tax applies to the lines that
// flag it; tip is applied on top of the taxed amount.
package calculator

import (
	"fmt"

	"github.com/tabsync/tabsync/internal/models"
)

// PersonShare is one person's calculated share of a receipt.
type PersonShare struct {
	// Subtotal is the sum of this person's shares of item base prices.
	Subtotal float64

	// Tax is this person's share of the taxes on their items.
	Tax float64

	// Tip is this person's share of the tip.
	Tip float64

	// Total is the final amount this person owes.
	Total float64
}

// Subtotal sums the base prices of all items.
func Subtotal(items []models.Item) float64 {
	var subtotal float64
	for _, item := range items {
		subtotal += item.Price
	}
	return subtotal
}

// ItemTax sums the configured taxes that apply to the item.
func ItemTax(item models.Item, taxRates []models.TaxRate) float64 {
	var tax float64
	for _, rate := range taxRates {
		if item.ApplicableTaxes[rate.ID] {
			tax += item.Price * (rate.Rate / 100)
		}
	}
	return tax
}

// TipPercent resolves the tip configuration to an effective percentage.
// A fixed-amount tip is converted against the receipt subtotal so it can
// be distributed across items proportionally.
func TipPercent(tip models.TipConfig, subtotal float64) float64 {
	if tip.IsPercentage {
		return tip.Value
	}
	if subtotal == 0 {
		return 0
	}
	return (tip.Value / subtotal) * 100
}

// ItemTotal is the item's base price plus its applicable taxes plus its
// share of the tip.
func ItemTotal(item models.Item, taxRates []models.TaxRate, tipPercent float64) float64 {
	withTax := item.Price + ItemTax(item, taxRates)
	return withTax + withTax*(tipPercent/100)
}

// ItemTotalPerPerson is the item total split equally across its assigned
// people. An unassigned item contributes zero.
func ItemTotalPerPerson(item models.Item, taxRates []models.TaxRate, tipPercent float64) float64 {
	if len(item.AssignedPeople) == 0 {
		return 0
	}
	return ItemTotal(item, taxRates, tipPercent) / float64(len(item.AssignedPeople))
}

// GrandTotal is the sum of all item totals: subtotal + taxes + tip.
func GrandTotal(items []models.Item, taxRates []models.TaxRate, tip models.TipConfig) float64 {
	tipPercent := TipPercent(tip, Subtotal(items))
	var total float64
	for _, item := range items {
		total += ItemTotal(item, taxRates, tipPercent)
	}
	return total
}

// TaxBreakdown returns the total collected per configured tax, keyed by
// tax id.
func TaxBreakdown(items []models.Item, taxRates []models.TaxRate) map[int]float64 {
	breakdown := make(map[int]float64, len(taxRates))
	for _, rate := range taxRates {
		breakdown[rate.ID] = 0
	}
	for _, item := range items {
		for _, rate := range taxRates {
			if item.ApplicableTaxes[rate.ID] {
				breakdown[rate.ID] += item.Price * (rate.Rate / 100)
			}
		}
	}
	return breakdown
}

// PersonShares computes each participant's share of the receipt. Every
// participant appears in the result, including those with no assigned
// items. Items assigned to multiple people are split equally.
func PersonShares(items []models.Item, taxRates []models.TaxRate, tip models.TipConfig, people []string) (map[string]*PersonShare, error) {
	if len(people) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}

	shares := make(map[string]*PersonShare, len(people))
	for _, person := range people {
		shares[person] = &PersonShare{}
	}

	tipPercent := TipPercent(tip, Subtotal(items))
	for _, item := range items {
		if len(item.AssignedPeople) == 0 {
			continue
		}

		n := float64(len(item.AssignedPeople))
		basePer := item.Price / n
		taxPer := ItemTax(item, taxRates) / n
		tipPer := (item.Price + ItemTax(item, taxRates)) * (tipPercent / 100) / n

		for _, person := range item.AssignedPeople {
			share, exists := shares[person]
			if !exists {
				// Assignment to someone outside people; the sync client
				// keeps these sets consistent, so just skip.
				continue
			}
			share.Subtotal += basePer
			share.Tax += taxPer
			share.Tip += tipPer
		}
	}

	for _, share := range shares {
		share.Total = share.Subtotal + share.Tax + share.Tip
	}

	return shares, nil
}
