// Package models defines the core domain models for tabsync.
//
// # Models
//
//   - Receipt: the shared bill document: image reference, items, people,
//     taxes, tip
//   - Item: a single line item, assignable to one or more people
//   - TaxRate: a configured tax with a per-receipt id
//   - TipConfig: percentage or fixed-amount tip setting
//   - ReceiptFields: the mutable field set used by create/update
//
// Participants are identified by name strings; there are no user accounts.
// The only credentials in the system are the owner IP allowlist and the
// receipt's high-entropy access token.
//
// # Design Principles
//
//  1. **Whole-document writes**: updates replace the complete mutable field
//     set; there is no partial-patch protocol
//  2. **Client-enforced invariants**: people uniqueness, tax id monotonicity
//     and referential cleanup live in the sync client, not the store
//  3. **Avoid circular references**: items reference people and tax rates by
//     name/id, never by pointer
package models
