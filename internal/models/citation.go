package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// Citation is a deduplicated, stable reference back to a source locator.
// Two chunks with equal locators always resolve to the same citation ID.
// Ordinal is the 1-based position in first-cited order within a run, so a
// "[3]"-style marker means the same source everywhere in one output.
type Citation struct {
	ID          string  `json:"id" db:"id"`
	Ordinal     int     `json:"ordinal" db:"ordinal"`
	DisplayText string  `json:"display_text" db:"display_text"`
	Locator     Locator `json:"locator"`
}

// CitationID returns the stable citation ID for a locator: a SHA-256 over
// its canonical key.
func CitationID(loc Locator) string {
	h := sha256.Sum256([]byte(loc.Key()))
	return hex.EncodeToString(h[:])
}
