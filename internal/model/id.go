package model

import (
	"strings"

	"github.com/google/uuid"
)

// ledgerNamespace scopes the name-based UUIDs generated for ledger records.
var ledgerNamespace = uuid.MustParse("6f1c9a52-3b8e-4d3f-9a57-2c1e8b7d4f10")

// NewRecordID derives a stable UUIDv5 from parts. Importing the same broker row twice
// yields the same id, which is what makes re-imports deduplicate.
func NewRecordID(parts ...string) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
