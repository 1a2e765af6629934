package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"example.com/attribution/internal/domain"
)

// Operation names used as the first component of a DedupKey.
const (
	OpRecordLinkClick = "recordLinkClick"
	OpRecordCartEvent = "recordCartEvent"
	OpRecordFmEvent   = "recordFmEvent"
	OpRecordPageEvent = "recordPageEvent"
)

// DedupKey identifies one logical event from one origin.
// EventType is empty for operations keyed only on (ip, subject).
type DedupKey struct {
	Operation string
	IP        string
	SubjectID string
	EventType domain.EventType
}

// String returns the readable composite form, e.g. "recordLinkClick|1.2.3.4|L1".
func (k DedupKey) String() string {
	parts := []string{k.Operation, k.IP, k.SubjectID}
	if k.EventType != "" {
		parts = append(parts, string(k.EventType))
	}
	return strings.Join(parts, "|")
}

// Derive returns a stable fixed-length key for the limiter store.
// A hex SHA-256 keeps store keys bounded whatever the IP or id lengths are.
func (k DedupKey) Derive() string {
	sum := sha256.Sum256([]byte(k.String()))
	return "dedup:" + k.Operation + ":" + hex.EncodeToString(sum[:])
}
