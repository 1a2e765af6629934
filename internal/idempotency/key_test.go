package idempotency

import (
	"strings"
	"testing"

	"example.com/attribution/internal/domain"
)

func TestDedupKeyString(t *testing.T) {
	tests := []struct {
		key  DedupKey
		want string
	}{
		{DedupKey{Operation: OpRecordLinkClick, IP: "1.2.3.4", SubjectID: "L1"}, "recordLinkClick|1.2.3.4|L1"},
		{DedupKey{Operation: OpRecordCartEvent, IP: "1.2.3.4", SubjectID: "C1", EventType: domain.CartAddBump}, "recordCartEvent|1.2.3.4|C1|cart/addBump"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDeriveIsStableAndDistinct(t *testing.T) {
	a := DedupKey{Operation: OpRecordCartEvent, IP: "1.2.3.4", SubjectID: "C1", EventType: domain.CartAddBump}
	b := a
	b.EventType = domain.CartRemoveBump

	if a.Derive() != a.Derive() {
		t.Error("expected Derive to be deterministic")
	}
	if a.Derive() == b.Derive() {
		t.Error("expected different event types to derive different keys")
	}
	if !strings.HasPrefix(a.Derive(), "dedup:recordCartEvent:") {
		t.Errorf("unexpected prefix: %s", a.Derive())
	}
	// "dedup:" + op + ":" + 64 hex chars
	if want := len("dedup:recordCartEvent:") + 64; len(a.Derive()) != want {
		t.Errorf("expected length %d, got %d", want, len(a.Derive()))
	}
}
