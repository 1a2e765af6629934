package pii

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"example.com/attribution/internal/domain"
)

var fixedNow = time.UnixMilli(1767225600123)

func TestHashVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a@b.com", "fb98d44ad7501a959f3f4f4a3f004fe2d9e581ea6207e218c4b02c08a4d75adf"},
		{"A@B.com", "fb98d44ad7501a959f3f4f4a3f004fe2d9e581ea6207e218c4b02c08a4d75adf"},
		{"  a@b.com ", "fb98d44ad7501a959f3f4f4a3f004fe2d9e581ea6207e218c4b02c08a4d75adf"},
		{"5551234567", "3c95277da5fd0da6a1a44ee3fdf56d20af6c6d242695a40e18e6e90dc3c5872c"},
		{"Jane", "81f8f6dde88365f3928796ec7aa53f72820b06db8664f5fe76a7eb13e24546a2"},
		{"DOE", "799ef92a11af918e3fb741df42934f3b568ed2d93ac1df74f1b8d41a27932a6f"},
		{"19900101", "d6165fc8037886424321260c0f9c2a76f7d8d545a02f95c70da9952a13299f33"},
		{"F", "252f10c83610ebca1a059c0bae8255eba2f95be4d1d7bcfa89d7248a82d9f111"},
		{"Austin", "c7c1319276e936c8d64f1d5ed80cd8a0cf54e6dea7b0125533eb4163e03a2c11"},
		{"TX", "1b5b9ccb3e8d006a5230de9bda23ff91edc794d4f56410560830b418528e446c"},
		{"78701", "384248b18055777d69403b479d74e10a96ecc6c6dd6f02308684d3d94eaacad1"},
		{"US", "79adb2a2fce5c6ba215fe5f27f532d4e7edbac4b6a5e09e1ef3a08084a904621"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Hash(tt.in); got != tt.want {
			t.Errorf("Hash(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBuildHashedUserDataFullVector(t *testing.T) {
	visitor := domain.VisitorContext{
		IP:        "1.2.3.4",
		UserAgent: domain.UserAgent{UA: "Mozilla/5.0 (X11; Linux x86_64)"},
		Href:      "https://brl.to/abc?utm_source=ig&fbclid=IwAR123",
	}
	extra := &Extra{
		Email: "A@B.com", Phone: "5551234567", FirstName: "Jane", LastName: "Doe",
		DateOfBirth: "19900101", Gender: "f", City: "Austin", State: "TX", Zip: "78701",
		Country: "US", ExternalID: "cust-42", LeadID: "987",
	}

	got := BuildHashedUserData(visitor, extra, fixedNow)
	want := HashedUserData{
		Em:              "fb98d44ad7501a959f3f4f4a3f004fe2d9e581ea6207e218c4b02c08a4d75adf",
		Ph:              "3c95277da5fd0da6a1a44ee3fdf56d20af6c6d242695a40e18e6e90dc3c5872c",
		Fn:              "81f8f6dde88365f3928796ec7aa53f72820b06db8664f5fe76a7eb13e24546a2",
		Ln:              "799ef92a11af918e3fb741df42934f3b568ed2d93ac1df74f1b8d41a27932a6f",
		Db:              "d6165fc8037886424321260c0f9c2a76f7d8d545a02f95c70da9952a13299f33",
		Ge:              "252f10c83610ebca1a059c0bae8255eba2f95be4d1d7bcfa89d7248a82d9f111",
		Ct:              "c7c1319276e936c8d64f1d5ed80cd8a0cf54e6dea7b0125533eb4163e03a2c11",
		St:              "1b5b9ccb3e8d006a5230de9bda23ff91edc794d4f56410560830b418528e446c",
		Zp:              "384248b18055777d69403b479d74e10a96ecc6c6dd6f02308684d3d94eaacad1",
		Country:         "79adb2a2fce5c6ba215fe5f27f532d4e7edbac4b6a5e09e1ef3a08084a904621",
		ExternalID:      "8a3c5a67cad508582b5edf6b8352cea3ffbad7f44812c1a736b4444c0f5746aa",
		ClientIPAddress: "1.2.3.4",
		ClientUserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		LeadID:          "987",
		Fbc:             "fb.1.1767225600123.IwAR123",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildHashedUserData mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestBuildHashedUserDataIsDeterministic(t *testing.T) {
	v := domain.VisitorContext{IP: "1.2.3.4", Href: "https://x.test/?fbclid=abc"}
	e := &Extra{Email: "a@b.com"}
	if BuildHashedUserData(v, e, fixedNow) != BuildHashedUserData(v, e, fixedNow) {
		t.Error("expected identical output for identical input")
	}
}

func TestAbsentFieldsStayAbsent(t *testing.T) {
	visitor := domain.VisitorContext{
		IP:  "1.2.3.4",
		Geo: domain.Geo{Country: domain.Unknown, City: domain.Unknown, Region: ""},
	}
	got := BuildHashedUserData(visitor, &Extra{Email: "a@b.com"}, fixedNow)

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, absent := range []string{"ph", "fn", "ln", "db", "ge", "ct", "st", "zp", "country", "external_id", "client_user_agent", "lead_id", "fbc"} {
		if _, ok := m[absent]; ok {
			t.Errorf("expected %s to be absent, got %v", absent, m[absent])
		}
	}
	if m["em"] != Hash("a@b.com") {
		t.Errorf("expected em hash, got %v", m["em"])
	}
	if m["client_ip_address"] != "1.2.3.4" {
		t.Errorf("expected raw ip, got %v", m["client_ip_address"])
	}
}

func TestGeographyFallback(t *testing.T) {
	visitor := domain.VisitorContext{IP: "1.2.3.4", Geo: domain.Geo{Country: "US", Region: "TX", City: "Austin"}}

	got := BuildHashedUserData(visitor, nil, fixedNow)
	if got.Country != Hash("us") || got.St != Hash("tx") || got.Ct != Hash("austin") {
		t.Errorf("expected request geography to be hashed, got %+v", got)
	}

	override := BuildHashedUserData(visitor, &Extra{City: "Dallas"}, fixedNow)
	if override.Ct != Hash("dallas") {
		t.Errorf("expected customer city to win, got %s", override.Ct)
	}
}

func TestClickID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://brl.to/abc?fbclid=XYZ", "XYZ"},
		{"https://brl.to/abc?gclid=XYZ", ""},
		{"", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := ClickID(tt.in); got != tt.want {
			t.Errorf("ClickID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	noClick := BuildHashedUserData(domain.VisitorContext{IP: "1.2.3.4", Href: "https://brl.to/abc"}, nil, fixedNow)
	if noClick.Fbc != "" {
		t.Errorf("expected no fbc without a click id, got %s", noClick.Fbc)
	}
	if !strings.HasPrefix(BuildHashedUserData(domain.VisitorContext{Href: "https://brl.to/?fbclid=1"}, nil, fixedNow).Fbc, "fb.1.") {
		t.Error("expected fbc prefix fb.1.")
	}
}

func TestRawFieldsAreNotHashed(t *testing.T) {
	v := domain.VisitorContext{IP: "1.2.3.4", UserAgent: domain.UserAgent{UA: "Agent/1.0"}}
	got := BuildHashedUserData(v, &Extra{LeadID: " 987 ", Email: "a@b.com"}, fixedNow)

	if got.LeadID != "987" {
		t.Errorf("Expected raw lead id 987, got %q", got.LeadID)
	}
	if got.ClientIPAddress != "1.2.3.4" || got.ClientUserAgent != "Agent/1.0" {
		t.Errorf("Expected raw ip and user agent, got %q %q", got.ClientIPAddress, got.ClientUserAgent)
	}
	if got.Em == "a@b.com" || got.Em != Hash("a@b.com") {
		t.Errorf("Expected hashed email, got %q", got.Em)
	}
}
