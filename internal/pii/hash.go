// Package pii maps visitor and customer attributes to the hashed user data
// the advertising sink matches on.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"example.com/attribution/internal/domain"
)

// ClickIDParam is the advertising network click identifier query parameter.
const ClickIDParam = "fbclid"

// HashedUserData is the user_data block of a conversion event. Absent inputs
// leave their field empty, and omitempty drops it from the wire.
type HashedUserData struct {
	Em              string `json:"em,omitempty"`
	Ph              string `json:"ph,omitempty"`
	Fn              string `json:"fn,omitempty"`
	Ln              string `json:"ln,omitempty"`
	Db              string `json:"db,omitempty"`
	Ge              string `json:"ge,omitempty"`
	Ct              string `json:"ct,omitempty"`
	St              string `json:"st,omitempty"`
	Zp              string `json:"zp,omitempty"`
	Country         string `json:"country,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	LeadID          string `json:"lead_id,omitempty"`
	Fbc             string `json:"fbc,omitempty"`
}

// Extra carries the personal data known beyond the request itself.
type Extra struct {
	Email       string
	Phone       string
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	City        string
	State       string
	Zip         string
	Country     string
	ExternalID  string
	LeadID      string
}

// ExtraFromCustomer maps checkout customer data.
func ExtraFromCustomer(c domain.Customer) *Extra {
	return &Extra{
		Email:       c.Email,
		Phone:       c.Phone,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth,
		City:        c.City,
		State:       c.State,
		Zip:         c.PostalCode,
		Country:     c.Country,
		ExternalID:  c.CustomerID,
	}
}

// Hash returns the hex SHA-256 of the trimmed, lower-cased value, or "" for
// an empty value.
func Hash(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// BuildHashedUserData is total and deterministic for a given now. Customer
// data in extra wins over request geography.
func BuildHashedUserData(v domain.VisitorContext, extra *Extra, now time.Time) HashedUserData {
	var e Extra
	if extra != nil {
		e = *extra
	}

	u := HashedUserData{
		Em:              Hash(e.Email),
		Ph:              Hash(e.Phone),
		Fn:              Hash(e.FirstName),
		Ln:              Hash(e.LastName),
		Db:              Hash(e.DateOfBirth),
		Ge:              Hash(e.Gender),
		Ct:              Hash(firstKnown(e.City, v.Geo.City)),
		St:              Hash(firstKnown(e.State, v.Geo.Region)),
		Zp:              Hash(e.Zip),
		Country:         Hash(firstKnown(e.Country, v.Geo.Country)),
		ExternalID:      Hash(e.ExternalID),
		ClientIPAddress: strings.TrimSpace(v.IP),
		ClientUserAgent: v.UserAgent.UA,
		LeadID:          strings.TrimSpace(e.LeadID),
	}
	if id := ClickID(v.Href); id != "" {
		u.Fbc = fmt.Sprintf("fb.1.%d.%s", now.UnixMilli(), id)
	}
	return u
}

// ClickID extracts the ad network click identifier from a URL.
func ClickID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(ClickIDParam)
}

func firstKnown(vals ...string) string {
	for _, v := range vals {
		if domain.Known(strings.TrimSpace(v)) {
			return v
		}
	}
	return ""
}
