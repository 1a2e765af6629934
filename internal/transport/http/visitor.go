package transporthttp

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"example.com/attribution/internal/domain"
)

// SessionCookie holds the visitor session id set by the web tier.
const SessionCookie = "attr_sid"

// Geography headers set by the edge in front of the service.
const (
	headerGeoCountry   = "X-Geo-Country"
	headerGeoRegion    = "X-Geo-Region"
	headerGeoCity      = "X-Geo-City"
	headerGeoLatitude  = "X-Geo-Latitude"
	headerGeoLongitude = "X-Geo-Longitude"
)

// VisitorFromRequest builds the visitor context of a direct visitor request.
// The user agent is kept raw and geography comes only from edge headers.
func VisitorFromRequest(r *http.Request) domain.VisitorContext {
	v := domain.VisitorContext{
		IP: clientIP(r),
		Geo: domain.Geo{
			Country:   r.Header.Get(headerGeoCountry),
			Region:    r.Header.Get(headerGeoRegion),
			City:      r.Header.Get(headerGeoCity),
			Latitude:  r.Header.Get(headerGeoLatitude),
			Longitude: r.Header.Get(headerGeoLongitude),
		},
		UserAgent: domain.UserAgent{UA: r.UserAgent()},
		Href:      requestURL(r),
	}
	if ref := r.Referer(); ref != "" {
		v.RefererURL = ref
		if u, err := url.Parse(ref); err == nil {
			v.Referer = u.Hostname()
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		v.SessionID = c.Value
	}
	return v.WithDefaults()
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
