package domain

// Unknown is the placeholder upstream uses for geography it could not resolve.
const Unknown = "Unknown"

// Geo is the resolved location of a visitor. Unresolved fields hold Unknown.
type Geo struct {
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// UserAgent is the parsed user agent of a visitor.
type UserAgent struct {
	UA              string `json:"ua,omitempty"`
	Browser         string `json:"browser,omitempty"`
	BrowserVersion  string `json:"browserVersion,omitempty"`
	Engine          string `json:"engine,omitempty"`
	EngineVersion   string `json:"engineVersion,omitempty"`
	OS              string `json:"os,omitempty"`
	OSVersion       string `json:"osVersion,omitempty"`
	Device          string `json:"device,omitempty"`
	DeviceVendor    string `json:"deviceVendor,omitempty"`
	DeviceModel     string `json:"deviceModel,omitempty"`
	CPUArchitecture string `json:"cpuArchitecture,omitempty"`
	IsBot           bool   `json:"isBot,omitempty"`
}

// VisitorContext is the normalized request context of one interaction.
// It is built once by the request layer and never mutated afterwards.
type VisitorContext struct {
	IP         string    `json:"ip" validate:"required,ip"`
	Geo        Geo       `json:"geo"`
	UserAgent  UserAgent `json:"userAgent"`
	Referer    string    `json:"referer,omitempty"`
	RefererURL string    `json:"refererUrl,omitempty"`
	IsBot      bool      `json:"isBot,omitempty"`
	Href       string    `json:"href,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
}

// WithDefaults returns a copy with unresolved geography set to Unknown.
func (v VisitorContext) WithDefaults() VisitorContext {
	def := func(s string) string {
		if s == "" {
			return Unknown
		}
		return s
	}
	v.Geo = Geo{
		Country:   def(v.Geo.Country),
		Region:    def(v.Geo.Region),
		City:      def(v.Geo.City),
		Latitude:  def(v.Geo.Latitude),
		Longitude: def(v.Geo.Longitude),
	}
	return v
}

// Known reports whether a geography value was actually resolved.
func Known(s string) bool {
	return s != "" && s != Unknown
}

// Flatten writes the visitor fields into rec using the time-series column names.
func (v VisitorContext) Flatten(rec Record) {
	v = v.WithDefaults()
	rec["ip"] = v.IP
	rec["country"] = v.Geo.Country
	rec["region"] = v.Geo.Region
	rec["city"] = v.Geo.City
	rec["latitude"] = v.Geo.Latitude
	rec["longitude"] = v.Geo.Longitude
	rec["ua"] = v.UserAgent.UA
	rec["browser"] = v.UserAgent.Browser
	rec["browser_version"] = v.UserAgent.BrowserVersion
	rec["engine"] = v.UserAgent.Engine
	rec["engine_version"] = v.UserAgent.EngineVersion
	rec["os"] = v.UserAgent.OS
	rec["os_version"] = v.UserAgent.OSVersion
	rec["device"] = v.UserAgent.Device
	rec["device_vendor"] = v.UserAgent.DeviceVendor
	rec["device_model"] = v.UserAgent.DeviceModel
	rec["cpu_architecture"] = v.UserAgent.CPUArchitecture
	rec["isBot"] = v.IsBot || v.UserAgent.IsBot
	rec["referer"] = v.Referer
	rec["referer_url"] = v.RefererURL
}
