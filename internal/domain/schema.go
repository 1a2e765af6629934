package domain

import "sort"

// Kind is the column kind of a schema field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

func (k Kind) accepts(v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// Field describes one schema column.
type Field struct {
	Kind     Kind
	Required bool
}

// Schema is the column set accepted by one time-series datasource.
type Schema struct {
	Name   string
	Family EventFamily
	Fields map[string]Field
}

var baseFields = map[string]Field{
	"timestamp":      {Kind: KindString, Required: true},
	"workspaceId":    {Kind: KindString, Required: true},
	"sessionId":      {Kind: KindString},
	"assetId":        {Kind: KindString, Required: true},
	"href":           {Kind: KindString},
	"key":            {Kind: KindString},
	"type":           {Kind: KindString, Required: true},
	"reportedToMeta": {Kind: KindString, Required: true},

	"ip":               {Kind: KindString},
	"country":          {Kind: KindString},
	"region":           {Kind: KindString},
	"city":             {Kind: KindString},
	"latitude":         {Kind: KindString},
	"longitude":        {Kind: KindString},
	"ua":               {Kind: KindString},
	"browser":          {Kind: KindString},
	"browser_version":  {Kind: KindString},
	"engine":           {Kind: KindString},
	"engine_version":   {Kind: KindString},
	"os":               {Kind: KindString},
	"os_version":       {Kind: KindString},
	"device":           {Kind: KindString},
	"device_vendor":    {Kind: KindString},
	"device_model":     {Kind: KindString},
	"cpu_architecture": {Kind: KindString},
	"isBot":            {Kind: KindBool},
	"referer":          {Kind: KindString},
	"referer_url":      {Kind: KindString},
}

var familyFields = map[EventFamily]map[string]Field{
	FamilyLink: {
		"link_domain":      {Kind: KindString},
		"link_url":         {Kind: KindString},
		"link_remarketing": {Kind: KindBool},
	},
	FamilyFmPage: {
		"fm_linkClickDestinationPlatform": {Kind: KindString},
		"fm_linkClickDestinationAssetId":  {Kind: KindString},
		"fm_linkClickDestinationHref":     {Kind: KindString},
	},
	FamilyPage: {
		"page_linkClickDestinationHref":    {Kind: KindString},
		"page_linkClickDestinationAssetId": {Kind: KindString},
		"page_linkClickLabel":              {Kind: KindString},
	},
	FamilyCart: {
		"cart_funnelId":      {Kind: KindString},
		"cart_landingPageId": {Kind: KindString},
		"cart_orderAmount":   {Kind: KindNumber},

		"cart_checkout_mainProductId":                  {Kind: KindString},
		"cart_checkout_mainProductPrice":               {Kind: KindNumber},
		"cart_checkout_mainProductQuantity":            {Kind: KindNumber},
		"cart_checkout_mainProductPayWhatYouWantPrice": {Kind: KindNumber},
		"cart_checkout_bumpProductId":                  {Kind: KindString},
		"cart_checkout_bumpProductPrice":               {Kind: KindNumber},
		"cart_checkout_shippingAmount":                 {Kind: KindNumber},
		"cart_checkout_amount":                         {Kind: KindNumber},

		"cart_upsell_upsellProductId":       {Kind: KindString},
		"cart_upsell_upsellProductPrice":    {Kind: KindNumber},
		"cart_upsell_upsellProductQuantity": {Kind: KindNumber},
		"cart_upsell_amount":                {Kind: KindNumber},
	},
}

var schemas = buildSchemas()

func buildSchemas() map[string]*Schema {
	out := make(map[string]*Schema, len(familyFields))
	for fam, extra := range familyFields {
		fields := make(map[string]Field, len(baseFields)+len(extra))
		for k, f := range baseFields {
			fields[k] = f
		}
		for k, f := range extra {
			fields[k] = f
		}
		out[fam.Datasource()] = &Schema{Name: fam.Datasource(), Family: fam, Fields: fields}
	}
	return out
}

// SchemaFor returns the schema registered for a datasource.
func SchemaFor(datasource string) (*Schema, bool) {
	s, ok := schemas[datasource]
	return s, ok
}

func sortFieldErrors(errs []FieldError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
