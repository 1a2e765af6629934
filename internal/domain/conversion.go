package domain

// DefaultCurrency is the currency reported with conversion values.
const DefaultCurrency = "USD"

// Advertising standard event names.
const (
	AdViewContent      = "ViewContent"
	AdInitiateCheckout = "InitiateCheckout"
	AdLead             = "Lead"
	AdAddPaymentInfo   = "AddPaymentInfo"
	AdAddToCart        = "AddToCart"
	AdPurchase         = "Purchase"
)

// ConversionData is the commerce detail of an advertising conversion.
type ConversionData struct {
	ContentIDs []string
	Value      float64
	Currency   string
	NumItems   int
}

type conversionRule struct {
	event string
	data  func(*Cart) *ConversionData
}

// conversions maps every event type to its advertising event. An empty event
// name means the type is never reported to the advertising sink.
var conversions = map[EventType]conversionRule{
	LinkClick: {event: AdViewContent},

	FmView:      {event: AdViewContent},
	FmLinkClick: {event: AdViewContent},

	PageView:      {event: AdViewContent},
	PageLinkClick: {event: AdViewContent},
	BioView:       {event: AdViewContent},
	BioLinkClick:  {event: AdViewContent},

	CartViewCheckout: {event: AdInitiateCheckout, data: func(c *Cart) *ConversionData {
		return lines(c.Main.Price*float64(quantity(c.Main.Quantity)), c.Main)
	}},
	CartUpdateMainProductPayWhatYouWant: {},
	CartAddEmail:                        {event: AdLead},
	CartAddShippingInfo:                 {},
	CartAddPaymentInfo: {event: AdAddPaymentInfo, data: func(c *Cart) *ConversionData {
		return lines(c.CheckoutAmount, c.Main, deref(c.Bump))
	}},
	CartAddBump: {event: AdAddToCart, data: func(c *Cart) *ConversionData {
		if c.Bump == nil {
			return nil
		}
		return lines(c.Bump.Price, *c.Bump)
	}},
	CartRemoveBump: {},
	CartPurchaseMainWithoutBump: {event: AdPurchase, data: func(c *Cart) *ConversionData {
		return lines(c.CheckoutAmount, c.Main)
	}},
	CartPurchaseMainWithBump: {event: AdPurchase, data: func(c *Cart) *ConversionData {
		return lines(c.CheckoutAmount, c.Main, deref(c.Bump))
	}},
	CartViewUpsell: {event: AdViewContent, data: func(c *Cart) *ConversionData {
		if c.Upsell == nil {
			return nil
		}
		return lines(c.Upsell.Price, *c.Upsell)
	}},
	CartDeclineUpsell: {},
	CartPurchaseUpsell: {event: AdPurchase, data: func(c *Cart) *ConversionData {
		if c.Upsell == nil {
			return nil
		}
		return lines(c.Upsell.Price*float64(quantity(c.Upsell.Quantity)), *c.Upsell)
	}},
	CartViewOrderConfirmation: {},
}

// ConversionFor returns the advertising event name and commerce detail for an
// occurrence of t on entity. The name is "" when t is not reported.
func ConversionFor(t EventType, entity Entity) (string, *ConversionData) {
	rule, ok := conversions[t]
	if !ok || rule.event == "" {
		return "", nil
	}
	if rule.data == nil {
		return rule.event, nil
	}
	c, ok := entity.(*Cart)
	if !ok || c == nil {
		return rule.event, nil
	}
	return rule.event, rule.data(c)
}

func lines(value float64, ls ...CartLine) *ConversionData {
	d := &ConversionData{Value: value, Currency: DefaultCurrency}
	for _, l := range ls {
		if l.ProductID == "" {
			continue
		}
		d.ContentIDs = append(d.ContentIDs, l.ProductID)
		d.NumItems += quantity(l.Quantity)
	}
	return d
}

func deref(l *CartLine) CartLine {
	if l == nil {
		return CartLine{}
	}
	return *l
}

// SinkDispatchResult is the outcome of one advertising sink dispatch. Error is
// empty when Reported is true.
type SinkDispatchResult struct {
	Reported bool   `json:"reported"`
	Error    string `json:"error,omitempty"`
}
