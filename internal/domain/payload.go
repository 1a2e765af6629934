package domain

import "time"

// TimestampLayout is the ISO-8601 form written to the time-series store.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is one flattened event row for a time-series datasource.
type Record map[string]any

func (r Record) setString(k, v string) {
	if v != "" {
		r[k] = v
	}
}

// merge copies every key of src into r.
func (r Record) merge(src Record) {
	for k, v := range src {
		r[k] = v
	}
}

// AttributionEvent is the family-independent header of a dispatched event.
type AttributionEvent struct {
	Timestamp   time.Time
	WorkspaceID string
	SessionID   string
	AssetID     string
	Href        string
	Key         string
	Type        EventType
}

// NewRecord assembles the header, the flattened visitor and the family payload.
func NewRecord(ev AttributionEvent, v VisitorContext, data Record) Record {
	rec := Record{
		"timestamp":   ev.Timestamp.UTC().Format(TimestampLayout),
		"workspaceId": ev.WorkspaceID,
		"sessionId":   ev.SessionID,
		"assetId":     ev.AssetID,
		"href":        ev.Href,
		"key":         ev.Key,
		"type":        string(ev.Type),
	}
	v.Flatten(rec)
	rec.merge(data)
	return rec
}

type builder[E Entity] func(E) Record

// Each table must hold an entry for every type of its family; the taxonomy
// tests enforce it.
var (
	linkBuilders = map[EventType]builder[*Link]{
		LinkClick: func(l *Link) Record {
			r := Record{"link_remarketing": l.Remarketing}
			r.setString("link_domain", l.Domain)
			r.setString("link_url", l.URL)
			return r
		},
	}

	fmBuilders = map[EventType]builder[*FmPage]{
		FmView:      func(*FmPage) Record { return Record{} },
		FmLinkClick: fmClickData,
	}

	pageBuilders = map[EventType]builder[*Page]{
		PageView:      func(*Page) Record { return Record{} },
		PageLinkClick: pageClickData,
		BioView:       func(*Page) Record { return Record{} },
		BioLinkClick:  pageClickData,
	}

	cartBuilders = map[EventType]builder[*Cart]{
		CartViewCheckout: func(c *Cart) Record {
			r := Record{}
			r.setString("cart_funnelId", c.FunnelID)
			r.setString("cart_landingPageId", c.LandingPageID)
			cartMain(c, r)
			return r
		},
		CartUpdateMainProductPayWhatYouWant: func(c *Cart) Record {
			r := Record{}
			r.setString("cart_checkout_mainProductId", c.Main.ProductID)
			r["cart_checkout_mainProductPayWhatYouWantPrice"] = c.MainPayWhatYouWant
			return r
		},
		CartAddEmail: func(c *Cart) Record {
			r := Record{}
			r.setString("cart_checkout_mainProductId", c.Main.ProductID)
			return r
		},
		CartAddShippingInfo: func(c *Cart) Record {
			r := Record{}
			r.setString("cart_checkout_mainProductId", c.Main.ProductID)
			r["cart_checkout_shippingAmount"] = c.ShippingAmount
			return r
		},
		CartAddPaymentInfo: func(c *Cart) Record {
			r := Record{}
			cartMain(c, r)
			cartBump(c, r)
			r["cart_checkout_amount"] = c.CheckoutAmount
			return r
		},
		CartAddBump: func(c *Cart) Record {
			r := Record{}
			cartBump(c, r)
			return r
		},
		CartRemoveBump: func(c *Cart) Record {
			r := Record{}
			if c.Bump != nil {
				r.setString("cart_checkout_bumpProductId", c.Bump.ProductID)
			}
			return r
		},
		CartPurchaseMainWithoutBump: func(c *Cart) Record {
			r := Record{}
			cartMain(c, r)
			r["cart_checkout_shippingAmount"] = c.ShippingAmount
			r["cart_checkout_amount"] = c.CheckoutAmount
			return r
		},
		CartPurchaseMainWithBump: func(c *Cart) Record {
			r := Record{}
			cartMain(c, r)
			cartBump(c, r)
			r["cart_checkout_shippingAmount"] = c.ShippingAmount
			r["cart_checkout_amount"] = c.CheckoutAmount
			return r
		},
		CartViewUpsell:    cartUpsellOffer,
		CartDeclineUpsell: cartUpsellOffer,
		CartPurchaseUpsell: func(c *Cart) Record {
			r := cartUpsellOffer(c)
			if c.Upsell != nil {
				r["cart_upsell_upsellProductQuantity"] = quantity(c.Upsell.Quantity)
				r["cart_upsell_amount"] = c.Upsell.Price * float64(quantity(c.Upsell.Quantity))
			}
			return r
		},
		CartViewOrderConfirmation: func(c *Cart) Record {
			return Record{"cart_orderAmount": c.OrderAmount}
		},
	}
)

func fmClickData(p *FmPage) Record {
	r := Record{}
	if p.LinkClick != nil {
		r.setString("fm_linkClickDestinationPlatform", p.LinkClick.Platform)
		r.setString("fm_linkClickDestinationAssetId", p.LinkClick.AssetID)
		r.setString("fm_linkClickDestinationHref", p.LinkClick.URL)
	}
	return r
}

func pageClickData(p *Page) Record {
	r := Record{}
	if p.LinkClick != nil {
		r.setString("page_linkClickDestinationHref", p.LinkClick.Href)
		r.setString("page_linkClickDestinationAssetId", p.LinkClick.AssetID)
		r.setString("page_linkClickLabel", p.LinkClick.Label)
	}
	return r
}

func cartMain(c *Cart, r Record) {
	if c.Main.ProductID == "" {
		return
	}
	r["cart_checkout_mainProductId"] = c.Main.ProductID
	r["cart_checkout_mainProductPrice"] = c.Main.Price
	r["cart_checkout_mainProductQuantity"] = quantity(c.Main.Quantity)
}

func cartBump(c *Cart, r Record) {
	if c.Bump == nil || c.Bump.ProductID == "" {
		return
	}
	r["cart_checkout_bumpProductId"] = c.Bump.ProductID
	r["cart_checkout_bumpProductPrice"] = c.Bump.Price
}

func cartUpsellOffer(c *Cart) Record {
	r := Record{}
	if c.Upsell != nil && c.Upsell.ProductID != "" {
		r["cart_upsell_upsellProductId"] = c.Upsell.ProductID
		r["cart_upsell_upsellProductPrice"] = c.Upsell.Price
	}
	return r
}

// quantity treats an unset quantity as one item.
func quantity(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}

// BuildEventData returns the family payload of event t for entity. It never
// fails: an unknown type, a type outside family, or an entity of another
// family yield an empty payload.
func BuildEventData(family EventFamily, t EventType, entity Entity) Record {
	if f, ok := FamilyOf(t); !ok || f != family || entity == nil || entity.Family() != family {
		return Record{}
	}
	switch e := entity.(type) {
	case *Link:
		if e != nil {
			return build(linkBuilders, t, e)
		}
	case *FmPage:
		if e != nil {
			return build(fmBuilders, t, e)
		}
	case *Page:
		if e != nil {
			return build(pageBuilders, t, e)
		}
	case *Cart:
		if e != nil {
			return build(cartBuilders, t, e)
		}
	}
	return Record{}
}

func build[E Entity](table map[EventType]builder[E], t EventType, e E) Record {
	fn, ok := table[t]
	if !ok {
		return Record{}
	}
	return fn(e)
}
