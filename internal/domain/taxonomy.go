package domain

import "sort"

// EventFamily groups event types sharing a payload shape.
type EventFamily string

const (
	FamilyCart   EventFamily = "cart"
	FamilyFmPage EventFamily = "fm"
	FamilyLink   EventFamily = "link"
	FamilyPage   EventFamily = "page"
)

// EventType is one of the closed set of recorded interactions.
type EventType string

const (
	LinkClick EventType = "link/click"

	FmView      EventType = "fm/view"
	FmLinkClick EventType = "fm/linkClick"

	PageView      EventType = "page/view"
	PageLinkClick EventType = "page/linkClick"
	BioView       EventType = "bio/view"
	BioLinkClick  EventType = "bio/linkClick"

	CartViewCheckout                    EventType = "cart/viewCheckout"
	CartUpdateMainProductPayWhatYouWant EventType = "cart/updateMainProductPayWhatYouWantPrice"
	CartAddEmail                        EventType = "cart/addEmail"
	CartAddShippingInfo                 EventType = "cart/addShippingInfo"
	CartAddPaymentInfo                  EventType = "cart/addPaymentInfo"
	CartAddBump                         EventType = "cart/addBump"
	CartRemoveBump                      EventType = "cart/removeBump"
	CartPurchaseMainWithoutBump         EventType = "cart/purchaseMainWithoutBump"
	CartPurchaseMainWithBump            EventType = "cart/purchaseMainWithBump"
	CartViewUpsell                      EventType = "cart/viewUpsell"
	CartDeclineUpsell                   EventType = "cart/declineUpsell"
	CartPurchaseUpsell                  EventType = "cart/purchaseUpsell"
	CartViewOrderConfirmation           EventType = "cart/viewOrderConfirmation"
)

// eventFamilies is the single source of truth for type membership.
var eventFamilies = map[EventType]EventFamily{
	LinkClick: FamilyLink,

	FmView:      FamilyFmPage,
	FmLinkClick: FamilyFmPage,

	PageView:      FamilyPage,
	PageLinkClick: FamilyPage,
	BioView:       FamilyPage,
	BioLinkClick:  FamilyPage,

	CartViewCheckout:                    FamilyCart,
	CartUpdateMainProductPayWhatYouWant: FamilyCart,
	CartAddEmail:                        FamilyCart,
	CartAddShippingInfo:                 FamilyCart,
	CartAddPaymentInfo:                  FamilyCart,
	CartAddBump:                         FamilyCart,
	CartRemoveBump:                      FamilyCart,
	CartPurchaseMainWithoutBump:         FamilyCart,
	CartPurchaseMainWithBump:            FamilyCart,
	CartViewUpsell:                      FamilyCart,
	CartDeclineUpsell:                   FamilyCart,
	CartPurchaseUpsell:                  FamilyCart,
	CartViewOrderConfirmation:           FamilyCart,
}

// FamilyOf returns the family owning t, or false for an unknown type.
func FamilyOf(t EventType) (EventFamily, bool) {
	f, ok := eventFamilies[t]
	return f, ok
}

// Valid reports whether t is a declared event type.
func (t EventType) Valid() bool {
	_, ok := eventFamilies[t]
	return ok
}

// EventTypes returns every declared type, sorted.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventFamilies))
	for t := range eventFamilies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Families returns the four families.
func Families() []EventFamily {
	return []EventFamily{FamilyCart, FamilyFmPage, FamilyLink, FamilyPage}
}

// Datasource is the time-series datasource receiving events of family f.
func (f EventFamily) Datasource() string {
	switch f {
	case FamilyCart:
		return "cart_events"
	case FamilyFmPage:
		return "fm_events"
	case FamilyLink:
		return "link_events"
	case FamilyPage:
		return "page_events"
	}
	return ""
}
