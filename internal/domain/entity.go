package domain

// AdPixel is the advertising sink credential attached to a workspace.
type AdPixel struct {
	ID          string `json:"id" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
}

// Entity is a snapshot of the thing a visitor interacted with.
type Entity interface {
	Family() EventFamily
	AssetID() string
	Workspace() string
}

// Link is a short link.
type Link struct {
	ID             string   `json:"id" validate:"required"`
	WorkspaceID    string   `json:"workspaceId" validate:"required"`
	Domain         string   `json:"domain,omitempty"`
	Key            string   `json:"key,omitempty"`
	URL            string   `json:"url,omitempty"`
	Remarketing    bool     `json:"remarketing"`
	CustomMetaTags *bool    `json:"customMetaTags,omitempty"`
	Pixel          *AdPixel `json:"pixel,omitempty"`
}

func (l *Link) Family() EventFamily { return FamilyLink }
func (l *Link) AssetID() string     { return l.ID }
func (l *Link) Workspace() string   { return l.WorkspaceID }

// Href is the public short URL of the link.
func (l *Link) Href() string {
	if l.Domain == "" || l.Key == "" {
		return ""
	}
	return "https://" + l.Domain + "/" + l.Key
}

// FmClick describes which outbound platform an fm page visitor chose.
type FmClick struct {
	Platform string `json:"platform" validate:"required"`
	AssetID  string `json:"assetId,omitempty"`
	URL      string `json:"url,omitempty"`
}

// FmPage is a music "smart link" page listing streaming platforms.
type FmPage struct {
	ID          string   `json:"id" validate:"required"`
	WorkspaceID string   `json:"workspaceId" validate:"required"`
	Handle      string   `json:"handle,omitempty"`
	Key         string   `json:"key,omitempty"`
	Remarketing bool     `json:"remarketing"`
	Pixel       *AdPixel `json:"pixel,omitempty"`
	LinkClick   *FmClick `json:"linkClick,omitempty"`
}

func (p *FmPage) Family() EventFamily { return FamilyFmPage }
func (p *FmPage) AssetID() string     { return p.ID }
func (p *FmPage) Workspace() string   { return p.WorkspaceID }

// PageClick describes an outbound click on a landing or bio page.
type PageClick struct {
	Href    string `json:"href" validate:"required"`
	AssetID string `json:"assetId,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Page is a landing page or a link-in-bio page.
type Page struct {
	ID          string     `json:"id" validate:"required"`
	WorkspaceID string     `json:"workspaceId" validate:"required"`
	Handle      string     `json:"handle,omitempty"`
	Key         string     `json:"key,omitempty"`
	Remarketing bool       `json:"remarketing"`
	Pixel       *AdPixel   `json:"pixel,omitempty"`
	LinkClick   *PageClick `json:"linkClick,omitempty"`
}

func (p *Page) Family() EventFamily { return FamilyPage }
func (p *Page) AssetID() string     { return p.ID }
func (p *Page) Workspace() string   { return p.WorkspaceID }

// Customer is the buyer information collected during checkout.
type Customer struct {
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country,omitempty"`
	CustomerID  string `json:"customerId,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// CartLine is one product in the cart. Prices are in the cart currency.
type CartLine struct {
	ProductID string  `json:"productId,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Quantity  int     `json:"quantity,omitempty"`
}

// Cart is the checkout/funnel state at the moment of the event.
type Cart struct {
	ID                 string    `json:"id" validate:"required"`
	WorkspaceID        string    `json:"workspaceId" validate:"required"`
	FunnelID           string    `json:"funnelId,omitempty"`
	LandingPageID      string    `json:"landingPageId,omitempty"`
	Handle             string    `json:"handle,omitempty"`
	Key                string    `json:"key,omitempty"`
	Remarketing        bool      `json:"remarketing"`
	Pixel              *AdPixel  `json:"pixel,omitempty"`
	Customer           Customer  `json:"customer"`
	Main               CartLine  `json:"main"`
	MainPayWhatYouWant float64   `json:"mainPayWhatYouWantPrice,omitempty"`
	Bump               *CartLine `json:"bump,omitempty"`
	Upsell             *CartLine `json:"upsell,omitempty"`
	ShippingAmount     float64   `json:"shippingAmount,omitempty"`
	CheckoutAmount     float64   `json:"checkoutAmount,omitempty"`
	OrderAmount        float64   `json:"orderAmount,omitempty"`
}

func (c *Cart) Family() EventFamily { return FamilyCart }
func (c *Cart) AssetID() string     { return c.ID }
func (c *Cart) Workspace() string   { return c.WorkspaceID }
