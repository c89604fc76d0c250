package subscription

// Plan identifiers.
const (
	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// Offer describes a subscription plan as presented to owners.
type Offer struct {
	Plan         string   `json:"plan"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	MaxResidents int      `json:"max_residents"`
	Description  string   `json:"description"`
	Features     []string `json:"features"`
}

var offers = []Offer{
	{
		Plan:         PlanBasic,
		Name:         "Basic",
		Price:        500,
		MaxResidents: 5,
		Description:  "For small properties",
		Features: []string{
			"Up to 5 residents",
			"Invoice generation",
			"Consumption history",
			"Push notifications",
		},
	},
	{
		Plan:         PlanPremium,
		Name:         "Premium",
		Price:        1000,
		MaxResidents: 15,
		Description:  "For mid-sized properties",
		Features: []string{
			"Up to 15 residents",
			"Invoice generation",
			"Consumption history",
			"Push notifications",
			"Advanced statistics",
			"Priority support",
		},
	},
	{
		Plan:         PlanEnterprise,
		Name:         "Enterprise",
		Price:        2000,
		MaxResidents: 50,
		Description:  "For large properties",
		Features: []string{
			"Up to 50 residents",
			"Invoice generation",
			"Consumption history",
			"Push notifications",
			"Advanced statistics",
			"Priority support",
			"Custom API access",
		},
	},
}

// Offers returns the plan catalog.
func Offers() []Offer {
	out := make([]Offer, len(offers))
	copy(out, offers)
	return out
}

// OfferFor looks up the offer for a plan identifier.
func OfferFor(plan string) (Offer, bool) {
	for _, o := range offers {
		if o.Plan == plan {
			return o, true
		}
	}
	return Offer{}, false
}
