package auth

// Role is the closed set of user roles. Authorization decisions go through
// the capability table below rather than string comparisons at call sites.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleResident Role = "resident"
	RoleAdmin    Role = "admin"
)

// Capability names an operation a role may perform.
type Capability string

const (
	CapManageHouses        Capability = "manage_houses"
	CapManageResidents     Capability = "manage_residents"
	CapManageTariffs       Capability = "manage_tariffs"
	CapRecordConsumption   Capability = "record_consumption"
	CapGenerateInvoices    Capability = "generate_invoices"
	CapMarkInvoicePaid     Capability = "mark_invoice_paid"
	CapManageSubscription  Capability = "manage_subscription"
	CapActivateSubs        Capability = "activate_subscriptions"
	CapRunMaintenance      Capability = "run_maintenance"
	CapSendMessages        Capability = "send_messages"
	CapViewOwnConsumption  Capability = "view_own_consumption"
)

var capabilities = map[Role]map[Capability]bool{
	RoleOwner: {
		CapManageHouses:       true,
		CapManageResidents:    true,
		CapManageTariffs:      true,
		CapRecordConsumption:  true,
		CapGenerateInvoices:   true,
		CapMarkInvoicePaid:    true,
		CapManageSubscription: true,
		CapSendMessages:       true,
	},
	RoleResident: {
		CapRecordConsumption:  true,
		CapSendMessages:       true,
		CapViewOwnConsumption: true,
	},
	RoleAdmin: {
		CapActivateSubs:   true,
		CapRunMaintenance: true,
	},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}
