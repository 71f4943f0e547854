package domain

// roleTable is the compiled-in role to capability mapping. Every Role has a row.
var roleTable = [roleCount]CapabilitySet{
	RoleAdmin: FullAccess(),

	RoleSales: CapabilitySet{}.With(
		CanViewProducts,
		CanViewInventory,
		CanViewOrders, CanCreateOrders, CanEditOrders,
		CanViewShipping,
		CanViewCustomers, CanCreateCustomers, CanEditCustomers,
	),

	RoleAssistant: CapabilitySet{}.With(
		CanViewProducts, CanCreateProducts, CanEditProducts,
		CanViewInventory,
		CanViewOrders, CanCreateOrders, CanEditOrders,
		CanViewPurchases,
		CanViewShipping,
		CanViewCustomers, CanCreateCustomers, CanEditCustomers,
		CanViewFactories,
	),

	RoleAccounting: CapabilitySet{}.With(
		CanViewProducts,
		CanViewOrders,
		CanViewPurchases, CanCreatePurchases, CanEditPurchases,
		CanViewShipping,
		CanViewCustomers,
		CanViewFactories,
		CanViewSystemSettings,
	),

	RoleWarehouse: CapabilitySet{}.With(
		CanViewProducts,
		CanViewInventory, CanEditInventory,
		CanViewOrders,
		CanViewPurchases,
		CanViewShipping, CanCreateShipping, CanEditShipping,
		CanViewFactories,
	),
}

// CapabilitiesFor returns the table row for r. Out-of-range roles get the empty set.
func CapabilitiesFor(r Role) CapabilitySet {
	if r >= roleCount {
		return CapabilitySet{}
	}
	return roleTable[r]
}
