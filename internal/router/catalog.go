package router

// Inbound event names follow the <domain>:<verb> convention. The catalog
// maps each one to the semantically named store action it becomes; payloads
// pass through untouched.
var catalog = map[string]string{
	// Orders
	"order:created":        "orders/applyCreation",
	"order:status-updated": "orders/applyStatusUpdate",
	"order:assigned":       "orders/applyAssignment",
	"order:delivered":      "orders/applyDelivery",

	// Products and inventory
	"product:created":               "products/applyCreation",
	"product:updated":               "products/applyUpdate",
	"product:availability-changed":  "products/applyAvailabilityChange",
	"product:global-status-changed": "products/applyGlobalStatusChange",
	"inventory:updated":             "inventory/applyUpdate",
	"inventory:low-stock":           "inventory/applyLowStock",

	// Agencies and agents
	"agency:created":        "agencies/applyCreation",
	"agency:updated":        "agencies/applyUpdate",
	"agency:status-changed": "agencies/applyStatusChange",
	"agent:created":         "agents/applyCreation",
	"agent:updated":         "agents/applyUpdate",

	// Pricing
	"tax:updated":             "taxes/applyUpdate",
	"tax:deleted":             "taxes/applyDeletion",
	"platform-charge:updated": "platformCharges/applyUpdate",
	"platform-charge:deleted": "platformCharges/applyDeletion",
	"delivery-charge:created": "deliveryCharges/applyCreation",
	"delivery-charge:updated": "deliveryCharges/applyUpdate",
	"delivery-charge:deleted": "deliveryCharges/applyDeletion",
	"coupon:created":          "coupons/applyCreation",
	"coupon:updated":          "coupons/applyUpdate",
	"coupon:status-changed":   "coupons/applyStatusChange",
	"coupon:deleted":          "coupons/applyDeletion",

	// Generic
	"notification":   "notifications/applyIncoming",
	"system:message": "system/applyMessage",
}

// Forced-termination events, routed to the termination handler instead of
// the store.
const (
	EventUserForceLogout   = "user:force-logout"
	EventAgencyForceLogout = "agency:force-logout"
)

// ActionFor returns the store action type for an inbound event name.
func ActionFor(event string) (string, bool) {
	action, ok := catalog[event]
	return action, ok
}

// Events returns all catalog event names.
func Events() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}
