// Package subscription computes and activates the topic subscriptions for
// a role. Plans are recomputed on every (re)connection; the backend never
// persists them across reconnects.
package subscription

import (
	"log/slog"

	"github.com/novamart/realtime/internal/credentials"
	"github.com/novamart/realtime/internal/transport"
)

// Topic names.
const (
	TopicOrders    = "orders"
	TopicProducts  = "products"
	TopicAgencies  = "agencies"
	TopicAgents    = "agents"
	TopicInventory = "inventory"
)

// Topic is a single server-side event stream to opt into. TenantID scopes
// the stream to one tenant; empty means unscoped.
type Topic struct {
	Name     string
	TenantID string
}

// subscribeEvent is the outbound activation message name.
const subscribeEvent = "subscribe"

// subscribeMsg is the activation payload for one topic.
type subscribeMsg struct {
	Topic    string `json:"topic"`
	TenantID string `json:"tenantId,omitempty"`
}

// Plan returns the topic set for a role. Deterministic, no side effects.
//
//	admin            → orders, products, agencies, agents, inventory
//	agency_owner     → orders; inventory and agents scoped to the tenant
//	                   (orders only when no tenant id is present)
//	customer         → orders, agencies, products
//	agent            → orders
//	anything else    → empty
func Plan(role credentials.Role, tenantID string) []Topic {
	switch role {
	case credentials.RoleAdmin:
		return []Topic{
			{Name: TopicOrders},
			{Name: TopicProducts},
			{Name: TopicAgencies},
			{Name: TopicAgents},
			{Name: TopicInventory},
		}

	case credentials.RoleAgencyOwner:
		plan := []Topic{{Name: TopicOrders}}
		if tenantID != "" {
			plan = append(plan,
				Topic{Name: TopicInventory, TenantID: tenantID},
				Topic{Name: TopicAgents, TenantID: tenantID},
			)
		}
		return plan

	case credentials.RoleCustomer:
		return []Topic{
			{Name: TopicOrders},
			{Name: TopicAgencies},
			{Name: TopicProducts},
		}

	case credentials.RoleAgent:
		return []Topic{{Name: TopicOrders}}
	}

	return nil
}

// Activate emits one activation message per topic over the handle. Emit
// failures are logged and do not stop the remaining topics; the first
// failure is returned.
func Activate(h transport.Handle, plan []Topic, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var firstErr error
	for _, t := range plan {
		msg := subscribeMsg{Topic: t.Name, TenantID: t.TenantID}
		if err := h.Emit(subscribeEvent, msg); err != nil {
			logger.Warn("failed to activate topic",
				"topic", t.Name,
				"tenant_id", t.TenantID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debug("topic activated", "topic", t.Name, "tenant_id", t.TenantID)
	}

	return firstErr
}
