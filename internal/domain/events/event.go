// Package events defines the domain events emitted by the recovery service.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
)

// Name is the wire name of a domain event.
type Name string

const (
	OrderCreate    Name = "order:create"
	OrderUpdate    Name = "order:update"
	PaymentUpdate  Name = "payment:update"
	CartUpdate     Name = "abandoned_cart:update"
	JourneyUpdate  Name = "abandoned_cart:journey:update"
	CartRecovered  Name = "abandoned_cart:recovered"
	RecoveryRunNow Name = "console:run_now"
)

// AffectsOrders reports whether order metrics may have changed.
func (n Name) AffectsOrders() bool {
	switch n {
	case OrderCreate, OrderUpdate, PaymentUpdate, RecoveryRunNow:
		return true
	}
	return false
}

// AffectsJourneys reports whether abandoned-cart insights or the journey list
// may have changed.
func (n Name) AffectsJourneys() bool {
	switch n {
	case CartUpdate, JourneyUpdate, CartRecovered, RecoveryRunNow:
		return true
	}
	return n.AffectsOrders()
}

// CarriesJourney reports whether the payload may include a journey object.
func (n Name) CarriesJourney() bool {
	switch n {
	case CartUpdate, JourneyUpdate, CartRecovered:
		return true
	}
	return false
}

// Event is one domain event as received from the real-time transport.
type Event struct {
	ID         string          `json:"id"`
	Name       Name            `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Source     string          `json:"source,omitempty"`
}

type journeyEnvelope struct {
	Journey *journey.Patch `json:"journey"`
}

// JourneyPatch extracts the journey payload carried by cart events. It returns
// false when the event carries none.
func (e Event) JourneyPatch() (journey.Patch, bool, error) {
	if !e.Name.CarriesJourney() || len(e.Data) == 0 {
		return journey.Patch{}, false, nil
	}

	var env journeyEnvelope
	if err := json.Unmarshal(e.Data, &env); err != nil {
		return journey.Patch{}, false, fmt.Errorf("failed to decode %s payload: %w", e.Name, err)
	}
	if env.Journey == nil || env.Journey.ID == "" {
		return journey.Patch{}, false, nil
	}
	return *env.Journey, true, nil
}
