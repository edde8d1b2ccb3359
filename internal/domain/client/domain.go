package client

import "time"

// Expiration is the projection of a seller's client used by the dispatcher.
type Expiration struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	ExpirationDate time.Time `json:"expiration_date"`
	SellerID       string    `json:"seller_id"`
	// PriceCents is nil when the client has no plan price.
	PriceCents *int64 `json:"plan_price_cents"`
}

func (e *Expiration) Cents() int64 {
	if e.PriceCents == nil {
		return 0
	}
	return *e.PriceCents
}
