package client

import (
	"context"
	"time"
)

type Repo interface {
	// ListExpiringOn returns every client whose expiration date equals day.
	ListExpiringOn(ctx context.Context, day time.Time) ([]*Expiration, error)
}
