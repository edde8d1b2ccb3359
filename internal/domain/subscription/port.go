package subscription

import "context"

type Repo interface {
	ListByUsers(ctx context.Context, userIDs []string) ([]*Subscription, error)
	// DeleteByEndpoint is idempotent: deleting a missing endpoint is not an error.
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
