package preference

import "context"

type Repo interface {
	ListEnabled(ctx context.Context) ([]*Preference, error)
}
