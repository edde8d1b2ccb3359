package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Renewly/internal/domain/preference"
)

var _ preference.Repo = (*PreferenceRepoImpl)(nil)

type PreferenceRepoImpl struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepoImpl { return &PreferenceRepoImpl{db: db} }

const qPrefsEnabled = `
SELECT user_id::text, is_enabled, COALESCE(days_before, '{}')
FROM notification_preferences
WHERE is_enabled = TRUE;
`

func (r *PreferenceRepoImpl) ListEnabled(ctx context.Context) ([]*preference.Preference, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qPrefsEnabled)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []*preference.Preference
	for rows.Next() {
		var (
			p    preference.Preference
			days []int32
		)
		if err := rows.Scan(&p.UserID, &p.IsEnabled, &days); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.DaysBefore = make([]int, 0, len(days))
		for _, d := range days {
			p.DaysBefore = append(p.DaysBefore, int(d))
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
