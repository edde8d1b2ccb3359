package dispatcher

import (
	"slices"

	"github.com/NordCoder/Renewly/internal/domain/client"
	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/preference"
)

type daySet map[int]struct{}

func newDaySet(days []int) daySet {
	s := make(daySet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s daySet) has(d int) bool {
	_, ok := s[d]
	return ok
}

// sellerDays maps every seller with an enabled preference to its offsets.
func sellerDays(prefs []*preference.Preference, defaults []int) map[string]daySet {
	out := make(map[string]daySet, len(prefs))
	for _, p := range prefs {
		if p == nil || !p.IsEnabled {
			continue
		}
		out[p.UserID] = newDaySet(p.Days(defaults))
	}
	return out
}

// offsets returns {0} plus the default days plus every seller's days, ascending.
func offsets(defaults []int, sellers map[string]daySet) []int {
	all := newDaySet(defaults)
	all[0] = struct{}{}
	for _, days := range sellers {
		for d := range days {
			all[d] = struct{}{}
		}
	}
	out := make([]int, 0, len(all))
	for d := range all {
		if d >= 0 {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out
}

// buildBatches groups clients per seller. A client is kept when it expires
// today or when the offset belongs to its seller's days. Offsets are visited in
// ascending order so a client is attributed to its most urgent offset first.
func buildBatches(found map[int][]*client.Expiration, sellers map[string]daySet, defaults daySet) map[string]*notification.Batch {
	keys := make([]int, 0, len(found))
	for d := range found {
		keys = append(keys, d)
	}
	slices.Sort(keys)

	batches := make(map[string]*notification.Batch)
	for _, d := range keys {
		for _, c := range found[d] {
			if c == nil || c.SellerID == "" {
				continue
			}
			days, ok := sellers[c.SellerID]
			if !ok {
				days = defaults
			}
			if d != 0 && !days.has(d) {
				continue
			}
			b, ok := batches[c.SellerID]
			if !ok {
				b = notification.NewBatch(c.SellerID)
				batches[c.SellerID] = b
			}
			b.Add(c, d)
		}
	}
	return batches
}
