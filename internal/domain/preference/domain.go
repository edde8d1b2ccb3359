package preference

import "slices"

// DefaultDays is the lead-time set used for sellers without an enabled preference row.
var DefaultDays = []int{1, 3, 7}

type Preference struct {
	UserID     string `json:"user_id"`
	IsEnabled  bool   `json:"is_enabled"`
	DaysBefore []int  `json:"days_before"`
}

// Days returns the preference lead times, falling back to defaults when the
// row carries none. Negative values are dropped.
func (p *Preference) Days(defaults []int) []int {
	out := make([]int, 0, len(p.DaysBefore))
	for _, d := range p.DaysBefore {
		if d < 0 || slices.Contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return slices.Clone(defaults)
	}
	return out
}
