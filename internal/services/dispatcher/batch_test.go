package dispatcher

import (
	"testing"

	"github.com/NordCoder/Renewly/internal/domain/client"
	"github.com/NordCoder/Renewly/internal/domain/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsets(t *testing.T) {
	sellers := sellerDays([]*preference.Preference{
		{UserID: "a", IsEnabled: true, DaysBefore: []int{5, 3}},
		{UserID: "b", IsEnabled: true, DaysBefore: []int{}},
		{UserID: "c", IsEnabled: false, DaysBefore: []int{30}},
	}, preference.DefaultDays)

	assert.Equal(t, []int{0, 1, 3, 5, 7}, offsets(preference.DefaultDays, sellers))
	assert.NotContains(t, sellers, "c")
	assert.True(t, sellers["b"].has(7))
}

func TestBuildBatches_ClientListedOnce(t *testing.T) {
	c := expiring("c", "S", "Caio", 1, cents(1000))
	found := map[int][]*client.Expiration{
		3: {c},
		1: {c},
	}
	batches := buildBatches(found, map[string]daySet{}, newDaySet([]int{1, 3}))

	require.Contains(t, batches, "S")
	b := batches["S"]
	assert.Equal(t, 1, b.Size())
	assert.Equal(t, 1, b.MostUrgent)
	assert.Equal(t, int64(1000), b.TotalCents)
	assert.Equal(t, []int{1, 3}, b.SortedDays())
}

func TestBuildBatches_SkipsUnknownSeller(t *testing.T) {
	found := map[int][]*client.Expiration{0: {expiring("c", "", "Caio", 0, nil)}}
	assert.Empty(t, buildBatches(found, nil, newDaySet(preference.DefaultDays)))
}
