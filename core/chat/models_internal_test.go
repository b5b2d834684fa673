package chat

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func TestGroupData_members(t *testing.T) {
	gd := GroupData{Members: []MemberData{
		{UserID: 1},
		{UserID: 2, IsAdmin: true},
		{UserID: 1, IsAdmin: true},
	}}
	assert.Equal(t, []MemberData{{UserID: 1, IsAdmin: true}, {UserID: 2, IsAdmin: true}}, gd.members())
	assert.Empty(t, GroupData{}.members())
}

func TestNewerFirst(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	times := []null.Time{
		{},
		null.TimeFrom(t0),
		null.TimeFrom(t0.Add(time.Hour)),
		{},
		null.TimeFrom(t0.Add(-time.Hour)),
	}
	sort.SliceStable(times, func(i, j int) bool { return newerFirst(times[i], times[j]) })

	assert.Equal(t, []null.Time{
		null.TimeFrom(t0.Add(time.Hour)),
		null.TimeFrom(t0),
		null.TimeFrom(t0.Add(-time.Hour)),
		{},
		{},
	}, times)
}
