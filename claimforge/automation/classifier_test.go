package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldClick(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		enabled bool
		want    bool
	}{
		{"fresh claim button", "Claim Day 3", true, true},
		{"disabled control never clicked", "Claim Day 3", false, false},
		{"claimed copy", "Claimed", true, false},
		{"claimed copy uppercase", "ALREADY COLLECTED", true, false},
		{"checkmark glyph", "Day 1 ✓", true, false},
		{"greyed out copy", "greyed out", true, false},
		{"unavailable copy", "Currently Unavailable", true, false},
		{"completed copy", "Completed!", true, false},
		{"indicator inside longer copy", "You already claimed this", true, false},
		{"empty text on enabled button", "", true, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldClick(tc.text, tc.enabled))
		})
	}
}

func TestShouldCountPreClick(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want bool
	}{
		{"fresh label", "Claim 50 Gems", true},
		{"claimed label", "Claimed", false},
		{"collected label", "Collected earlier today", false},
		{"disabled word in copy", "This button is disabled", false},
		{"empty label", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldCountPreClick(tc.text))
		})
	}
}

func TestShouldCountPostClick(t *testing.T) {
	testCases := []struct {
		name         string
		stillPresent bool
		enabledAfter bool
		textAfter    string
		want         bool
	}{
		{"clean post-click state", true, true, "Claim Day 3", true},
		{"button vanished", false, true, "Claim Day 3", false},
		{"button disabled itself", true, false, "Claim Day 3", false},
		{"claimed copy after click", true, true, "Claimed ✓", false},
		{"vanished and disabled", false, false, "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldCountPostClick(tc.stillPresent, tc.enabledAfter, tc.textAfter))
		})
	}
}

// Counting and clicking are independent decisions. A disabled button with
// fresh copy is not clicked but may still be counted if the post-click read
// comes back clean, and an enabled claimed button is clickable by neither
// predicate.
func TestClickCountDecoupling(t *testing.T) {
	assert.False(t, ShouldClick("Claim Day 1", false))
	assert.True(t, ShouldCountPreClick("Claim Day 1"))

	assert.False(t, ShouldClick("Claimed", true))
	assert.False(t, ShouldCountPreClick("Claimed"))
}
