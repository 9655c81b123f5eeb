package automation

import "strings"

// claimedIndicators are the fragments of button copy the rewards site uses
// for controls that were already redeemed. Text matching UI copy is brittle
// by nature; there is no API contract to lean on, so this stays a best-effort
// heuristic.
var claimedIndicators = []string{
	"claimed",
	"already",
	"collected",
	"✓",
	"disabled",
	"greyed out",
	"unavailable",
	"completed",
}

func containsClaimedIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range claimedIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// ShouldClick reports whether a reward button is worth clicking at all.
// It errs toward clicking: a click on an already-claimed control is a no-op,
// while skipping a genuinely claimable button loses the reward.
func ShouldClick(text string, enabled bool) bool {
	if !enabled {
		return false
	}
	return !containsClaimedIndicator(text)
}

// ShouldCountPreClick reports whether, judged by its pre-click text alone,
// a button may be counted toward the session's claimed-item list. Counting
// additionally requires ShouldCountPostClick; the two are ANDed and are
// deliberately independent of ShouldClick.
func ShouldCountPreClick(text string) bool {
	return !containsClaimedIndicator(text)
}

// ShouldCountPostClick reports whether the state observed after a click is
// consistent with a fresh claim. A button that vanished, got disabled, or now
// carries claimed copy means the site either consumed the click elsewhere or
// silently rejected it.
func ShouldCountPostClick(stillPresent bool, enabledAfter bool, textAfter string) bool {
	if !stillPresent {
		return false
	}
	if !enabledAfter {
		return false
	}
	return !containsClaimedIndicator(textAfter)
}
