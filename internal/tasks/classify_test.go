package tasks

import (
	"testing"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

func TestShouldRunAsBackgroundTask(t *testing.T) {
	cases := []struct {
		name    string
		tier    lucy.Tier
		message string
		want    bool
	}{
		{"frontier heavy research", lucy.TierFrontier, "Research competitor pricing comprehensively and create a report.", true},
		{"frontier deep dive", lucy.TierFrontier, "Can you do a deep dive on our onboarding funnel?", true},
		{"frontier competitive analysis", lucy.TierFrontier, "I need a competitive analysis of our top 3 rivals", true},
		{"frontier simple research", lucy.TierFrontier, "research our competitor's pricing page", false},
		{"default tier heavy phrasing", lucy.TierDefault, "Research competitor pricing comprehensively and create a report.", false},
		{"fast tier greeting", lucy.TierFast, "hi", false},
	}
	for _, tc := range cases {
		if got := ShouldRunAsBackgroundTask(tc.tier, tc.message); got != tc.want {
			t.Errorf("%s: ShouldRunAsBackgroundTask(%v, %q) = %v, want %v", tc.name, tc.tier, tc.message, got, tc.want)
		}
	}
}
