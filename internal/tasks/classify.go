package tasks

import (
	"regexp"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

// heavyCompoundPattern mirrors _HEAVY_COMPOUND_RE in task_manager.py: the
// set of phrasings that mark a request as heavy enough to background
// instead of running inline.
var heavyCompoundPattern = regexp.MustCompile(`(?i)` +
	`comprehensive\s+(?:research|report|analysis|audit)` +
	`|deep\s+dive` +
	`|thorough\s+(?:analysis|investigation|review)` +
	`|(?:research|analyze|investigate).*(?:and|then|also|plus).*(?:create|write|build|generate)` +
	`|competitive\s+analysis` +
	`|full\s+audit`)

// ShouldRunAsBackgroundTask reports whether a request should be handed to
// the TaskManager instead of run inline. Only frontier-tier requests with a
// compound-heavy phrasing qualify; plain "research X" finishes in under a
// minute and backgrounding it only adds ack/progress-update overhead.
func ShouldRunAsBackgroundTask(tier lucy.Tier, message string) bool {
	if tier != lucy.TierFrontier {
		return false
	}
	return heavyCompoundPattern.MatchString(message)
}
