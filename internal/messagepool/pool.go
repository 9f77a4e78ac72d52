// Package messagepool holds pre-generated user-visible response pools so
// Lucy never answers with an identical, robotic template (spec §7: "always
// drawn from pre-generated message pools"). Pools are loaded once from
// config at startup and never mutated, matching the decision recorded in
// SPEC_FULL.md's Open Question #2.
package messagepool

import (
	"math/rand"
	"sync"
)

// Kind names a pool of interchangeable response strings.
type Kind string

const (
	Greeting     Kind = "greeting"
	StatusCheck  Kind = "status"
	Help         Kind = "help"
	Apology      Kind = "apology"      // no_text_fallbacks
	TaskAck      Kind = "task_ack"     // background task acknowledgement
	TaskError    Kind = "task_error"   // background task failure
	TaskDeadline Kind = "task_deadline"
	Busy         Kind = "busy"         // rate_limited / circuit_open degrade message
)

// Pool is a read-only, randomly-sampled set of interchangeable strings.
type Pool struct {
	mu      sync.Mutex
	rng     *rand.Rand
	entries map[Kind][]string
}

// DefaultPools returns the built-in pool set. Callers may override any kind
// via config before the process starts serving traffic.
func DefaultPools() *Pool {
	return New(map[Kind][]string{
		Greeting: {
			"Hey! What can I help with?",
			"Hi there — what do you need?",
			"Hello! How can I help today?",
		},
		StatusCheck: {
			"Yep, I'm here.",
			"Still around — go ahead.",
			"I'm here, what's up?",
		},
		Help: {
			"I can help with scheduling, research, documents, and more through your connected integrations — just tell me what you need.",
			"Ask me anything — I can look things up, draft documents, and run tasks through your integrations.",
		},
		Apology: {
			"I wasn't able to put together a full answer there — want to try rephrasing?",
			"Something didn't come together on that one. Mind giving me a bit more detail?",
		},
		TaskAck: {
			"On it — I'll post here when it's done.",
			"Working on that now, I'll follow up in this thread.",
		},
		TaskError: {
			"That didn't finish cleanly — let me know if you'd like me to try again.",
			"Ran into a problem partway through. Happy to retry if useful.",
		},
		TaskDeadline: {
			"This is taking longer than expected, so I stopped it. Want me to try a narrower version?",
		},
		Busy: {
			"I'm a little backed up right now — give me a moment and try again.",
			"Things are busy at the moment, one sec.",
		},
	})
}

// New builds a Pool from an explicit entry map (used by config overrides and tests).
func New(entries map[Kind][]string) *Pool {
	return &Pool{rng: rand.New(rand.NewSource(1)), entries: entries}
}

// Sample returns a random entry from the named pool, or "" if the pool is empty.
func (p *Pool) Sample(kind Kind) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.entries[kind]
	if len(items) == 0 {
		return ""
	}
	return items[p.rng.Intn(len(items))]
}
