package toolindex

import (
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

const (
	// indexTTL is how long a workspace index goes without new tools before
	// it's considered stale (spec §4.E: "becomes stale after 300 s").
	indexTTL = 300 * time.Second
	// minPerApp is the default per-app floor used by Retrieve's phase 1.
	minPerApp = 3
)

// record is one indexed tool's tokenized form plus metadata.
type record struct {
	descriptor lucy.ToolDescriptor
	appSlug    string
	tokens     []string
}

// RetrievalResult is the output of a Retrieve call.
type RetrievalResult struct {
	Tools    []lucy.ToolDescriptor
	TopScore float64
	Scored   []ScoredTool
}

// ScoredTool pairs a tool name with its BM25 score, for debugging/logging.
type ScoredTool struct {
	Name  string
	Score float64
}

// WorkspaceIndex is a single workspace's BM25 tool index, guarded by a lock
// (spec §4.E: "guarded by an async guard").
type WorkspaceIndex struct {
	mu         sync.Mutex
	workspaceID string
	records    map[string]*record
	idf        map[string]float64
	avgDocLen  float64
	indexedAt  time.Time
	now        func() time.Time
}

// NewWorkspaceIndex creates an empty index for the given workspace.
func NewWorkspaceIndex(workspaceID string) *WorkspaceIndex {
	return &WorkspaceIndex{
		workspaceID: workspaceID,
		records:     make(map[string]*record),
		idf:         make(map[string]float64),
		now:         time.Now,
	}
}

// Size returns the number of indexed tools.
func (w *WorkspaceIndex) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// IsStale reports whether the index hasn't been refreshed within indexTTL.
func (w *WorkspaceIndex) IsStale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexedAt.IsZero() {
		return true
	}
	return w.now().Sub(w.indexedAt) > indexTTL
}

// AddTools indexes a batch of tool descriptors, skipping ones already
// present by name, and recomputes IDF over the full corpus if anything new
// was added (spec §4.E: "IDF: recomputed after every batch add").
func (w *WorkspaceIndex) AddTools(tools []lucy.ToolDescriptor) int {
	if len(tools) == 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		if _, exists := w.records[t.Name]; exists {
			continue
		}
		app := t.AppSlug
		if app == "" {
			app = InferAppSlug(t.Name)
		}
		w.records[t.Name] = &record{
			descriptor: t,
			appSlug:    app,
			tokens:     Tokenize(t.Name + " " + t.Description),
		}
		added++
	}

	if added > 0 {
		corpus := make([][]string, 0, len(w.records))
		totalLen := 0
		for _, r := range w.records {
			corpus = append(corpus, r.tokens)
			totalLen += len(r.tokens)
		}
		w.idf = computeIDF(corpus)
		w.avgDocLen = float64(totalLen) / float64(len(corpus))
		w.indexedAt = w.now()
	}
	return added
}

// Lookup returns the descriptor indexed under name, if any.
func (w *WorkspaceIndex) Lookup(name string) (lucy.ToolDescriptor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.records[name]
	if !ok {
		return lucy.ToolDescriptor{}, false
	}
	return r.descriptor, true
}

// RecordUsage increments a tool's usage counter, feeding the recency boost.
func (w *WorkspaceIndex) RecordUsage(toolName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.records[toolName]; ok {
		r.descriptor.UsageCount++
	}
}

// Retrieve returns the top-k tools for query, guaranteeing at least
// minPerApp tools from each app present in connectedApps before filling
// remaining slots by global score (spec §4.E, phases 1 and 2). An empty
// connectedApps means no app filter is applied. An empty query falls back
// to most-used-first.
func (w *WorkspaceIndex) Retrieve(query string, k int, connectedApps map[string]bool) RetrievalResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.records) == 0 {
		return RetrievalResult{}
	}

	qTokens := ExpandQuery(Tokenize(query))
	if len(qTokens) == 0 {
		all := make([]*record, 0, len(w.records))
		for _, r := range w.records {
			all = append(all, r)
		}
		sort.Slice(all, func(i, j int) bool {
			return all[i].descriptor.UsageCount > all[j].descriptor.UsageCount
		})
		if len(all) > k {
			all = all[:k]
		}
		tools := make([]lucy.ToolDescriptor, len(all))
		for i, r := range all {
			tools[i] = r.descriptor
		}
		return RetrievalResult{Tools: tools}
	}

	type scored struct {
		score float64
		rec   *record
	}
	var all []scored
	perApp := map[string][]scored{}

	for _, r := range w.records {
		if len(connectedApps) > 0 && !connectedApps[r.appSlug] {
			continue
		}
		score := bm25Score(qTokens, r.tokens, w.idf, w.avgDocLen)
		score += recencyBoost(r.descriptor.UsageCount)
		if score <= 0 {
			continue
		}
		s := scored{score: score, rec: r}
		all = append(all, s)
		perApp[r.appSlug] = append(perApp[r.appSlug], s)
	}

	selected := map[string]scored{}
	floor := minPerApp
	for _, appScores := range perApp {
		sort.Slice(appScores, func(i, j int) bool { return appScores[i].score > appScores[j].score })
		n := floor
		if n > len(appScores) {
			n = len(appScores)
		}
		for _, s := range appScores[:n] {
			selected[s.rec.descriptor.Name] = s
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	for _, s := range all {
		if len(selected) >= k {
			break
		}
		if _, ok := selected[s.rec.descriptor.Name]; !ok {
			selected[s.rec.descriptor.Name] = s
		}
	}

	final := make([]scored, 0, len(selected))
	for _, s := range selected {
		final = append(final, s)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].score > final[j].score })
	if len(final) > k {
		final = final[:k]
	}

	result := RetrievalResult{}
	for _, s := range final {
		result.Tools = append(result.Tools, s.rec.descriptor)
		result.Scored = append(result.Scored, ScoredTool{Name: s.rec.descriptor.Name, Score: s.score})
	}
	if len(final) > 0 {
		result.TopScore = final[0].score
	}
	return result
}

// Stats is a debug summary of a workspace index's contents.
type Stats struct {
	WorkspaceID    string
	TotalTools     int
	AppCounts      map[string]int
	AvgDocLen      float64
	IDFVocabulary  int
}

// DebugStats returns a snapshot for diagnostics endpoints.
func (w *WorkspaceIndex) DebugStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	appCounts := map[string]int{}
	for _, r := range w.records {
		appCounts[r.appSlug]++
	}
	return Stats{
		WorkspaceID:   w.workspaceID,
		TotalTools:    len(w.records),
		AppCounts:     appCounts,
		AvgDocLen:     w.avgDocLen,
		IDFVocabulary: len(w.idf),
	}
}
