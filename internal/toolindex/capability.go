package toolindex

import "sync"

// CapabilityIndex is the process-global registry of per-workspace (tenant)
// BM25 indexes (spec §4.E).
type CapabilityIndex struct {
	mu      sync.Mutex
	indexes map[string]*WorkspaceIndex
}

// NewCapabilityIndex creates an empty registry.
func NewCapabilityIndex() *CapabilityIndex {
	return &CapabilityIndex{indexes: make(map[string]*WorkspaceIndex)}
}

// Get returns (creating if needed) the index for a workspace.
func (c *CapabilityIndex) Get(workspaceID string) *WorkspaceIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[workspaceID]
	if !ok {
		idx = NewWorkspaceIndex(workspaceID)
		c.indexes[workspaceID] = idx
	}
	return idx
}

// Invalidate drops a workspace's index entirely, forcing a rebuild on next Get.
func (c *CapabilityIndex) Invalidate(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indexes, workspaceID)
}

// StaleWorkspaces returns the IDs of every currently-tracked workspace whose
// index is stale, for the background refresher (spec §4.E: "re-populates
// for stale tenants at 240 s intervals").
func (c *CapabilityIndex) StaleWorkspaces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []string
	for id, idx := range c.indexes {
		if idx.IsStale() {
			stale = append(stale, id)
		}
	}
	return stale
}

// TotalIndexedTools sums the tool count across every tracked workspace.
func (c *CapabilityIndex) TotalIndexedTools() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, idx := range c.indexes {
		total += idx.Size()
	}
	return total
}

// RegistrySnapshot is a diagnostic view of the whole registry.
type RegistrySnapshot struct {
	Workspaces   int
	TotalTools   int
	PerWorkspace []Stats
}

// Snapshot returns a diagnostic view for a health/index endpoint.
func (c *CapabilityIndex) Snapshot() RegistrySnapshot {
	c.mu.Lock()
	indexes := make([]*WorkspaceIndex, 0, len(c.indexes))
	for _, idx := range c.indexes {
		indexes = append(indexes, idx)
	}
	c.mu.Unlock()

	snap := RegistrySnapshot{Workspaces: len(indexes)}
	for _, idx := range indexes {
		stats := idx.DebugStats()
		snap.TotalTools += stats.TotalTools
		snap.PerWorkspace = append(snap.PerWorkspace, stats)
	}
	return snap
}
