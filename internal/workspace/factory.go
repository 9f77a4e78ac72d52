package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

// StoreFactory resolves a per-tenant Store and enumerates known tenants.
// The CronScheduler uses Tenants at startup to discover every workspace's
// scheduled jobs (spec §4.L: "enumerate tenants from the WorkspaceStore").
type StoreFactory interface {
	Store(tenantID string) Store
	Tenants(ctx context.Context) ([]string, error)
}

// FileStoreFactory roots one FileStore per tenant under a shared parent
// directory (root/<tenant_id>/...), matching spec §6's per-tenant opaque
// key-value tree. Grounded on the same local_store.go pattern as FileStore,
// narrowed to lazily cache one child store per tenant ID behind a mutex.
type FileStoreFactory struct {
	mu     sync.Mutex
	root   string
	stores map[string]Store
}

// NewFileStoreFactory creates a factory rooted at root, creating the
// directory if it doesn't already exist.
func NewFileStoreFactory(root string) (*FileStoreFactory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &FileStoreFactory{root: root, stores: make(map[string]Store)}, nil
}

// Store returns (creating if needed) the tenant's FileStore. A failure
// creating the tenant's directory is logged into a store that returns the
// error from every operation rather than panicking the caller.
func (f *FileStoreFactory) Store(tenantID string) Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stores[tenantID]; ok {
		return s
	}
	store, err := NewFileStore(filepath.Join(f.root, tenantID))
	var s Store
	if err != nil {
		s = brokenStore{err: fmt.Errorf("open workspace for tenant %q: %w", tenantID, err)}
	} else {
		s = store
	}
	f.stores[tenantID] = s
	return s
}

// Tenants lists every tenant directory discovered under root so far.
func (f *FileStoreFactory) Tenants(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	var tenants []string
	for _, entry := range entries {
		if entry.IsDir() {
			tenants = append(tenants, entry.Name())
		}
	}
	return tenants, nil
}

// brokenStore satisfies Store by returning the same error from every
// operation, used when a tenant's underlying directory couldn't be created.
type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) ([]byte, bool, error)  { return nil, false, b.err }
func (b brokenStore) Put(context.Context, string, []byte) error         { return b.err }
func (b brokenStore) Append(context.Context, string, string) error      { return b.err }
func (b brokenStore) Delete(context.Context, string) error               { return b.err }
func (b brokenStore) List(context.Context, string) ([]string, error)    { return nil, b.err }

// ChatClient is the explicit interface replacing the source's duck-typed
// "any object with a post-message method" chat client (DESIGN NOTES §9).
// The concrete per-platform adapter is out of this module's scope (spec §1);
// implementations wrap a real chat-platform SDK client behind these four ops.
type ChatClient interface {
	PostMessage(ctx context.Context, channelID, threadID, text string) (messageID string, err error)
	UpdateMessage(ctx context.Context, channelID, messageID, text string) error
	FetchThread(ctx context.Context, channelID, threadID string) ([]lucy.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}
