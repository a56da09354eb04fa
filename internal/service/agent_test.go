package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
)

// memCache is a minimal Cache for exercising the read-through path.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	misses  int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func validAgent(clientID string) *agent.Agent {
	return &agent.Agent{
		ClientID:    clientID,
		Name:        "support",
		Type:        agent.TypeLLM,
		Model:       "gpt-4o",
		Instruction: "be helpful",
	}
}

func TestAgentCreateAndGet(t *testing.T) {
	svc := NewAgentService(newFakeStore(), nil, 0)

	created, err := svc.Create(context.Background(), validAgent("client-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() assigned no ID")
	}

	got, err := svc.Get(context.Background(), "client-1", created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "support" {
		t.Errorf("Name = %q, want support", got.Name)
	}

	// Another client cannot see it.
	if _, err := svc.Get(context.Background(), "client-2", created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() cross-client error = %v, want ErrNotFound", err)
	}
}

func TestAgentCreateValidation(t *testing.T) {
	svc := NewAgentService(newFakeStore(), nil, 0)

	a := validAgent("client-1")
	a.Model = ""
	if _, err := svc.Create(context.Background(), a); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Create() error = %v, want ErrValidation", err)
	}
}

func TestGetForDispatchCaches(t *testing.T) {
	cache := newMemCache()
	svc := NewAgentService(newFakeStore(), cache, time.Minute)

	created, err := svc.Create(context.Background(), validAgent("client-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.GetForDispatch(context.Background(), created.ID); err != nil {
			t.Fatalf("GetForDispatch() error = %v", err)
		}
	}
	if cache.misses != 1 {
		t.Errorf("cache misses = %d, want 1", cache.misses)
	}
	if cache.hits != 2 {
		t.Errorf("cache hits = %d, want 2", cache.hits)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	cache := newMemCache()
	svc := NewAgentService(newFakeStore(), cache, time.Minute)

	created, err := svc.Create(context.Background(), validAgent("client-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.GetForDispatch(context.Background(), created.ID); err != nil {
		t.Fatalf("GetForDispatch() error = %v", err)
	}

	created.Name = "renamed"
	if _, err := svc.Update(context.Background(), created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := svc.GetForDispatch(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetForDispatch() after update error = %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed (stale cache)", got.Name)
	}
}

func TestUpdateStaleVersion(t *testing.T) {
	svc := NewAgentService(newFakeStore(), nil, 0)

	created, err := svc.Create(context.Background(), validAgent("client-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stale := *created
	if _, err := svc.Update(context.Background(), created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := svc.Update(context.Background(), &stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Update() with stale version error = %v, want ErrConflict", err)
	}
}

func TestFolderLifecycle(t *testing.T) {
	svc := NewAgentService(newFakeStore(), nil, 0)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, &agent.CreateFolderRequest{ClientID: "client-1", Name: "sales"})
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	a, err := svc.Create(ctx, validAgent("client-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.AssignFolder(ctx, "client-1", a.ID, &folder.ID); err != nil {
		t.Fatalf("AssignFolder() error = %v", err)
	}

	got, err := svc.Get(ctx, "client-1", a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.FolderID == nil || *got.FolderID != folder.ID {
		t.Errorf("FolderID = %v, want %q", got.FolderID, folder.ID)
	}

	// Unassign.
	if err := svc.AssignFolder(ctx, "client-1", a.ID, nil); err != nil {
		t.Fatalf("AssignFolder(nil) error = %v", err)
	}
	got, err = svc.Get(ctx, "client-1", a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.FolderID != nil {
		t.Errorf("FolderID = %v, want nil", got.FolderID)
	}

	folders, err := svc.ListFolders(ctx, "client-1")
	if err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if len(folders) != 1 {
		t.Errorf("folders = %d, want 1", len(folders))
	}

	if err := svc.DeleteFolder(ctx, "client-1", folder.ID); err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
}
