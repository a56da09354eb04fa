package mcpclient

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
)

func TestProbeRejectsInvalidDefinition(t *testing.T) {
	p := NewProber(5 * time.Second)

	_, err := p.Probe(context.Background(), &mcp.Server{Name: "broken", Transport: "carrier-pigeon"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProbeReportsUnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network probe in short mode")
	}
	p := NewProber(2 * time.Second)

	res, err := p.Probe(context.Background(), &mcp.Server{
		Name:      "unreachable",
		Transport: mcp.TransportSSE,
		URL:       "http://127.0.0.1:1/sse",
	})
	if err != nil {
		t.Fatalf("probe returned error instead of result: %v", err)
	}
	if res.Status != mcp.ServerStatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Error == "" {
		t.Fatal("expected error detail in result")
	}
}

func TestEnvMapToSlice(t *testing.T) {
	if got := envMapToSlice(nil); got != nil {
		t.Fatalf("expected nil for empty map, got %v", got)
	}

	got := envMapToSlice(map[string]string{"A": "1", "B": "2"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Fatalf("unexpected slice %v", got)
	}
}
