package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quietloop/gosponge/pkg/tcp"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, routes, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if routes != nil {
		t.Fatalf("expected nil routes for a missing file, got %+v", routes)
	}
	if cfg.MSS == 0 {
		t.Fatalf("expected defaults to be filled in")
	}
}

func TestLoadParsesOverridesAndRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yml")
	const doc = `
send_capacity: 8192
routes:
  - prefix: "10.0.0.0"
    prefix_len: 24
    next_hop: "10.0.0.254"
    interface: 0
  - prefix: "0.0.0.0"
    prefix_len: 0
    next_hop: ""
    interface: 1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, routes, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SendCapacity != 8192 {
		t.Fatalf("send capacity = %d, want 8192", cfg.SendCapacity)
	}
	if cfg.MSS != tcp.DefaultMSS {
		t.Fatalf("expected MSS default to be filled in, got %d", cfg.MSS)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Prefix != "10.0.0.0" || routes[0].PrefixLen != 24 {
		t.Fatalf("unexpected first route: %+v", routes[0])
	}
}
