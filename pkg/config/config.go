// Package config loads the YAML-encoded site configuration a gosponge
// embedder uses to tune tcp.Config and populate a router's route
// table, in the same spirit as a deployment-wide site config file
// placed next to an application bundle.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quietloop/gosponge/pkg/tcp"
)

// RouteSpec is the YAML-facing counterpart of a router.Route: a
// next hop expressed as a string, since it may be a literal dotted
// IPv4 address or a hostname to resolve at load time (see
// ResolveRoutes in pkg/router).
type RouteSpec struct {
	Prefix    string `yaml:"prefix"` // dotted IPv4, e.g. "10.0.0.0"
	PrefixLen uint8  `yaml:"prefix_len"`
	NextHop   string `yaml:"next_hop"` // dotted IPv4, hostname, or empty for "direct"
	Interface int    `yaml:"interface"`
}

type document struct {
	tcp.Config `yaml:",inline"`
	Routes     []RouteSpec `yaml:"routes"`
}

// Load reads path as YAML and returns the decoded tcp.Config (with
// spec defaults filled in for any zero-valued field) and route table.
// A missing file is not an error: Load returns tcp.DefaultConfig() and
// a nil route slice, leaving it to the caller to decide whether an
// absent config is fatal.
func Load(path string) (tcp.Config, []RouteSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tcp.DefaultConfig(), nil, nil
		}
		return tcp.Config{}, nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return tcp.Config{}, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return doc.Config.WithDefaults(), doc.Routes, nil
}
