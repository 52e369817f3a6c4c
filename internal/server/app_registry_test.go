package server

import (
	"testing"

	"github.com/any-hub/assetcache/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000},
		Apps: []config.AppConfig{
			{
				Name:       "mcmc-demo",
				Origin:     "https://mcmc.local",
				Upstream:   "https://mcmc-demo.example.org",
				Generation: "mcmc-demo-v2",
				Preset:     "trunk",
				Crate:      "mcmc-demo",
				HashLength: 16,
			},
			{
				Name:       "docs",
				Origin:     "http://docs.local:8080",
				Upstream:   "https://docs.example.org/site",
				Proxy:      "http://proxy.internal:3128",
				Generation: "docs-v1",
				Preset:     "static",
				HashLength: 8,
			},
		},
	}
}

func TestAppRegistryLookupByHost(t *testing.T) {
	cfg := testConfig()
	registry, err := NewAppRegistry(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	route, ok := registry.Lookup("mcmc.local")
	if !ok {
		t.Fatalf("expected mcmc route")
	}
	if route.Config.Name != "mcmc-demo" {
		t.Errorf("wrong app returned: %s", route.Config.Name)
	}
	if route.Preset.Key != "trunk" {
		t.Errorf("preset mismatch: %s", route.Preset.Key)
	}
	if route.Rules == nil || route.Rules.Origin() != "https://mcmc.local:443" {
		t.Errorf("rules should be compiled against the origin")
	}
	if route.UpstreamURL.String() != "https://mcmc-demo.example.org" {
		t.Errorf("unexpected upstream URL: %s", route.UpstreamURL)
	}
	if route.ProxyURL != nil {
		t.Errorf("expected nil proxy")
	}
	if route.ListenPort != cfg.Global.ListenPort {
		t.Fatalf("route listen port mismatch: %d", route.ListenPort)
	}

	docs, ok := registry.Lookup("DOCS.local:8080")
	if !ok {
		t.Fatalf("expected lookup to ignore case and port")
	}
	if docs.ProxyURL == nil || docs.ProxyURL.Host != "proxy.internal:3128" {
		t.Fatalf("proxy should be parsed")
	}

	if byName, ok := registry.Get("docs"); !ok || byName != docs {
		t.Fatalf("Get should return the same route")
	}
	if got := len(registry.List()); got != 2 {
		t.Fatalf("expected 2 routes in list, got %d", got)
	}
	if _, ok := registry.Lookup("unknown.local"); ok {
		t.Fatalf("unknown host should not resolve")
	}
}

func TestAppRegistryRejectsDuplicateHosts(t *testing.T) {
	cfg := testConfig()
	cfg.Apps[1].Origin = "http://mcmc.local:9000"
	if _, err := NewAppRegistry(cfg); err == nil {
		t.Fatalf("expected duplicate host error")
	}
}

func TestAppRegistryRejectsBrokenRules(t *testing.T) {
	cfg := testConfig()
	cfg.Apps[0].Crate = ""
	if _, err := NewAppRegistry(cfg); err == nil {
		t.Fatalf("trunk preset without crate should fail to compile")
	}
}
