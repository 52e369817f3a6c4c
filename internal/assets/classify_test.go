package assets

import (
	"net/http"
	"net/url"
	"testing"
)

func trunkRules(t *testing.T) *Rules {
	t.Helper()
	rules, err := Compile(RuleSet{
		Origin:       "https://demo.local",
		MutablePaths: []string{"/", "/index.html", "/favicon.svg", "/manifest.json"},
		ImmutablePatterns: []string{
			"/{crate}-{hash}_bg.wasm",
			"/{crate}-{hash}.js",
			"/snippets/wasm-bindgen-futures-{hash}/src/task/worker.js",
			"/app-{hash}.js",
		},
		Variants: []string{"fat", "slim"},
		Crate:    "mcmc-demo",
	})
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	return rules
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestClassify(t *testing.T) {
	rules := trunkRules(t)

	testCases := []struct {
		name   string
		method string
		url    string
		want   Class
	}{
		{"root document", http.MethodGet, "https://demo.local/", Mutable},
		{"empty path is root", http.MethodGet, "https://demo.local", Mutable},
		{"index", http.MethodGet, "https://demo.local/index.html", Mutable},
		{"index with query", http.MethodGet, "https://demo.local/index.html?v=2", Mutable},
		{"manifest", http.MethodGet, "https://demo.local/manifest.json", Mutable},
		{"variant index", http.MethodGet, "https://demo.local/fat/index.html", Mutable},
		{"variant root", http.MethodGet, "https://demo.local/slim/", Mutable},
		{"unknown variant index", http.MethodGet, "https://demo.local/other/index.html", Unmanaged},
		{"suffix without segment boundary", http.MethodGet, "https://demo.local/myindex.html", Unmanaged},
		{"wasm bundle", http.MethodGet, "https://demo.local/mcmc-demo-71c4728f9bc301cd_bg.wasm", Immutable},
		{"js bundle", http.MethodGet, "https://demo.local/mcmc-demo-71c4728f9bc301cd.js", Immutable},
		{"variant js bundle", http.MethodGet, "https://demo.local/fat/mcmc-demo-71c4728f9bc301cd.js", Immutable},
		{"worker snippet", http.MethodGet, "https://demo.local/snippets/wasm-bindgen-futures-0123456789abcdef/src/task/worker.js", Immutable},
		{"scenario asset", http.MethodGet, "https://demo.local/app-3f2a9b7c1d4e5f60.js", Immutable},
		{"short hash", http.MethodGet, "https://demo.local/app-3f2a9b7c.js", Unmanaged},
		{"uppercase hash", http.MethodGet, "https://demo.local/app-3F2A9B7C1D4E5F60.js", Unmanaged},
		{"dot is literal", http.MethodGet, "https://demo.local/app-3f2a9b7c1d4e5f60xjs", Unmanaged},
		{"unlisted path", http.MethodGet, "https://demo.local/data.json", Unmanaged},
		{"cross origin host", http.MethodGet, "https://cdn.example/index.html", Unmanaged},
		{"cross origin scheme", http.MethodGet, "http://demo.local/index.html", Unmanaged},
		{"cross origin port", http.MethodGet, "https://demo.local:8443/index.html", Unmanaged},
		{"explicit default port", http.MethodGet, "https://demo.local:443/index.html", Mutable},
		{"post is unmanaged", http.MethodPost, "https://demo.local/index.html", Unmanaged},
		{"head is unmanaged", http.MethodHead, "https://demo.local/app-3f2a9b7c1d4e5f60.js", Unmanaged},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rules.Classify(tc.method, mustURL(t, tc.url)); got != tc.want {
				t.Fatalf("classify %s %s: expected %s, got %s", tc.method, tc.url, tc.want, got)
			}
		})
	}
}

func TestClassifyWithoutVariantsIsExact(t *testing.T) {
	rules, err := Compile(RuleSet{
		Origin:            "http://localhost:5000",
		MutablePaths:      []string{"/index.html"},
		ImmutablePatterns: []string{"/app-{hash}.js"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := rules.Classify(http.MethodGet, mustURL(t, "http://localhost:5000/fat/index.html")); got != Unmanaged {
		t.Fatalf("variant prefix should not match without variants, got %s", got)
	}
	if got := rules.Classify(http.MethodGet, mustURL(t, "http://localhost:5000/fat/app-3f2a9b7c1d4e5f60.js")); got != Unmanaged {
		t.Fatalf("variant prefix should not match immutable without variants, got %s", got)
	}
	if got := rules.Classify(http.MethodGet, mustURL(t, "http://LOCALHOST:5000/index.html")); got != Mutable {
		t.Fatalf("host comparison should be case-insensitive, got %s", got)
	}
}

func TestClassifyNilRules(t *testing.T) {
	var rules *Rules
	if got := rules.Classify(http.MethodGet, mustURL(t, "https://demo.local/")); got != Unmanaged {
		t.Fatalf("nil rules should classify as unmanaged, got %s", got)
	}
}

func TestCompileRejectsInvalidRules(t *testing.T) {
	testCases := []struct {
		name string
		set  RuleSet
	}{
		{"missing origin", RuleSet{}},
		{"ftp origin", RuleSet{Origin: "ftp://demo.local"}},
		{"relative mutable", RuleSet{Origin: "https://demo.local", MutablePaths: []string{"index.html"}}},
		{"missing hash", RuleSet{Origin: "https://demo.local", ImmutablePatterns: []string{"/app.js"}}},
		{"double hash", RuleSet{Origin: "https://demo.local", ImmutablePatterns: []string{"/{hash}-{hash}.js"}}},
		{"missing crate", RuleSet{Origin: "https://demo.local", ImmutablePatterns: []string{"/{crate}-{hash}.js"}}},
		{"nested variant", RuleSet{Origin: "https://demo.local", Variants: []string{"a/b"}}},
		{"hash too long", RuleSet{Origin: "https://demo.local", HashLength: 65}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile(tc.set); err == nil {
				t.Fatalf("expected compile error")
			}
		})
	}
}

func TestSummaryKeepsSourcePatterns(t *testing.T) {
	rules := trunkRules(t)
	summary := rules.Summary()
	if summary.Origin != "https://demo.local:443" {
		t.Fatalf("unexpected origin: %s", summary.Origin)
	}
	if len(summary.ImmutablePatterns) != 4 || summary.ImmutablePatterns[0] != "/{crate}-{hash}_bg.wasm" {
		t.Fatalf("unexpected patterns: %v", summary.ImmutablePatterns)
	}
	if summary.HashLength != DefaultHashLength {
		t.Fatalf("unexpected hash length: %d", summary.HashLength)
	}
	summary.MutablePaths[0] = "/mutated"
	if rules.Summary().MutablePaths[0] != "/" {
		t.Fatalf("summary should return copies")
	}
}
