package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/sbom-resolver/pkg/cache"
	"github.com/ritzau/sbom-resolver/pkg/config"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
)

var valuesPattern = regexp.MustCompile(`VALUES \([^)]*\) \{ \("([^"]*)"(?: "([^"]*)")?\) \}`)

// triplestoreResponse plays the endpoint for the zlib scenario at the query-text level
func triplestoreResponse(_ context.Context, query string) ([]byte, error) {
	m := valuesPattern.FindStringSubmatch(query)
	if m == nil {
		return nil, &sparql.StatusError{StatusCode: 400, Body: "no VALUES block"}
	}
	name, version := m[1], m[2]

	rows := []string{}
	switch {
	case strings.HasPrefix(query, "SELECT ?software"):
		if name == "zlib" {
			rows = append(rows, `{"software":{"type":"uri","value":"https://example.org/software/zlib"},"label":{"type":"literal","value":"zlib"}}`)
		}
	case strings.HasPrefix(query, "SELECT DISTINCT ?version_id"):
		if name == "zlib" {
			rows = append(rows,
				`{"version_id":{"type":"literal","value":"1.2.8"}}`,
				`{"version_id":{"type":"literal","value":"1.2.11"}}`)
		}
	case strings.HasPrefix(query, "SELECT DISTINCT ?dependency"):
		if name == "zlib" && version == "1.2.11" {
			rows = append(rows, `{"dependency":{"type":"uri","value":"https://example.org/software/libpng"},"depName":{"type":"literal","value":"LibPNG"},"depVersionName":{"type":"literal","value":"1.6.0"}}`)
		}
	case strings.HasPrefix(query, "SELECT DISTINCT ?vulnerability"):
		if name == "libpng" && version == "1.6.0" {
			rows = append(rows, `{"vulnerability":{"type":"uri","value":"https://nvd.nist.gov/vuln/detail/CVE-2022-37434"},"vulnId":{"type":"literal","value":"CVE-2022-37434"},"vulnType":{"type":"uri","value":"https://cwe.mitre.org/CWE-787"}}`)
		}
	default:
		return nil, &sparql.StatusError{StatusCode: 400, Body: "unexpected query"}
	}
	return []byte(fmt.Sprintf(`{"head":{"vars":[]},"results":{"bindings":[%s]}}`, strings.Join(rows, ","))), nil
}

func TestResolve_ThroughSparqlClient(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	templates, err := sparql.NewTemplates(cfg.Ontology)
	if err != nil {
		t.Fatal(err)
	}
	mock := &sparql.MockExecutor{QueryFunc: triplestoreResponse}
	client := sparql.NewClient(mock, templates, sparql.Options{Attempts: 1})
	c := cache.New[[]sparql.Binding](cache.Options{Capacity: 100, TTL: time.Minute})
	r := New(NewCachedQuerier(client, c), Options{})

	tree, err := r.Resolve(context.Background(), "zlib")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(tree.Nodes) != 3 || len(tree.Edges) != 1 {
		t.Fatalf("got %d nodes, %d edges; want 3 and 1", len(tree.Nodes), len(tree.Edges))
	}
	libpng, ok := tree.Node("libpng-1.6.0")
	if !ok {
		t.Fatal("dependency name should come from schema:name, normalized to libpng")
	}
	if len(libpng.Vulnerabilities) != 1 || libpng.Vulnerabilities[0].ID != "CVE-2022-37434" {
		t.Errorf("vulnerabilities = %+v", libpng.Vulnerabilities)
	}

	// Second resolution is served from the cache
	calls := mock.Calls()
	if _, err := r.Resolve(context.Background(), "ZLIB"); err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != calls {
		t.Errorf("second resolution issued %d upstream queries, want 0", mock.Calls()-calls)
	}
}

func TestCachedQuerier_KeysByCanonicalParams(t *testing.T) {
	g := zlibGraph()
	c := cache.New[[]sparql.Binding](cache.Options{Capacity: 10, TTL: time.Minute})
	q := NewCachedQuerier(g, c)

	ctx := context.Background()
	for _, name := range []string{"zlib", "ZLIB", " zlib "} {
		if _, err := q.Execute(ctx, sparql.ListVersions, sparql.Params{sparql.ParamName: name}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(g.callCounts()); n != 1 {
		t.Errorf("distinct upstream keys = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", c.Len())
	}
}

func TestCachedQuerier_SeparatorInParamsDoesNotShareEntry(t *testing.T) {
	g := newFakeGraph()
	c := cache.New[[]sparql.Binding](cache.Options{Capacity: 10, TTL: time.Minute})
	q := NewCachedQuerier(g, c)

	ctx := context.Background()
	for _, p := range []sparql.Params{
		{sparql.ParamName: "a|b", sparql.ParamVersion: "c"},
		{sparql.ParamName: "a", sparql.ParamVersion: "b|c"},
	} {
		if _, err := q.Execute(ctx, sparql.ListDependencies, p); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(g.callCounts()); n != 2 {
		t.Errorf("distinct upstream keys = %d, want 2", n)
	}
	if c.Len() != 2 {
		t.Errorf("cache entries = %d, want 2", c.Len())
	}
}
