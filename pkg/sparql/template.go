package sparql

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ritzau/sbom-resolver/pkg/config"
)

// TemplateID names one of the parametrized queries
type TemplateID string

const (
	LocateComponent     TemplateID = "locate_component"
	ListVersions        TemplateID = "list_versions"
	ListDependencies    TemplateID = "list_dependencies"
	ListVulnerabilities TemplateID = "list_vulnerabilities"
)

// Parameter names understood by the templates
const (
	ParamName    = "name"
	ParamVersion = "version"
)

// Params are the literal values bound into a template
type Params map[string]string

// valuesMarker is where the VALUES block is inserted. It never survives rendering.
const valuesMarker = "\x00values\x00"

// Query bodies. Predicates are baked in once from the ontology; every user literal
// arrives through the VALUES block bound to ?p_<param>.
const (
	componentMatch = `
  ?software <{{.Name}}> ?label .
  FILTER(LCASE(STR(?label)) = ?p_name)`

	versionMatch = componentMatch + `
  ?software <{{.HasVersion}}> ?version .
  ?version <{{.VersionName}}> ?vname .
  FILTER(STR(?vname) = ?p_version)`

	locateBody = `SELECT ?software ?label
WHERE {
  {{.Values}}` + componentMatch + `
}
LIMIT 1
`

	versionsBody = `SELECT DISTINCT ?version_id
WHERE {
  {{.Values}}` + componentMatch + `
  ?software <{{.HasVersion}}> ?version .
  ?version <{{.VersionName}}> ?version_id .
}
`

	dependenciesBody = `SELECT DISTINCT ?dependency ?depName ?depVersionName
WHERE {
  {{.Values}}` + versionMatch + `
  ?version <{{.DependsOn}}> ?depVersion .
  ?depVersion <{{.VersionName}}> ?depVersionName .
  ?dependency <{{.HasVersion}}> ?depVersion .
  OPTIONAL { ?dependency <{{.Name}}> ?depName . }
}
`

	vulnerabilitiesBody = `SELECT DISTINCT ?vulnerability ?vulnId ?vulnType
WHERE {
  {{.Values}}` + versionMatch + `
  ?version <{{.VulnerableTo}}> ?vulnerability .
  ?vulnerability <{{.Identifier}}> ?vulnId .
  OPTIONAL { ?vulnerability <{{.VulnerabilityType}}> ?vulnType . }
}
`
)

// Template is a query with declared parameters
type Template struct {
	ID     TemplateID
	Params []string
	head   string
	tail   string
}

// Templates holds the rendered query set for one ontology
type Templates struct {
	byID map[TemplateID]*Template
}

// NewTemplates validates the ontology predicates and builds the query set
func NewTemplates(o config.Ontology) (*Templates, error) {
	predicates := map[string]string{
		"name":              o.Name,
		"hasversion":        o.HasVersion,
		"versionname":       o.VersionName,
		"dependson":         o.DependsOn,
		"vulnerableto":      o.VulnerableTo,
		"identifier":        o.Identifier,
		"vulnerabilitytype": o.VulnerabilityType,
	}
	for key, iri := range predicates {
		if err := validateIRI(iri); err != nil {
			return nil, fmt.Errorf("ontology.%s: %w", key, err)
		}
	}

	data := struct {
		config.Ontology
		Values string
	}{o, valuesMarker}

	defs := []struct {
		id     TemplateID
		body   string
		params []string
	}{
		{LocateComponent, locateBody, []string{ParamName}},
		{ListVersions, versionsBody, []string{ParamName}},
		{ListDependencies, dependenciesBody, []string{ParamName, ParamVersion}},
		{ListVulnerabilities, vulnerabilitiesBody, []string{ParamName, ParamVersion}},
	}

	ts := &Templates{byID: make(map[TemplateID]*Template, len(defs))}
	for _, d := range defs {
		tmpl, err := template.New(string(d.id)).Parse(d.body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", d.id, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("execute template %s: %w", d.id, err)
		}
		head, tail, ok := strings.Cut(buf.String(), valuesMarker)
		if !ok {
			return nil, fmt.Errorf("template %s has no VALUES slot", d.id)
		}
		ts.byID[d.id] = &Template{ID: d.id, Params: d.params, head: head, tail: tail}
	}
	return ts, nil
}

// Get returns the template with the given id
func (ts *Templates) Get(id TemplateID) (*Template, bool) {
	t, ok := ts.byID[id]
	return t, ok
}

// Render binds params into the template. Every declared parameter must be present,
// no undeclared parameter is accepted, and values must be valid UTF-8.
func (ts *Templates) Render(id TemplateID, params Params) (string, error) {
	t, ok := ts.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown template %q", ErrInvalidParams, id)
	}

	declared := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		declared[p] = true
	}
	var unknown []string
	for k := range params {
		if !declared[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", fmt.Errorf("%w: %s does not take %s", ErrInvalidParams, id, strings.Join(unknown, ", "))
	}

	vars := make([]string, 0, len(t.Params))
	literals := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		v, ok := params[p]
		if !ok {
			return "", fmt.Errorf("%w: %s requires %q", ErrInvalidParams, id, p)
		}
		if !utf8.ValidString(v) {
			return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidParams, p)
		}
		vars = append(vars, "?p_"+p)
		literals = append(literals, quoteLiteral(v))
	}

	values := fmt.Sprintf("VALUES (%s) { (%s) }", strings.Join(vars, " "), strings.Join(literals, " "))
	return t.head + values + t.tail, nil
}

// quoteLiteral writes a SPARQL STRING_LITERAL2 using ECHAR escapes
func quoteLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func validateIRI(iri string) error {
	if iri == "" {
		return fmt.Errorf("predicate IRI is empty")
	}
	if strings.ContainsAny(iri, "<>\"{}|^`\\ \t\n\r") {
		return fmt.Errorf("predicate %q contains characters not allowed in an IRI", iri)
	}
	u, err := url.Parse(iri)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("predicate %q is not an absolute IRI", iri)
	}
	return nil
}
