package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
)

func (r *Resolver) locate(ctx context.Context, name string) (bool, error) {
	rows, err := r.q.Execute(ctx, sparql.LocateComponent, sparql.Params{sparql.ParamName: name})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// versions returns the distinct version ids of a component, newest first
func (r *Resolver) versions(ctx context.Context, name string) ([]string, error) {
	rows, err := r.q.Execute(ctx, sparql.ListVersions, sparql.Params{sparql.ParamName: name})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	versions := make([]string, 0, len(rows))
	for _, row := range rows {
		v, ok := row.Value("version_id")
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}
	model.SortVersionsDesc(versions)
	return versions, nil
}

// dependencies returns the direct dependencies of a version ordered by name, then
// newest version first. Rows without a version name are skipped.
func (r *Resolver) dependencies(ctx context.Context, ref model.Ref) ([]model.Ref, error) {
	rows, err := r.q.Execute(ctx, sparql.ListDependencies, sparql.Params{
		sparql.ParamName:    ref.Name,
		sparql.ParamVersion: ref.Version,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	deps := make([]model.Ref, 0, len(rows))
	for _, row := range rows {
		version, ok := row.Value("depVersionName")
		if !ok || version == "" {
			continue
		}
		name, _ := row.Value("depName")
		if strings.TrimSpace(name) == "" {
			iri, _ := row.Value("dependency")
			name = lastSegment(iri)
		}
		dep := model.Ref{Name: model.NormalizeName(name), Version: version}
		if dep.Name == "" || seen[dep.ID()] {
			continue
		}
		seen[dep.ID()] = true
		deps = append(deps, dep)
	}

	sort.SliceStable(deps, func(i, j int) bool {
		if deps[i].Name != deps[j].Name {
			return deps[i].Name < deps[j].Name
		}
		return model.CompareVersions(deps[i].Version, deps[j].Version) > 0
	})
	return deps, nil
}

// vulnerabilities returns the vulnerabilities attached to a version, ordered by id
func (r *Resolver) vulnerabilities(ctx context.Context, ref model.Ref) ([]model.Vulnerability, error) {
	rows, err := r.q.Execute(ctx, sparql.ListVulnerabilities, sparql.Params{
		sparql.ParamName:    ref.Name,
		sparql.ParamVersion: ref.Version,
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(rows))
	vulns := make([]model.Vulnerability, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Value("vulnId")
		if !ok || id == "" {
			continue
		}
		v := model.Vulnerability{ID: id}
		if term, ok := row["vulnerability"]; ok && term.Type == "uri" {
			v.URI = term.Value
		}
		if typ, ok := row.Value("vulnType"); ok {
			v.Type = lastSegment(typ)
		}

		// Several type rows for one vulnerability collapse into the first
		if i, dup := byID[id]; dup {
			if vulns[i].Type == "" {
				vulns[i].Type = v.Type
			}
			continue
		}
		byID[id] = len(vulns)
		vulns = append(vulns, v)
	}

	sort.Slice(vulns, func(i, j int) bool { return vulns[i].ID < vulns[j].ID })
	return vulns, nil
}

// lastSegment extracts the local name of an IRI ("https://x/software/libpng" -> "libpng")
func lastSegment(iri string) string {
	iri = strings.TrimRight(iri, "/#")
	if i := strings.LastIndexAny(iri, "/#"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}
