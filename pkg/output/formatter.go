package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/sbom-resolver/pkg/cycles"
	"github.com/ritzau/sbom-resolver/pkg/graph"
	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/resolver"
)

// Summary holds the numbers shown in the console report
type Summary struct {
	Name            string
	Versions        []string
	Latest          string
	Components      int
	Dependencies    int
	Cycles          []cycles.CycleGroup
	Truncated       int
	MaxDepth        int
	Vulnerable      []VulnerableComponent
	Vulnerabilities int // Distinct ids
}

// VulnerableComponent is a component version with known vulnerabilities
type VulnerableComponent struct {
	ID  string
	IDs []string
}

// Summarize computes the report for a resolved tree
func Summarize(tree *model.ResolvedTree) *Summary {
	cg := graph.Build(tree)
	s := &Summary{
		Name:         tree.Name,
		Versions:     tree.Versions,
		Latest:       tree.Latest,
		Components:   len(tree.Nodes),
		Dependencies: tree.CountEdges(model.EdgeDependsOn),
		Cycles:       cycles.FindCycles(cg),
		Truncated:    tree.CountEdges(model.EdgeDepthLimit),
		MaxDepth:     cg.MaxDepth(),
	}

	distinct := make(map[string]bool)
	for _, n := range tree.Vulnerable() {
		vc := VulnerableComponent{ID: n.ID}
		for _, v := range n.Vulnerabilities {
			vc.IDs = append(vc.IDs, v.ID)
			distinct[v.ID] = true
		}
		s.Vulnerable = append(s.Vulnerable, vc)
	}
	sort.Slice(s.Vulnerable, func(i, j int) bool { return s.Vulnerable[i].ID < s.Vulnerable[j].ID })
	s.Vulnerabilities = len(distinct)
	return s
}

// PrintSummary writes a colored report of a resolution to w. A partial tree is
// reported along with the step that failed.
func PrintSummary(w io.Writer, tree *model.ResolvedTree, resolveErr error) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if tree == nil {
		red.Fprintf(w, "Resolution failed: %v\n", resolveErr)
		return
	}
	s := Summarize(tree)

	bold.Fprintln(w, "SBOM Resolver - Dependency Report")
	bold.Fprintln(w, "=================================")
	fmt.Fprintf(w, "Component: %s\n", s.Name)
	if len(s.Versions) == 0 {
		yellow.Fprintln(w, "Versions: none found")
	} else {
		fmt.Fprintf(w, "Versions: %s (latest %s)\n", strings.Join(s.Versions, ", "), s.Latest)
	}
	fmt.Fprintf(w, "Resolved: %d component versions, %d dependency edges, depth %d\n", s.Components, s.Dependencies, s.MaxDepth)
	fmt.Fprintln(w)

	if len(s.Cycles) > 0 {
		yellow.Fprintf(w, "CYCLES (%d):\n", len(s.Cycles))
		for _, c := range s.Cycles {
			cyan.Fprintf(w, "  %s\n", strings.Join(c.Components, " -> "))
		}
		fmt.Fprintln(w)
	}

	if s.Truncated > 0 {
		yellow.Fprintf(w, "Depth limit reached on %d edge(s); the tree below them is not expanded\n\n", s.Truncated)
	}

	if len(s.Vulnerable) == 0 {
		green.Fprintln(w, "No known vulnerabilities")
	} else {
		red.Fprintf(w, "VULNERABILITIES: %d distinct in %d component version(s)\n", s.Vulnerabilities, len(s.Vulnerable))
		for _, vc := range s.Vulnerable {
			yellow.Fprintf(w, "  %s\n", vc.ID)
			cyan.Fprintf(w, "    %s\n", strings.Join(vc.IDs, ", "))
		}
	}

	var partial *resolver.PartialResolutionError
	if errors.As(resolveErr, &partial) {
		fmt.Fprintln(w)
		red.Fprintf(w, "PARTIAL RESULT: %s failed: %v\n", partial.Step, partial.Err)
	}
}
