package format

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

// Component property names carrying truncation markers
const (
	propertyTruncated = "sbom-resolver:truncated"
	propertyCycle     = "sbom-resolver:cycle"
)

// ToCycloneDX encodes a CycloneDX 1.5 JSON document. The latest root version is
// the metadata component; every other node is a library component.
func (e *Encoder) ToCycloneDX(tree *model.ResolvedTree) ([]byte, error) {
	if err := validate(CycloneDX, tree); err != nil {
		return nil, err
	}

	tool := e.tool()
	bom := cdx.NewBOM()
	bom.SerialNumber = "urn:uuid:" + e.id()

	latestID := model.NodeID(tree.Name, tree.Latest)
	if tree.Latest == "" {
		latestID = tree.RootIDs()[0]
	}

	properties := make(map[string][]cdx.Property)
	for _, edge := range tree.Edges {
		switch edge.Kind {
		case model.EdgeCycle:
			properties[edge.From] = append(properties[edge.From], cdx.Property{Name: propertyCycle, Value: edge.To})
		case model.EdgeDepthLimit:
			properties[edge.From] = append(properties[edge.From], cdx.Property{Name: propertyTruncated, Value: edge.To})
		}
	}

	components := make([]cdx.Component, 0, len(tree.Nodes))
	var root *cdx.Component
	for _, n := range tree.Nodes {
		c := cdx.Component{
			BOMRef:     n.ID,
			Type:       cdx.ComponentTypeLibrary,
			Name:       n.Name,
			Version:    n.Version,
			PackageURL: purl(n.Name, n.Version),
		}
		if props := properties[n.ID]; len(props) > 0 {
			c.Properties = &props
		}
		if n.ID == latestID {
			root = &c
			continue
		}
		components = append(components, c)
	}

	bom.Metadata = &cdx.Metadata{
		Timestamp: e.timestamp(),
		Tools: &cdx.ToolsChoice{
			Components: &[]cdx.Component{{
				Type:    cdx.ComponentTypeApplication,
				Name:    tool.Name,
				Version: tool.Version,
			}},
		},
		Component: root,
	}
	bom.Components = &components

	dependencies := make([]cdx.Dependency, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		var refs []string
		seen := make(map[string]bool)
		for _, edge := range tree.Children(n.ID) {
			if edge.Kind == model.EdgeDepthLimit || seen[edge.To] {
				continue
			}
			seen[edge.To] = true
			refs = append(refs, edge.To)
		}
		dep := cdx.Dependency{Ref: n.ID}
		if len(refs) > 0 {
			dep.Dependencies = &refs
		}
		dependencies = append(dependencies, dep)
	}
	bom.Dependencies = &dependencies

	if vulns := cdxVulnerabilities(tree); len(vulns) > 0 {
		bom.Vulnerabilities = &vulns
	}

	var buf bytes.Buffer
	enc := cdx.NewBOMEncoder(&buf, cdx.BOMFileFormatJSON)
	enc.SetPretty(true)
	if err := enc.EncodeVersion(bom, cdx.SpecVersion1_5); err != nil {
		return nil, &FormatError{Format: string(CycloneDX), Field: "bom", Reason: err.Error()}
	}
	return buf.Bytes(), nil
}

// cdxVulnerabilities merges vulnerabilities by id, listing every affected node
func cdxVulnerabilities(tree *model.ResolvedTree) []cdx.Vulnerability {
	byID := make(map[string]*cdx.Vulnerability)
	var order []string
	for _, n := range tree.Nodes {
		for _, v := range n.Vulnerabilities {
			cv, ok := byID[v.ID]
			if !ok {
				cv = &cdx.Vulnerability{
					BOMRef:  "vuln-" + v.ID,
					ID:      v.ID,
					Affects: &[]cdx.Affects{},
				}
				if url := advisoryURL(v); url != "" {
					name := "knowledge graph"
					if strings.HasPrefix(url, nvdDetailURL) {
						name = "NVD"
					}
					cv.Source = &cdx.Source{Name: name, URL: url}
				}
				if cwe, ok := parseCWE(v.Type); ok {
					cv.CWEs = &[]int{cwe}
				}
				byID[v.ID] = cv
				order = append(order, v.ID)
			}
			*cv.Affects = append(*cv.Affects, cdx.Affects{Ref: n.ID})
		}
	}

	sort.Strings(order)
	out := make([]cdx.Vulnerability, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// parseCWE extracts 787 from "CWE-787"
func parseCWE(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "CWE-") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "CWE-"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
