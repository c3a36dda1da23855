package format

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

const (
	spdxVersion     = "SPDX-2.3"
	spdxDataLicense = "CC0-1.0"
	spdxDocumentID  = "SPDXRef-DOCUMENT"
	spdxNoAssertion = "NOASSERTION"
	nvdDetailURL    = "https://nvd.nist.gov/vuln/detail/"
)

var spdxIDUnsafe = regexp.MustCompile(`[^A-Za-z0-9.\-]+`)

type spdxDocument struct {
	SPDXVersion       string             `json:"spdxVersion"`
	DataLicense       string             `json:"dataLicense"`
	SPDXID            string             `json:"SPDXID"`
	Name              string             `json:"name"`
	DocumentNamespace string             `json:"documentNamespace"`
	CreationInfo      spdxCreationInfo   `json:"creationInfo"`
	Packages          []spdxPackage      `json:"packages"`
	Relationships     []spdxRelationship `json:"relationships"`
}

type spdxCreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
}

type spdxPackage struct {
	Name                  string            `json:"name"`
	SPDXID                string            `json:"SPDXID"`
	VersionInfo           string            `json:"versionInfo"`
	DownloadLocation      string            `json:"downloadLocation"`
	FilesAnalyzed         bool              `json:"filesAnalyzed"`
	LicenseConcluded      string            `json:"licenseConcluded"`
	LicenseDeclared       string            `json:"licenseDeclared"`
	CopyrightText         string            `json:"copyrightText"`
	PrimaryPackagePurpose string            `json:"primaryPackagePurpose,omitempty"`
	ExternalRefs          []spdxExternalRef `json:"externalRefs,omitempty"`
	Comment               string            `json:"comment,omitempty"`
}

type spdxExternalRef struct {
	ReferenceCategory string `json:"referenceCategory"`
	ReferenceType     string `json:"referenceType"`
	ReferenceLocator  string `json:"referenceLocator"`
	Comment           string `json:"comment,omitempty"`
}

type spdxRelationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
	Comment            string `json:"comment,omitempty"`
}

// ToSPDX encodes an SPDX 2.3 JSON document: one package per node, DESCRIBES for
// the root versions and DEPENDS_ON for every dependency edge.
func (e *Encoder) ToSPDX(tree *model.ResolvedTree) ([]byte, error) {
	if err := validate(SPDX, tree); err != nil {
		return nil, err
	}

	tool := e.tool()
	doc := spdxDocument{
		SPDXVersion:       spdxVersion,
		DataLicense:       spdxDataLicense,
		SPDXID:            spdxDocumentID,
		Name:              tree.Name,
		DocumentNamespace: fmt.Sprintf("https://spdx.org/spdxdocs/%s-%s", spdxIDUnsafe.ReplaceAllString(tree.Name, "-"), e.id()),
		CreationInfo: spdxCreationInfo{
			Created:  e.timestamp(),
			Creators: []string{fmt.Sprintf("Tool: %s-%s", tool.Name, tool.Version)},
		},
		Packages:      make([]spdxPackage, 0, len(tree.Nodes)),
		Relationships: make([]spdxRelationship, 0, len(tree.Edges)+len(tree.Versions)),
	}

	ids := spdxIDs(tree)
	roots := make(map[string]bool, len(tree.Versions))
	for _, id := range tree.RootIDs() {
		roots[id] = true
	}

	for _, n := range tree.Nodes {
		pkg := spdxPackage{
			Name:             n.Name,
			SPDXID:           ids[n.ID],
			VersionInfo:      n.Version,
			DownloadLocation: spdxNoAssertion,
			FilesAnalyzed:    false,
			LicenseConcluded: spdxNoAssertion,
			LicenseDeclared:  spdxNoAssertion,
			CopyrightText:    spdxNoAssertion,
			ExternalRefs: []spdxExternalRef{{
				ReferenceCategory: "PACKAGE-MANAGER",
				ReferenceType:     "purl",
				ReferenceLocator:  purl(n.Name, n.Version),
			}},
		}
		if roots[n.ID] {
			pkg.PrimaryPackagePurpose = "LIBRARY"
		}
		var unlinked []string
		for _, v := range n.Vulnerabilities {
			locator := advisoryURL(v)
			if locator == "" {
				unlinked = append(unlinked, v.ID)
				continue
			}
			ref := spdxExternalRef{
				ReferenceCategory: "SECURITY",
				ReferenceType:     "advisory",
				ReferenceLocator:  locator,
				Comment:           v.ID,
			}
			if v.Type != "" {
				ref.Comment += " (" + v.Type + ")"
			}
			pkg.ExternalRefs = append(pkg.ExternalRefs, ref)
		}
		if len(unlinked) > 0 {
			pkg.Comment = "Vulnerabilities without advisory URL: " + strings.Join(unlinked, ", ")
		}
		doc.Packages = append(doc.Packages, pkg)
	}

	for _, v := range tree.Versions {
		if id, ok := ids[model.NodeID(tree.Name, v)]; ok {
			doc.Relationships = append(doc.Relationships, spdxRelationship{
				SPDXElementID:      spdxDocumentID,
				RelationshipType:   "DESCRIBES",
				RelatedSPDXElement: id,
			})
		}
	}

	for _, edge := range tree.Edges {
		from, ok := ids[edge.From]
		if !ok {
			continue
		}
		rel := spdxRelationship{SPDXElementID: from, RelationshipType: "DEPENDS_ON"}
		switch edge.Kind {
		case model.EdgeDependsOn:
			rel.RelatedSPDXElement = ids[edge.To]
		case model.EdgeCycle:
			rel.RelatedSPDXElement = ids[edge.To]
			rel.Comment = "cycle: " + edge.To + " is an ancestor of " + edge.From
		case model.EdgeDepthLimit:
			rel.RelatedSPDXElement = spdxNoAssertion
			rel.Comment = "depth limit reached before " + edge.To
		}
		doc.Relationships = append(doc.Relationships, rel)
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// spdxIDs assigns each node a unique SPDX element id made of [A-Za-z0-9.-]
func spdxIDs(tree *model.ResolvedTree) map[string]string {
	ids := make(map[string]string, len(tree.Nodes))
	used := make(map[string]bool, len(tree.Nodes))
	for _, n := range tree.Nodes {
		base := "SPDXRef-Package-" + strings.Trim(spdxIDUnsafe.ReplaceAllString(n.ID, "-"), "-")
		id := base
		for i := 2; used[id]; i++ {
			id = fmt.Sprintf("%s-%d", base, i)
		}
		used[id] = true
		ids[n.ID] = id
	}
	return ids
}

// validate checks the invariants a consumer of the document relies on
func (d *spdxDocument) validate() error {
	known := map[string]bool{spdxDocumentID: true, spdxNoAssertion: true}
	for _, p := range d.Packages {
		if p.Name == "" || p.VersionInfo == "" {
			return &FormatError{Format: string(SPDX), Field: "packages", Reason: fmt.Sprintf("%s lacks name or version", p.SPDXID)}
		}
		if known[p.SPDXID] {
			return &FormatError{Format: string(SPDX), Field: "packages", Reason: "duplicate SPDXID " + p.SPDXID}
		}
		known[p.SPDXID] = true
	}
	for _, r := range d.Relationships {
		if !known[r.SPDXElementID] || !known[r.RelatedSPDXElement] {
			return &FormatError{Format: string(SPDX), Field: "relationships",
				Reason: fmt.Sprintf("%s %s %s refers to an unknown element", r.SPDXElementID, r.RelationshipType, r.RelatedSPDXElement)}
		}
	}
	return nil
}

// advisoryURL returns a link for a vulnerability, derived from its id when the graph has none
func advisoryURL(v model.Vulnerability) string {
	if strings.HasPrefix(v.URI, "http://") || strings.HasPrefix(v.URI, "https://") {
		return v.URI
	}
	if strings.HasPrefix(strings.ToUpper(v.ID), "CVE-") {
		return nvdDetailURL + strings.ToUpper(v.ID)
	}
	return ""
}

// purl builds a generic package URL; the knowledge graph carries no ecosystem
func purl(name, version string) string {
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", name, version, nil, "").ToString()
}
