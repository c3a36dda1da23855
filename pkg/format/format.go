package format

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

// Format selects an output encoding
type Format string

const (
	JSON      Format = "json"
	SPDX      Format = "spdx"
	CycloneDX Format = "cyclonedx"
)

// Formats lists the supported encodings
var Formats = []Format{JSON, SPDX, CycloneDX}

// ParseFormat accepts a format name, case-insensitive. Unknown names are an
// error and never fall back to JSON.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", &FormatError{Format: s, Field: "format", Reason: "unsupported format, want one of json, spdx, cyclonedx"}
}

// ContentType returns the media type of the encoded document
func (f Format) ContentType() string {
	switch f {
	case SPDX:
		return "application/spdx+json"
	case CycloneDX:
		return "application/vnd.cyclonedx+json; version=1.5"
	}
	return "application/json"
}

// Tool identifies the generator in document metadata
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DefaultTool is recorded as the document creator
var DefaultTool = Tool{Name: "Secure-Chain SBOM Generator", Version: "1.0.0"}

// Encoder converts resolved trees to documents. The clock and id source are
// injectable so output can be made reproducible.
type Encoder struct {
	Now   func() time.Time
	NewID func() string
	Tool  Tool
}

// NewEncoder creates an encoder using wall-clock time and random UUIDs
func NewEncoder() *Encoder {
	return &Encoder{
		Now:   time.Now,
		NewID: func() string { return uuid.New().String() },
		Tool:  DefaultTool,
	}
}

// Encode converts tree with the selected format
func (e *Encoder) Encode(f Format, tree *model.ResolvedTree) ([]byte, error) {
	switch f {
	case JSON:
		return e.ToJSON(tree)
	case SPDX:
		return e.ToSPDX(tree)
	case CycloneDX:
		return e.ToCycloneDX(tree)
	}
	return nil, &FormatError{Format: string(f), Field: "format", Reason: "unsupported format"}
}

// Encode converts tree with a default encoder
func Encode(f Format, tree *model.ResolvedTree) ([]byte, error) {
	return NewEncoder().Encode(f, tree)
}

// ToJSON encodes the plain JSON document
func ToJSON(tree *model.ResolvedTree) ([]byte, error) {
	return NewEncoder().ToJSON(tree)
}

// ToSPDX encodes an SPDX 2.3 JSON document
func ToSPDX(tree *model.ResolvedTree) ([]byte, error) {
	return NewEncoder().ToSPDX(tree)
}

// ToCycloneDX encodes a CycloneDX 1.5 JSON document
func ToCycloneDX(tree *model.ResolvedTree) ([]byte, error) {
	return NewEncoder().ToCycloneDX(tree)
}

func (e *Encoder) timestamp() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (e *Encoder) id() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.New().String()
}

func (e *Encoder) tool() Tool {
	if e.Tool.Name == "" {
		return DefaultTool
	}
	return e.Tool
}

// validate checks the fields every format requires
func validate(f Format, tree *model.ResolvedTree) error {
	switch {
	case tree == nil:
		return &FormatError{Format: string(f), Field: "tree", Reason: "no tree to encode"}
	case strings.TrimSpace(tree.Name) == "":
		return &FormatError{Format: string(f), Field: "name", Reason: "must not be empty"}
	case len(tree.Versions) == 0:
		return &FormatError{Format: string(f), Field: "versions", Reason: "must not be empty"}
	}
	return nil
}
