package sparql

import (
	"encoding/json"
	"fmt"
)

// Term is one RDF term in the SPARQL 1.1 JSON results format
type Term struct {
	Type     string `json:"type"` // uri, literal, bnode
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Binding maps variable names to terms for one solution
type Binding map[string]Term

// Value returns the lexical value of a variable, false when unbound
func (b Binding) Value(name string) (string, bool) {
	t, ok := b[name]
	if !ok {
		return "", false
	}
	return t.Value, true
}

type resultsDocument struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// DecodeResults parses a SELECT result document
func DecodeResults(data []byte) ([]Binding, error) {
	var doc resultsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.Results == nil {
		return nil, fmt.Errorf("%w: missing results object", ErrMalformedResponse)
	}
	if doc.Results.Bindings == nil {
		return []Binding{}, nil
	}
	return doc.Results.Bindings, nil
}
