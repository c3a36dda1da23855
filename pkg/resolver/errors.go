package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ritzau/sbom-resolver/pkg/model"
)

var (
	// ErrEmptyName is returned for a blank root component name
	ErrEmptyName = errors.New("component name is empty")
	// ErrTimeout matches a PartialResolutionError caused by the resolution deadline
	ErrTimeout = errors.New("resolution timed out")
)

// NotFoundError reports a root component that does not exist in the knowledge graph
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component %q not found", e.Name)
}

// PartialResolutionError carries the tree built before a query step failed
type PartialResolutionError struct {
	Root string
	Step string // e.g. "list_dependencies zlib-1.2.11"
	Err  error
	Tree *model.ResolvedTree
}

func (e *PartialResolutionError) Error() string {
	return fmt.Sprintf("partial resolution of %s: %s: %v", e.Root, e.Step, e.Err)
}

func (e *PartialResolutionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTimeout) hold when the deadline cut the resolution short
func (e *PartialResolutionError) Is(target error) bool {
	return target == ErrTimeout && errors.Is(e.Err, context.DeadlineExceeded)
}

// stepError names the query step that stopped the traversal
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }
