package format

import "fmt"

// FormatError reports an unsupported format or a tree that cannot be encoded.
// No partial document accompanies it.
type FormatError struct {
	Format string
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field == "format" {
		return fmt.Sprintf("format %q: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s document: %s %s", e.Format, e.Field, e.Reason)
}
