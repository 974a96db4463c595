package metadata

import (
	"errors"
	"fmt"
)

// ErrMalformedMetadata is matched by every MalformedMetadataError.
var ErrMalformedMetadata = errors.New("malformed metadata")

// MalformedMetadataError reports a table or field that lacks a name or id.
//
// Table and Field are positions in the metadata graph; Field is -1 when the
// table itself is malformed.
type MalformedMetadataError struct {
	Table  int
	Field  int
	Reason string
}

func (e *MalformedMetadataError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("%s: table #%d: %s", ErrMalformedMetadata, e.Table, e.Reason)
	}
	return fmt.Sprintf("%s: table #%d field #%d: %s", ErrMalformedMetadata, e.Table, e.Field, e.Reason)
}

func (e *MalformedMetadataError) Unwrap() error { return ErrMalformedMetadata }
