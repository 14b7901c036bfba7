package probe

import (
	"errors"
	"fmt"
)

// ErrDataSource marks failures of the site's own storage. They abort the
// whole probe.
var ErrDataSource = errors.New("data source unavailable")

// DataSourceError wraps a storage failure with the section that hit it
type DataSourceError struct {
	Section string
	Err     error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDataSource, e.Section, e.Err)
}

func (e *DataSourceError) Unwrap() []error {
	return []error{ErrDataSource, e.Err}
}
