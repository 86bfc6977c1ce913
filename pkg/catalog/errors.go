package catalog

import (
	"errors"
	"fmt"
)

// ErrDataSource matches every DataSourceError via errors.Is.
var ErrDataSource = errors.New("burst reference data source error")

// DataSourceError reports a reference table that is missing, unreadable or
// lacks required columns. It is fatal to a run.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("burst reference table %s: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDataSource.
func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSource
}
