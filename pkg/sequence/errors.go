package sequence

import (
	"errors"
	"fmt"
)

// ErrNoPreviousProduct matches every NoPreviousProductError via errors.Is.
var ErrNoPreviousProduct = errors.New("no previous product")

const reasonCycleZero = "reached acquisition cycle 0"

// NoPreviousProductError reports that the backward search found no
// predecessor for a download batch.
type NoPreviousProductError struct {
	DownloadBatchID string
	Reason          string
	Steps           int
}

func (e *NoPreviousProductError) Error() string {
	if e.Steps > 0 {
		return fmt.Sprintf("no previous product for %s after %d steps: %s", e.DownloadBatchID, e.Steps, e.Reason)
	}
	return fmt.Sprintf("no previous product for %s: %s", e.DownloadBatchID, e.Reason)
}

// Is reports whether target is ErrNoPreviousProduct.
func (e *NoPreviousProductError) Is(target error) bool {
	return target == ErrNoPreviousProduct
}
