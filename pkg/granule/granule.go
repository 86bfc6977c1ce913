// Package granule parses OPERA RTC-S1 granule identifiers and derives the
// acquisition cycle a granule belongs to.
package granule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width timestamp token used in granule ids.
const TimestampLayout = "20060102T150405Z"

// ErrMalformedID matches every MalformedGranuleIDError via errors.Is.
var ErrMalformedID = errors.New("malformed granule id")

// MalformedGranuleIDError reports a granule id that does not follow the RTC-S1 grammar.
type MalformedGranuleIDError struct {
	ID     string
	Reason string
}

func (e *MalformedGranuleIDError) Error() string {
	return fmt.Sprintf("malformed granule id %q: %s", e.ID, e.Reason)
}

// Is reports whether target is ErrMalformedID.
func (e *MalformedGranuleIDError) Is(target error) bool {
	return target == ErrMalformedID
}

// idPattern covers both the granule identity and file-level names, e.g.
//
//	OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231104T044523Z_S1A_30_v1.0
//	OPERA_L2_RTC-S1_T020-041121-IW1_20231101T013115Z_20231104T044523Z_S1A_30_v1.0_VV.tif
var idPattern = regexp.MustCompile(
	`^(OPERA)_(L2)_(RTC)-(S1)_` +
		`(T\d{3}-\d{6}-IW[1-3])_` +
		`(\d{8}T\d{6}Z)_` +
		`(\d{8}T\d{6}Z)_` +
		`(S1[A-Z])_` +
		`(\d+)_` +
		`(v\d+\.\d+)` +
		`(?:_([A-Za-z0-9_-]+?))?` +
		`(?:\.([A-Za-z0-9]+))?$`)

const (
	groupBurst = 5 + iota
	groupAcquisition
	groupCreation
	groupSensor
	groupSpacing
	groupVersion
	groupSuffix
	groupExtension
)

// Granule is one observed RTC-S1 burst product.
type Granule struct {
	// ID is the raw granule id as received, including any file-level suffix.
	ID string
	// PartialID is the id truncated to, and including, the acquisition timestamp.
	PartialID string

	BurstID        string
	Acquisition    time.Time
	Creation       time.Time
	Sensor         string
	Spacing        string
	ProductVersion string
	// Suffix is the optional polarization or file-level suffix, without extension.
	Suffix    string
	Extension string

	// AcquisitionCycle depends only on the burst, the platform and the acquisition time.
	AcquisitionCycle int

	// IngestedAt is when the granule was recorded by the catalog, if known.
	IngestedAt time.Time
}

// Record is a raw granule as handed over by a survey or a metadata query.
type Record struct {
	ID string
	// IngestedAt is optional; the zero value means unknown.
	IngestedAt time.Time
}

// Parse parses a raw granule id. The returned granule has its acquisition
// cycle populated.
func Parse(id string) (Granule, error) {
	id = strings.TrimSpace(id)
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return Granule{}, &MalformedGranuleIDError{ID: id, Reason: "does not match RTC-S1 grammar"}
	}

	acq, err := time.Parse(TimestampLayout, m[groupAcquisition])
	if err != nil {
		return Granule{}, &MalformedGranuleIDError{ID: id, Reason: "bad acquisition timestamp"}
	}
	created, err := time.Parse(TimestampLayout, m[groupCreation])
	if err != nil {
		return Granule{}, &MalformedGranuleIDError{ID: id, Reason: "bad creation timestamp"}
	}

	g := Granule{
		ID:             id,
		PartialID:      partialID(id, m[groupAcquisition]),
		BurstID:        m[groupBurst],
		Acquisition:    acq,
		Creation:       created,
		Sensor:         m[groupSensor],
		Spacing:        m[groupSpacing],
		ProductVersion: m[groupVersion],
		Suffix:         m[groupSuffix],
		Extension:      m[groupExtension],
	}

	cycle, err := AcquisitionCycle(g.BurstID, g.Acquisition, g.Sensor)
	if err != nil {
		return Granule{}, &MalformedGranuleIDError{ID: id, Reason: err.Error()}
	}
	g.AcquisitionCycle = cycle

	return g, nil
}

// ParseRecord parses a record and carries its ingestion time over.
func ParseRecord(r Record) (Granule, error) {
	g, err := Parse(r.ID)
	if err != nil {
		return Granule{}, err
	}
	g.IngestedAt = r.IngestedAt
	return g, nil
}

// PartialID returns the id truncated to the acquisition timestamp token.
func PartialID(id string) (string, error) {
	g, err := Parse(id)
	if err != nil {
		return "", err
	}
	return g.PartialID, nil
}

func partialID(id, acquisitionToken string) string {
	idx := strings.Index(id, "_"+acquisitionToken)
	return id[:idx+1+len(acquisitionToken)]
}

// NormalizeBurstID converts JPL burst ids to the granule form, so that
// "t020_041121_iw1" and "T020-041121-IW1" compare equal.
func NormalizeBurstID(burstID string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(burstID), "_", "-"))
}
