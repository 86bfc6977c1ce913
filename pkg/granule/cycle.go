package granule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// CycleDuration is the Sentinel-1 repeat cycle.
	CycleDuration = 12 * 24 * time.Hour

	// MaxBurstNumber is the highest burst number in the ESA burst id map.
	MaxBurstNumber = 375887
)

// platformEpochs maps a platform to the start of its mission. Each
// platform counts cycles from its own epoch, so passes of different
// platforms never share a cycle number at the same point in time.
var platformEpochs = map[string]time.Time{
	"S1A": time.Date(2014, time.January, 1, 0, 0, 0, 0, time.UTC),
	"S1B": time.Date(2016, time.April, 25, 0, 0, 0, 0, time.UTC),
	"S1C": time.Date(2024, time.December, 5, 0, 0, 0, 0, time.UTC),
}

// Epoch returns the cycle epoch for a platform.
func Epoch(sensor string) (time.Time, bool) {
	e, ok := platformEpochs[sensor]
	return e, ok
}

// BurstNumber extracts the burst number from "T###-######-IW#".
func BurstNumber(burstID string) (int, error) {
	parts := strings.Split(burstID, "-")
	if len(parts) != 3 {
		return 0, fmt.Errorf("burst id %q: expected T###-######-IW#", burstID)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("burst id %q: bad burst number: %w", burstID, err)
	}
	return n, nil
}

// AcquisitionCycle returns the index of the repeat cycle an acquisition falls
// into. The burst's position along the orbit shifts its sensing time within
// the cycle, so that offset is removed before bucketing.
func AcquisitionCycle(burstID string, acquisition time.Time, sensor string) (int, error) {
	epoch, ok := Epoch(sensor)
	if !ok {
		return 0, fmt.Errorf("no cycle epoch for platform %q", sensor)
	}
	n, err := BurstNumber(burstID)
	if err != nil {
		return 0, err
	}

	cycleSecs := CycleDuration.Seconds()
	elapsed := acquisition.Sub(epoch).Seconds()
	index := (elapsed - cycleSecs*(float64(n)/MaxBurstNumber)) / cycleSecs

	cycle := int(math.Round(index))
	if cycle < 0 {
		return 0, fmt.Errorf("acquisition %s precedes platform %s epoch", acquisition.Format(TimestampLayout), sensor)
	}
	return cycle, nil
}
