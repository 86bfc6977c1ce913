package trigger

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// Counts summarises where the granules of a run went.
type Counts struct {
	Input        int `json:"input_granules"`
	Malformed    int `json:"malformed_granules"`
	UnknownBurst int `json:"unknown_burst_granules"`
	Late         int `json:"late_granules"`
	// UnusedRTCGranules counts granules mapped to a tile outside the known set.
	UnusedRTCGranules int `json:"unused_rtc_granule_count"`

	Consumed int `json:"consumed_granules"`
	Pending  int `json:"pending_granules"`

	Triggered int `json:"triggered_products"`
	Forced    int `json:"forced_products"`
	Held      int `json:"held_products"`
}

// Report is the outcome of one survey run.
type Report struct {
	RunID string    `json:"run_id"`
	Now   time.Time `json:"now"`
	// Triggered is sorted by batch id.
	Triggered []*Product `json:"triggered"`
	// HeldBatches lists incomplete batches still within their grace period.
	HeldBatches  []string        `json:"held_batches"`
	GranuleFlags map[string]bool `json:"granule_flags"`
	// UntriggeredTiles is nil when tiles are not tracked.
	UntriggeredTiles []string      `json:"untriggered_tiles"`
	Counts           Counts        `json:"counts"`
	Duration         time.Duration `json:"-"`
}

func newReport(runID string, now time.Time, res Result, counts Counts) *Report {
	r := &Report{
		RunID:        runID,
		Now:          now,
		Triggered:    make([]*Product, 0, len(res.Triggered)),
		HeldBatches:  make([]string, 0, len(res.Held)),
		GranuleFlags: res.GranuleFlags,
	}

	for _, batchID := range slices.Sorted(maps.Keys(res.Triggered)) {
		r.Triggered = append(r.Triggered, res.Triggered[batchID])
	}
	for _, p := range res.Held {
		r.HeldBatches = append(r.HeldBatches, p.BatchID)
	}
	slices.Sort(r.HeldBatches)
	if res.UntriggeredTiles != nil {
		r.UntriggeredTiles = slices.Sorted(maps.Keys(res.UntriggeredTiles))
	}

	for _, consumed := range res.GranuleFlags {
		if consumed {
			counts.Consumed++
		} else {
			counts.Pending++
		}
	}
	counts.UnusedRTCGranules = res.UnusedGranules
	counts.Triggered = len(res.Triggered)
	counts.Forced = len(res.Forced)
	counts.Held = len(res.Held)
	r.Counts = counts

	return r
}

// Product returns the triggered product for a batch id.
func (r *Report) Product(batchID string) (*Product, bool) {
	i, found := slices.BinarySearchFunc(r.Triggered, batchID, func(p *Product, id string) int {
		return strings.Compare(p.BatchID, id)
	})
	if !found {
		return nil, false
	}
	return r.Triggered[i], true
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human-readable summary with aligned columns.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	c := r.Counts
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "now\t%s\n", r.Now.Format(time.RFC3339))
	fmt.Fprintf(tw, "granules\t%s input, %s malformed, %s unknown burst, %s late\n",
		humanize.Comma(int64(c.Input)), humanize.Comma(int64(c.Malformed)),
		humanize.Comma(int64(c.UnknownBurst)), humanize.Comma(int64(c.Late)))
	fmt.Fprintf(tw, "flags\t%s consumed, %s pending\n",
		humanize.Comma(int64(c.Consumed)), humanize.Comma(int64(c.Pending)))
	fmt.Fprintf(tw, "products\t%s triggered (%s forced), %s held\n",
		humanize.Comma(int64(c.Triggered)), humanize.Comma(int64(c.Forced)), humanize.Comma(int64(c.Held)))
	fmt.Fprintf(tw, "unused_rtc_granule_count\t%s\n", humanize.Comma(int64(c.UnusedRTCGranules)))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Triggered) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BATCH\tDOWNLOAD BATCH\tBURSTS\tACQUISITION\tSTATUS")
		for _, p := range r.Triggered {
			status := "complete"
			if p.Forced {
				status = "forced"
			} else if !p.Complete() {
				status = "partial"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
				p.BatchID, p.DownloadBatchID, p.UsedBursts, p.PossibleBursts,
				p.EarliestAcquisition.Format(time.RFC3339), status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.HeldBatches) > 0 {
		fmt.Fprintf(w, "\nheld: %s\n", strings.Join(r.HeldBatches, ", "))
	}
	if r.UntriggeredTiles != nil {
		fmt.Fprintf(w, "\nuntriggered tiles: %s\n", humanize.Comma(int64(len(r.UntriggeredTiles))))
	}
	return nil
}
