package tracks

import (
	"fmt"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Stats summarizes the cloud.
type Stats struct {
	Tracks            int
	Observations      int
	MeanTrackLength   float64
	MedianTrackLength float64
	MaxTrackLength    int
	// Extended counts tracks observed in more than the two frames that created them.
	Extended int
	Bounds   MetaData
}

// ComputeStats computes track length statistics over the store.
func ComputeStats(store *Store) (Stats, error) {
	out := Stats{Tracks: store.Size(), Bounds: store.MetaData()}
	if store.Size() == 0 {
		return out, nil
	}

	lengths := make(stats.Float64Data, 0, store.Size())
	store.Iterate(func(_ TrackID, t *Track) bool {
		n := t.Observations()
		out.Observations += n
		if n > 2 {
			out.Extended++
		}
		lengths = append(lengths, float64(n))
		return true
	})

	var err error
	if out.MeanTrackLength, err = lengths.Mean(); err != nil {
		return out, errors.Wrap(err, "mean track length")
	}
	if out.MedianTrackLength, err = lengths.Median(); err != nil {
		return out, errors.Wrap(err, "median track length")
	}
	maxLen, err := lengths.Max()
	if err != nil {
		return out, errors.Wrap(err, "max track length")
	}
	out.MaxTrackLength = int(maxLen)
	return out, nil
}

// String prints out a table of the statistics.
func (s Stats) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Tracks", s.Tracks},
		{"Observations", s.Observations},
		{"Extended tracks", s.Extended},
		{"Mean track length", fmt.Sprintf("%.2f", s.MeanTrackLength)},
		{"Median track length", fmt.Sprintf("%.1f", s.MedianTrackLength)},
		{"Max track length", s.MaxTrackLength},
	})
	if !s.Bounds.Empty() {
		c := s.Bounds.Center()
		t.AppendRow(table.Row{"Center", fmt.Sprintf("X:%.2f, Y:%.2f, Z:%.2f", c.X, c.Y, c.Z)})
		t.AppendRow(table.Row{"Extent", fmt.Sprintf("X:%.2f, Y:%.2f, Z:%.2f",
			s.Bounds.MaxX-s.Bounds.MinX, s.Bounds.MaxY-s.Bounds.MinY, s.Bounds.MaxZ-s.Bounds.MinZ)})
	}
	return t.Render()
}

// LengthHistogram bins the track lengths of the store, one bin per possible length.
func LengthHistogram(store *Store) histogram.Histogram {
	if store.Size() == 0 {
		return histogram.Histogram{}
	}
	lengths := make([]float64, 0, store.Size())
	maxLen := 2
	store.Iterate(func(_ TrackID, t *Track) bool {
		n := t.Observations()
		if n > maxLen {
			maxLen = n
		}
		lengths = append(lengths, float64(n))
		return true
	})
	return histogram.Hist(maxLen-1, lengths)
}
