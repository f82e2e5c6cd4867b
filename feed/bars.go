package feed

import (
	"fmt"
	"io"
	"os"
	"time"
)

// BarFeed yields bars one at a time. Implementations return (ok=false,
// err=nil) at EOF.
type BarFeed interface {
	Next() (b Bar, ok bool, err error)
	Close() error
}

// SliceFeed replays bars held in memory.
type SliceFeed struct {
	bars []Bar
	i    int
}

func NewSliceFeed(bars []Bar) *SliceFeed {
	return &SliceFeed{bars: bars}
}

func (f *SliceFeed) Next() (Bar, bool, error) {
	if f.i >= len(f.bars) {
		return Bar{}, false, nil
	}
	b := f.bars[f.i]
	f.i++
	return b, true, nil
}

func (f *SliceFeed) Close() error { return nil }

// CSVBarFeed streams bar rows from a file:
//
//	time,ticker,open,high,low,close[,volume]
//
// where time is RFC3339 or a bare date. A header row is allowed. Bars
// outside [From, To) are skipped when the bounds are set.
type CSVBarFeed struct {
	f    *os.File
	rr   *rowReader
	from time.Time
	to   time.Time
}

func NewCSVBarFeed(path string, from, to time.Time) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &CSVBarFeed{f: f, rr: newRowReader(f), from: from, to: to}, nil
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVBarFeed) Next() (Bar, bool, error) {
	for {
		row, err := f.rr.next()
		if err == io.EOF {
			return Bar{}, false, nil
		}
		if err != nil {
			return Bar{}, false, err
		}
		b, err := parseBarRow(row)
		if err != nil {
			return Bar{}, false, fmt.Errorf("%s line %d: %w", f.f.Name(), f.rr.line, err)
		}
		if !inRange(b.Time, f.from, f.to) {
			continue
		}
		return b, true, nil
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
