package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/risk"
)

// rowReader reads CSV rows, skipping blank rows and a single leading header
// whose first column is "time" or "date".
type rowReader struct {
	r        *csv.Reader
	line     int
	sawFirst bool
}

func newRowReader(r io.Reader) *rowReader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &rowReader{r: cr}
}

func (rr *rowReader) next() ([]string, error) {
	for {
		row, err := rr.r.Read()
		if err != nil {
			return nil, err
		}
		rr.line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if !rr.sawFirst {
			rr.sawFirst = true
			h := strings.ToLower(strings.TrimSpace(row[0]))
			if h == "time" || h == "date" {
				continue
			}
		}
		return row, nil
	}
}

// ParseTime accepts RFC3339, RFC3339Nano or a bare 2006-01-02 date (UTC).
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", name, s, err)
	}
	return v, nil
}

// parseBarRow reads time,ticker,open,high,low,close[,volume].
func parseBarRow(row []string) (Bar, error) {
	if len(row) < 6 {
		return Bar{}, fmt.Errorf("want at least 6 columns, got %d", len(row))
	}
	t, err := ParseTime(row[0])
	if err != nil {
		return Bar{}, err
	}
	b := Bar{Time: t, Ticker: strings.TrimSpace(row[1])}
	if b.Ticker == "" {
		return Bar{}, fmt.Errorf("empty ticker")
	}
	fields := []struct {
		name string
		dst  *float64
		src  string
	}{
		{"open", &b.Open, row[2]},
		{"high", &b.High, row[3]},
		{"low", &b.Low, row[4]},
		{"close", &b.Close, row[5]},
	}
	for _, f := range fields {
		if *f.dst, err = parseFloat(f.name, f.src); err != nil {
			return Bar{}, err
		}
	}
	if len(row) > 6 && strings.TrimSpace(row[6]) != "" {
		if b.Volume, err = parseFloat("volume", row[6]); err != nil {
			return Bar{}, err
		}
	}
	return b, nil
}

// LoadBars reads every bar from r.
func LoadBars(r io.Reader) ([]Bar, error) {
	rr := newRowReader(r)
	var out []Bar
	for {
		row, err := rr.next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("bars line %d: %w", rr.line, err)
		}
		out = append(out, b)
	}
}

// LoadSignals reads time,ticker,signal rows into s.
func LoadSignals(r io.Reader, s *Store) (int, error) {
	rr := newRowReader(r)
	n := 0
	for {
		row, err := rr.next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if len(row) < 3 {
			return n, fmt.Errorf("signals line %d: want 3 columns, got %d", rr.line, len(row))
		}
		t, err := ParseTime(row[0])
		if err != nil {
			return n, fmt.Errorf("signals line %d: %w", rr.line, err)
		}
		sig, err := risk.ParseSignal(row[2])
		if err != nil {
			return n, fmt.Errorf("signals line %d: %w", rr.line, err)
		}
		s.AddSignal(strings.TrimSpace(row[1]), t, sig)
		n++
	}
}

// LoadPrices reads time,ticker,price rows into s.
func LoadPrices(r io.Reader, s *Store) (int, error) {
	rr := newRowReader(r)
	n := 0
	for {
		row, err := rr.next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if len(row) < 3 {
			return n, fmt.Errorf("prices line %d: want 3 columns, got %d", rr.line, len(row))
		}
		t, err := ParseTime(row[0])
		if err != nil {
			return n, fmt.Errorf("prices line %d: %w", rr.line, err)
		}
		px, err := parseFloat("price", row[2])
		if err != nil {
			return n, fmt.Errorf("prices line %d: %w", rr.line, err)
		}
		s.AddPrice(strings.TrimSpace(row[1]), t, px)
		n++
	}
}

// LoadSignalsFile is LoadSignals on a file.
func LoadSignalsFile(path string, s *Store) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	return LoadSignals(fh, s)
}

// LoadPricesFile is LoadPrices on a file.
func LoadPricesFile(path string, s *Store) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	return LoadPrices(fh, s)
}
