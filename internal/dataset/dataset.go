// Package dataset reads and writes the daily-bar CSV used for training.
//
// File layout: a header row "date,Open,High,Low,Close" followed by one row per
// trading day in ascending date order, dates formatted 2006-01-02.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"FXForecaster/internal/model"
)

const dateLayout = "2006-01-02"

// Header is the CSV header row.
var Header = []string{"date", "Open", "High", "Low", "Close"}

// ErrNotExist is returned by Load when the dataset file has not been created.
var ErrNotExist = errors.New("dataset does not exist")

// Load reads all bars from path, sorted by date.
func Load(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	head, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !strings.EqualFold(strings.Join(head, ","), strings.Join(Header, ",")) {
		return nil, fmt.Errorf("unexpected header %v, want %v", head, Header)
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		b, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseRecord(rec []string) (model.Bar, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(rec[0]))
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse date: %w", err)
	}
	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("parse %s: %w", Header[i+1], err)
		}
		vals[i] = v
	}
	return model.Bar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}, nil
}

// Save replaces the dataset at path with bars, writing a temp file first.
func Save(path string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return err
	}
	for _, b := range bars {
		if err := w.Write([]string{
			b.Date.Format(dateLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
		}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Frame converts bars to rows in Open, High, Low, Close order.
func Frame(bars []model.Bar) [][]float64 {
	out := make([][]float64, len(bars))
	for i, b := range bars {
		out[i] = []float64{b.Open, b.High, b.Low, b.Close}
	}
	return out
}

// Merge appends fetched bars that are newer than the last existing bar. The
// fetched window is expected to start at the existing last date; that
// boundary bar is dropped rather than counted twice. It reports whether the
// fetched window overlapped the existing tail at all.
func Merge(existing, fetched []model.Bar) (merged []model.Bar, added int, overlapped bool) {
	if len(existing) == 0 {
		return append([]model.Bar(nil), fetched...), len(fetched), true
	}
	last := existing[len(existing)-1].Date
	merged = append([]model.Bar(nil), existing...)
	for _, b := range fetched {
		switch {
		case b.Date.Equal(last):
			overlapped = true
		case b.Date.After(last):
			merged = append(merged, b)
			added++
		default:
			overlapped = true
		}
	}
	return merged, added, overlapped
}
