// Package trajio reads and writes trajectory tables as whitespace-delimited
// text, one sample per row.
//
// Two row shapes are accepted on input:
//
//	id x y z vx vy vz ax ay az t   (eleven columns, stitched or smoothed)
//	id x y z t                      (five columns, raw tracker output)
//
// Output always uses the eleven column shape, tab delimited.
package trajio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
)

const (
	fullColumns = 11
	rawColumns  = 5
)

// ErrMalformedRow is wrapped by every row level parse error.
var ErrMalformedRow = errors.New("malformed trajectory row")

// Read parses samples from r. Blank lines and lines starting with '#' are
// skipped. Errors name the offending line.
func Read(r io.Reader) ([]models.Sample, error) {
	var samples []models.Sample

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		s, err := parseRow(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading trajectories: %w", err)
	}

	return samples, nil
}

// ReadFile reads the trajectory table stored at path.
func ReadFile(path string) ([]models.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening trajectory file: %w", err)
	}
	defer f.Close()

	samples, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func parseRow(fields []string) (models.Sample, error) {
	if len(fields) != fullColumns && len(fields) != rawColumns {
		return models.Sample{}, fmt.Errorf("%w: got %d columns, want %d or %d",
			ErrMalformedRow, len(fields), fullColumns, rawColumns)
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return models.Sample{}, fmt.Errorf("%w: column %d: %v", ErrMalformedRow, i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Sample{}, fmt.Errorf("%w: column %d: non-finite value %q", ErrMalformedRow, i+1, f)
		}
		vals[i] = v
	}

	// Tracker output stores ids as floats; only integral values are ids.
	id := vals[0]
	if id != math.Trunc(id) {
		return models.Sample{}, fmt.Errorf("%w: trajectory id %q is not an integer", ErrMalformedRow, fields[0])
	}
	if id < math.MinInt32 || id > math.MaxInt32 {
		return models.Sample{}, fmt.Errorf("%w: trajectory id %q out of range", ErrMalformedRow, fields[0])
	}

	s := models.Sample{
		TrajectoryID: int(id),
		Position:     r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]},
	}
	if len(vals) == rawColumns {
		s.Time = vals[4]
		return s, nil
	}
	s.Velocity = r3.Vec{X: vals[4], Y: vals[5], Z: vals[6]}
	s.Acceleration = r3.Vec{X: vals[7], Y: vals[8], Z: vals[9]}
	s.Time = vals[10]
	return s, nil
}

// Write emits samples in order as tab-delimited rows. The id is written as an
// integer, the nine kinematic fields with three decimals and the time in its
// shortest exact form.
func Write(w io.Writer, samples []models.Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := bw.WriteString(formatRow(s)); err != nil {
			return fmt.Errorf("error writing trajectories: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing trajectories: %w", err)
	}
	return nil
}

// WriteFile writes samples to path, creating parent directories as needed.
func WriteFile(path string, samples []models.Sample) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating trajectory file: %w", err)
	}

	if err := Write(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatRow(s models.Sample) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.TrajectoryID))
	for _, v := range []r3.Vec{s.Position, s.Velocity, s.Acceleration} {
		fmt.Fprintf(&b, "\t%.3f\t%.3f\t%.3f", v.X, v.Y, v.Z)
	}
	b.WriteByte('\t')
	b.WriteString(strconv.FormatFloat(s.Time, 'f', -1, 64))
	b.WriteByte('\n')
	return b.String()
}
