// Package results writes the fiducial coordinate table and the manual
// review log, and reads the coordinate table back for reprojection.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"airphoto-prep/internal/fiducial"
	"airphoto-prep/pkg/geometry"
)

// Header is the coordinate table header; 1..4 follow fiducial.Corners.
var Header = []string{"name", "X1", "Y1", "X2", "Y2", "X3", "Y3", "X4", "Y4"}

// TableName returns the coordinate table file name for a dataset.
func TableName(dataset string) string {
	return "_fiducial_marks_coordinates_" + dataset + ".csv"
}

// Table is an append-only coordinate table. It is not safe for concurrent
// use; a single goroutine owns it for the duration of a run.
type Table struct {
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

// CreateTable creates (or truncates) the table at path and writes the header.
func CreateTable(path string) (*Table, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create results table: %w", err)
	}
	t := &Table{path: path, f: f, w: csv.NewWriter(f)}
	if err := t.write(Header); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Path returns the table file path.
func (t *Table) Path() string { return t.path }

// Rows returns the number of data rows written.
func (t *Table) Rows() int { return t.rows }

// Append writes the row of a set whose four corners were all accepted.
// Any other set is refused with fiducial.ErrIncompleteFiducialSet.
func (t *Table) Append(set *fiducial.FiducialSet) error {
	if set == nil || !set.Resolved() {
		name := ""
		if set != nil {
			name = set.Image
		}
		return fmt.Errorf("%s: %w", name, fiducial.ErrIncompleteFiducialSet)
	}

	row := make([]string, 0, len(Header))
	row = append(row, set.Image)
	for _, p := range set.Points() {
		q := p.Round()
		row = append(row, strconv.Itoa(q.X), strconv.Itoa(q.Y))
	}
	if err := t.write(row); err != nil {
		return err
	}
	t.rows++
	return nil
}

func (t *Table) write(row []string) error {
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.path, err)
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", t.path, err)
	}
	return nil
}

// Close flushes and closes the table.
func (t *Table) Close() error {
	t.w.Flush()
	return errors.Join(t.w.Error(), t.f.Close())
}

// Coordinates maps image names to their four fiducial points.
type Coordinates map[string][4]geometry.Point2D

// Lookup finds an image by name, also trying the name with a .tif suffix
// and without any extension.
func (c Coordinates) Lookup(name string) ([4]geometry.Point2D, bool) {
	for _, k := range []string{name, name + ".tif", strings.TrimSuffix(name, ".tif")} {
		if pts, ok := c[k]; ok {
			return pts, true
		}
	}
	return [4]geometry.Point2D{}, false
}

// ReadTable parses a coordinate table.
func ReadTable(r io.Reader) (Coordinates, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse coordinate table: %w", err)
	}

	coords := make(Coordinates)
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		// Tables written by pandas carry a leading index column.
		if len(rec) == len(Header)+1 {
			rec = rec[1:]
		}
		if len(rec) != len(Header) {
			return nil, fmt.Errorf("coordinate table line %d: want %d fields, got %d", i+1, len(Header), len(rec))
		}

		var pts [4]geometry.Point2D
		for j := range pts {
			x, errX := strconv.ParseFloat(strings.TrimSpace(rec[1+2*j]), 64)
			y, errY := strconv.ParseFloat(strings.TrimSpace(rec[2+2*j]), 64)
			if errX != nil || errY != nil || math.IsNaN(x) || math.IsNaN(y) {
				return nil, fmt.Errorf("coordinate table line %d: bad coordinate %q,%q", i+1, rec[1+2*j], rec[2+2*j])
			}
			pts[j] = geometry.Point2D{X: x, Y: y}
		}
		coords[strings.TrimSpace(rec[0])] = pts
	}
	return coords, nil
}

// LoadTable reads the coordinate table at path.
func LoadTable(path string) (Coordinates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordinate table: %w", err)
	}
	defer f.Close()
	return ReadTable(f)
}
