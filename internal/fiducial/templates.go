package fiducial

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	aimage "airphoto-prep/internal/image"
	"airphoto-prep/pkg/geometry"
)

// AnchorTableName is the sidecar file listing template anchors.
const AnchorTableName = "Center_Fiducials.txt"

// Template is a reference crop of one fiducial mark.
type Template struct {
	Name   string // file name without extension
	Corner Corner
	Patch  gocv.Mat // 8-bit grayscale
	Anchor geometry.PointInt
}

// Size returns the patch dimensions as (width, height).
func (t *Template) Size() image.Point {
	return image.Pt(t.Patch.Cols(), t.Patch.Rows())
}

// Close releases the patch.
func (t *Template) Close() error {
	return t.Patch.Close()
}

// Library holds the templates of one dataset, grouped by corner.
// It is read-only once loaded and safe to share between workers.
type Library struct {
	Dataset  string
	byCorner map[Corner][]*Template
	// templates found on disk without an anchor row
	unanchored map[Corner][]string
}

// NewLibrary builds a library from already loaded templates.
func NewLibrary(dataset string, templates ...*Template) *Library {
	l := &Library{
		Dataset:    dataset,
		byCorner:   make(map[Corner][]*Template),
		unanchored: make(map[Corner][]string),
	}
	for _, t := range templates {
		l.byCorner[t.Corner] = append(l.byCorner[t.Corner], t)
	}
	return l
}

// ForCorner returns the templates to try for a corner, first template first.
// With one set only the first template is returned.
func (l *Library) ForCorner(c Corner, one bool) ([]*Template, error) {
	ts := l.byCorner[c]
	if len(ts) == 0 {
		if len(l.unanchored[c]) > 0 {
			return nil, fmt.Errorf("%s (%s): %w: %w", c, strings.Join(l.unanchored[c], ", "), ErrMissingTemplate, ErrMalformedAnchorTable)
		}
		return nil, fmt.Errorf("%s: %w", c, ErrMissingTemplate)
	}
	if one {
		return ts[:1], nil
	}
	return ts, nil
}

// Count returns the number of usable templates.
func (l *Library) Count() int {
	n := 0
	for _, ts := range l.byCorner {
		n += len(ts)
	}
	return n
}

// Close releases every template patch.
func (l *Library) Close() {
	for _, ts := range l.byCorner {
		for _, t := range ts {
			t.Close()
		}
	}
}

// LoadLibrary reads the templates of a dataset from dir together with the
// anchor table. A template without an anchor row is skipped and logged; its
// corner then reports ErrMalformedAnchorTable.
func LoadLibrary(dir, dataset string, log logging.Logger) (*Library, error) {
	anchors, err := LoadAnchorTable(filepath.Join(dir, AnchorTableName))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".tif" && ext != ".tiff") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	lib := NewLibrary(dataset)
	for _, c := range Corners {
		files := templateFiles(names, dataset, c)
		for _, file := range files {
			name := aimage.Stem(file)
			anchor, ok := anchors[name]
			if !ok {
				log.Warning("template has no anchor row", "template", name, "table", AnchorTableName)
				lib.unanchored[c] = append(lib.unanchored[c], name)
				continue
			}

			t, err := loadTemplate(filepath.Join(dir, file), name, c, anchor)
			if err != nil {
				lib.Close()
				return nil, err
			}
			lib.byCorner[c] = append(lib.byCorner[c], t)
			log.Debug("loaded template", "template", name, "corner", c.String(), "xc", anchor.X, "yc", anchor.Y)
		}
		if len(lib.byCorner[c]) == 0 {
			log.Warning("no usable template for corner", "dataset", dataset, "corner", c.String())
		}
	}
	return lib, nil
}

// templateFiles picks the files naming corner c. Files that also name the
// dataset win when there are any.
func templateFiles(names []string, dataset string, c Corner) []string {
	var all, ofDataset []string
	for _, n := range names {
		if !strings.Contains(n, c.String()) {
			continue
		}
		all = append(all, n)
		if dataset != "" && strings.Contains(n, dataset) {
			ofDataset = append(ofDataset, n)
		}
	}
	if len(ofDataset) > 0 {
		return ofDataset
	}
	return all
}

func loadTemplate(path, name string, c Corner, anchor geometry.PointInt) (*Template, error) {
	raw, err := aimage.ReadGray(path)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	defer raw.Close()

	patch := aimage.To8Bit(raw)
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= patch.Cols() || anchor.Y >= patch.Rows() {
		patch.Close()
		return nil, fmt.Errorf("template %s: anchor (%d,%d) outside %dx%d patch", name, anchor.X, anchor.Y, patch.Cols(), patch.Rows())
	}
	return &Template{Name: name, Corner: c, Patch: patch, Anchor: anchor}, nil
}

// LoadAnchorTable reads an anchor table file.
func LoadAnchorTable(path string) (map[string]geometry.PointInt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open anchor table: %w", err)
	}
	defer f.Close()
	return ReadAnchorTable(f)
}

// ReadAnchorTable parses "name xc yc" rows separated by whitespace.
// A leading header row (non-numeric coordinates) is skipped.
func ReadAnchorTable(r io.Reader) (map[string]geometry.PointInt, error) {
	anchors := make(map[string]geometry.PointInt)
	sc := bufio.NewScanner(r)
	lineNo := 0
	seenRow := false
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("anchor table line %d: want 3 fields, got %d", lineNo, len(fields))
		}

		xc, errX := strconv.Atoi(fields[1])
		yc, errY := strconv.Atoi(fields[2])
		if errX != nil || errY != nil {
			if !seenRow {
				seenRow = true
				continue
			}
			return nil, fmt.Errorf("anchor table line %d: non-integer anchor %q %q", lineNo, fields[1], fields[2])
		}
		seenRow = true
		name := fields[0]
		if aimage.IsSupportedFormat(name) {
			name = aimage.Stem(name)
		}
		anchors[name] = geometry.PointInt{X: xc, Y: yc}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read anchor table: %w", err)
	}
	return anchors, nil
}

// AnchorRow formats one anchor table row.
func AnchorRow(name string, anchor geometry.PointInt) string {
	return fmt.Sprintf("%s %d %d", name, anchor.X, anchor.Y)
}
