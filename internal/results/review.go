package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"airphoto-prep/internal/fiducial"
)

// ReviewHeader is the review log header.
var ReviewHeader = []string{"image", "corner", "x", "y", "maxVal"}

// ReviewPath derives the review log path from the coordinate table path.
func ReviewPath(tablePath string) string {
	return strings.TrimSuffix(tablePath, ".csv") + "_TobeChecked.csv"
}

// ReviewLog appends corners needing manual review. The file is only created
// on the first entry; an existing file is appended to without a new header.
// It is not safe for concurrent use.
type ReviewLog struct {
	path  string
	f     *os.File
	w     *csv.Writer
	count int
}

// NewReviewLog returns a review log that will write to path.
func NewReviewLog(path string) *ReviewLog {
	return &ReviewLog{path: path}
}

// Path returns the review log path.
func (r *ReviewLog) Path() string { return r.path }

// Count returns the number of entries appended by this log.
func (r *ReviewLog) Count() int { return r.count }

// Append writes entries, opening the file on first use.
func (r *ReviewLog) Append(entries ...fiducial.ReviewEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.open(); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Image,
			e.Corner.String(),
			strconv.FormatFloat(e.X, 'f', -1, 64),
			strconv.FormatFloat(e.Y, 'f', -1, 64),
			strconv.FormatFloat(e.Confidence, 'f', 4, 64),
		}
		if err := r.w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.path, err)
		}
		r.count++
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", r.path, err)
	}
	return nil
}

func (r *ReviewLog) open() error {
	if r.f != nil {
		return nil
	}
	_, statErr := os.Stat(r.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open review log: %w", err)
	}
	r.f = f
	r.w = csv.NewWriter(f)
	if fresh {
		if err := r.w.Write(ReviewHeader); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.path, err)
		}
	}
	return nil
}

// Close flushes and closes the file if it was opened.
func (r *ReviewLog) Close() error {
	if r.f == nil {
		return nil
	}
	r.w.Flush()
	return errors.Join(r.w.Error(), r.f.Close())
}
