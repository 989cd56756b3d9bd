package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"airphoto-prep/internal/fiducial"
	"airphoto-prep/internal/ledger"
	"airphoto-prep/pkg/geometry"
)

func TestPrintLedger(t *testing.T) {
	db, err := ledger.Open(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	set := &fiducial.FiducialSet{Image: "5942_007"}
	for i, c := range fiducial.Corners {
		set.Corners[i] = fiducial.CornerResult{
			Corner: c,
			State:  fiducial.Accepted,
			Match:  fiducial.Match{Point: geometry.Point2D{X: 100, Y: 100}, Confidence: 0.95, Method: fiducial.MethodTemplate},
		}
	}
	set.Corners[fiducial.BotRight].State = fiducial.FlaggedForReview
	set.Corners[fiducial.BotRight].Match.Confidence = 0.41
	if err := db.Record("D1", set); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAbandoned("D1", "5942_008", errors.New("no template")); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	n, err := printLedger(&b, db, "D1")
	if err != nil {
		t.Fatalf("printLedger: %v", err)
	}
	if n != 2 {
		t.Errorf("listed %d images, want 2", n)
	}
	out := b.String()
	for _, want := range []string{"1 unresolved, 1 abandoned", "bot_right", "conf=0.4100", "5942_008"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "top_left") {
		t.Errorf("accepted corner listed:\n%s", out)
	}
}
