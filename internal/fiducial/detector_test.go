package fiducial

import (
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ausocean/utils/logging"
	"gocv.io/x/gocv"

	"airphoto-prep/pkg/geometry"
)

const (
	scanW, scanH = 2400, 2000
	markHalf     = 20
	tplHalf      = 40
)

// Known mark centres, one per corner, inside 600 px corner crops.
var markCentres = [4]image.Point{
	TopLeft:  {X: 150, Y: 170},
	TopRight: {X: scanW - 160, Y: 140},
	BotRight: {X: scanW - 150, Y: scanH - 180},
	BotLeft:  {X: 130, Y: scanH - 150},
}

func testLogger() logging.Logger {
	return logging.New(logging.Debug, io.Discard, true)
}

func testParams() Params {
	return DefaultParams().WithCrop(600, 0, Sides{})
}

// syntheticScan draws a 2x2 checker mark at every centre on a flat grey
// background. The checker junction, and so the mark centre, sits on the
// boundary between pixels centre-1 and centre.
func syntheticScan(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(60, 60, 60, 0), scanH, scanW, gocv.MatTypeCV8U)
	white := color.RGBA{R: 255, G: 255, B: 255}
	for _, c := range markCentres {
		gocv.Rectangle(&img, image.Rect(c.X-markHalf, c.Y-markHalf, c.X, c.Y), white, -1)
		gocv.Rectangle(&img, image.Rect(c.X, c.Y, c.X+markHalf, c.Y+markHalf), white, -1)
	}
	return img
}

// writeTemplates cuts one exact template per corner from img into a fresh
// folder and returns it.
func writeTemplates(t *testing.T, img gocv.Mat) string {
	t.Helper()
	dir := t.TempDir()
	centres := make(map[Corner]geometry.PointInt)
	for _, c := range Corners {
		centres[c] = geometry.PointInt{X: markCentres[c].X, Y: markCentres[c].Y}
	}
	names, err := CreateTemplates(img, centres, tplHalf, "TEST", 1, dir)
	if err != nil {
		t.Fatalf("CreateTemplates: %v", err)
	}
	if len(names) != 4 {
		t.Fatalf("created %d templates, want 4", len(names))
	}
	return dir
}

func loadTestLibrary(t *testing.T, dir string) *Library {
	t.Helper()
	lib, err := LoadLibrary(dir, "TEST", testLogger())
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	t.Cleanup(lib.Close)
	return lib
}

func TestDetectExactTemplates(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeTemplates(t, img))

	d := NewDetector(lib, testParams(), testLogger())
	set, reviews, err := d.Detect(img, "scan_001")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(reviews) != 0 {
		t.Errorf("got %d review entries, want 0: %+v", len(reviews), reviews)
	}
	if !set.Resolved() {
		t.Fatalf("set not resolved: %+v", set.Corners)
	}

	for _, c := range Corners {
		res := set.Corners[c]
		if res.Match.Method != MethodTemplate {
			t.Errorf("%s method = %v, want template", c, res.Match.Method)
		}
		if res.Match.Confidence < 0.99 {
			t.Errorf("%s confidence = %v, want ~1", c, res.Match.Confidence)
		}
		want := markCentres[c]
		got := res.Match.Point
		if d := got.Distance(geometry.Point2D{X: float64(want.X), Y: float64(want.Y)}); d > 2 {
			t.Errorf("%s at %v, want %v (off by %.2f px)", c, got, want, d)
		}
	}
}

func TestDetectBlankCornerIsFlagged(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeTemplates(t, img))

	// Blank the whole widened bottom-right window so the retry sees nothing either.
	p := testParams()
	size, _ := p.retry()
	blank := image.Rect(scanW-size, scanH-size, scanW, scanH)
	region := img.Region(blank)
	region.SetTo(gocv.NewScalar(0, 0, 0, 0))
	region.Close()

	d := NewDetector(lib, p, testLogger())
	set, reviews, err := d.Detect(img, "scan_002")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if set.Resolved() {
		t.Fatal("set resolved despite blank corner")
	}
	br := set.Corners[BotRight]
	if br.State != FlaggedForReview {
		t.Fatalf("bot_right state = %v, want flagged", br.State)
	}
	if !br.Attempted(Retried) || !br.Attempted(CircleFallback) {
		t.Errorf("bot_right trail %v missing escalation", br.Trail)
	}
	for _, c := range []Corner{TopLeft, TopRight, BotLeft} {
		if set.Corners[c].State != Accepted {
			t.Errorf("%s state = %v, want accepted", c, set.Corners[c].State)
		}
	}
	if len(reviews) != 1 || reviews[0].Corner != BotRight || reviews[0].Image != "scan_002" {
		t.Errorf("reviews = %+v, want one bot_right entry", reviews)
	}
	if got := set.Flagged(); len(got) != 1 || got[0] != BotRight {
		t.Errorf("Flagged() = %v", got)
	}
}

func TestDetectMissingAnchorAbandonsImage(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	dir := writeTemplates(t, img)

	// Drop the bot_left row from the anchor table.
	tablePath := filepath.Join(dir, AnchorTableName)
	raw, err := os.ReadFile(tablePath)
	if err != nil {
		t.Fatalf("read anchor table: %v", err)
	}
	var kept []string
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.Contains(line, BotLeft.String()) {
			kept = append(kept, line)
		}
	}
	if err := os.WriteFile(tablePath, []byte(strings.Join(kept, "\n")), 0644); err != nil {
		t.Fatalf("write anchor table: %v", err)
	}

	lib := loadTestLibrary(t, dir)
	d := NewDetector(lib, testParams(), testLogger())

	for _, id := range []string{"scan_003", "scan_004"} {
		set, reviews, err := d.Detect(img, id)
		if !errors.Is(err, ErrMissingTemplate) || !errors.Is(err, ErrMalformedAnchorTable) {
			t.Fatalf("%s: error = %v, want missing template from malformed table", id, err)
		}
		if set != nil {
			t.Errorf("%s: got a fiducial set for an abandoned image", id)
		}
		if len(reviews) != 1 {
			t.Fatalf("%s: got %d review entries, want 1", id, len(reviews))
		}
		r := reviews[0]
		if r.Corner != BotLeft || r.X != 0 || r.Y != 0 || r.Confidence != 0 {
			t.Errorf("%s: review = %+v, want zero bot_left row", id, r)
		}
	}
}

func TestLocateRoundTrip(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeTemplates(t, img))
	p := testParams()

	crops, err := ExtractCorners(img, "scan", p.CropSize, p.Stripe, p.StripeSides)
	if err != nil {
		t.Fatalf("ExtractCorners: %v", err)
	}
	defer CloseCrops(crops[:])

	for _, c := range Corners {
		ts, err := lib.ForCorner(c, true)
		if err != nil {
			t.Fatalf("ForCorner: %v", err)
		}

		inView, err := Locate(crops[c].Crop, ts[0], p)
		if err != nil {
			t.Fatalf("Locate view: %v", err)
		}

		// The same window copied out of the image and processed alone.
		alone := crops[c].Crop.Clone()
		standalone, err := Locate(alone, ts[0], p)
		alone.Close()
		if err != nil {
			t.Fatalf("Locate clone: %v", err)
		}

		a := crops[c].ToImage(inView.Local)
		b := standalone.Local.Offset(crops[c].Origin)
		if a != b || inView.Confidence != standalone.Confidence {
			t.Errorf("%s: view %v (%.4f) vs standalone %v (%.4f)", c, a, inView.Confidence, b, standalone.Confidence)
		}
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeTemplates(t, img))
	d := NewDetector(lib, testParams(), testLogger())

	first, _, err := d.Detect(img, "scan")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i := 0; i < 2; i++ {
		again, _, err := d.Detect(img, "scan")
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		for _, c := range Corners {
			a, b := first.Corners[c].Match, again.Corners[c].Match
			if a.Point != b.Point || a.Confidence != b.Confidence || first.Corners[c].State != again.Corners[c].State {
				t.Errorf("run %d %s: %+v != %+v", i, c, b, a)
			}
		}
	}
}

func TestLocateTemplateTooLarge(t *testing.T) {
	small := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8U)
	defer small.Close()
	patch := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8U)
	tpl := &Template{Name: "big", Patch: patch}
	defer tpl.Close()

	if _, err := Locate(small, tpl, DefaultParams()); !errors.Is(err, ErrTemplateTooLarge) {
		t.Errorf("error = %v, want ErrTemplateTooLarge", err)
	}
}

func TestFindCircleOnDrawnRing(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), 600, 600, gocv.MatTypeCV8U)
	defer img.Close()
	gocv.Circle(&img, image.Pt(300, 280), 60, color.RGBA{R: 230, G: 230, B: 230}, -1)

	circle, ok := FindCircle(img, 40, 90, DefaultCircleParams())
	if !ok {
		t.Fatal("no circle found")
	}
	if d := circle.Center.Distance(geometry.Point2D{X: 300, Y: 280}); d > 5 {
		t.Errorf("centre %v, want (300,280)", circle.Center)
	}

	blank := gocv.NewMatWithSize(600, 600, gocv.MatTypeCV8U)
	defer blank.Close()
	if _, ok := FindCircle(blank, 40, 90, DefaultCircleParams()); ok {
		t.Error("found a circle in a blank crop")
	}
}

// writeDecoyAndExact writes, per corner, a first template cut from a scan
// whose marks are solid squares and a second, exact checker template.
func writeDecoyAndExact(t *testing.T, img gocv.Mat) string {
	t.Helper()
	dir := t.TempDir()
	decoy := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(60, 60, 60, 0), scanH, scanW, gocv.MatTypeCV8U)
	defer decoy.Close()

	centres := make(map[Corner]geometry.PointInt)
	for _, c := range Corners {
		m := markCentres[c]
		centres[c] = geometry.PointInt{X: m.X, Y: m.Y}
		square := decoy.Region(image.Rect(m.X-markHalf, m.Y-markHalf, m.X+markHalf, m.Y+markHalf))
		square.SetTo(gocv.NewScalar(255, 255, 255, 0))
		square.Close()
	}
	if _, err := CreateTemplates(decoy, centres, tplHalf, "TEST", 1, dir); err != nil {
		t.Fatalf("CreateTemplates(decoy): %v", err)
	}
	if _, err := CreateTemplates(img, centres, tplHalf, "TEST", 2, dir); err != nil {
		t.Fatalf("CreateTemplates(exact): %v", err)
	}
	return dir
}

func TestDetectBestOfTemplates(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeDecoyAndExact(t, img))
	if lib.Count() != 8 {
		t.Fatalf("library has %d templates, want 8", lib.Count())
	}

	p := testParams()
	p.OneTemplatePerCorner = false
	set, _, err := NewDetector(lib, p, testLogger()).Detect(img, "scan_005")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !set.Resolved() {
		t.Fatalf("set not resolved: %+v", set.Corners)
	}
	for _, c := range Corners {
		m := set.Corners[c].Match
		if want := TemplateName("TEST", c, 2); m.Template != want {
			t.Errorf("%s matched with %s, want %s", c, m.Template, want)
		}
		if m.Confidence < 0.99 {
			t.Errorf("%s confidence = %v, want ~1", c, m.Confidence)
		}
	}

	// With one template per corner only the first is ever tried.
	p.OneTemplatePerCorner = true
	set, _, err = NewDetector(lib, p, testLogger()).Detect(img, "scan_006")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, c := range Corners {
		res := set.Corners[c]
		if len(res.Attempts) == 0 {
			t.Fatalf("%s: no attempts recorded", c)
		}
		for _, a := range res.Attempts {
			if a.Method == MethodCircle {
				continue
			}
			if want := TemplateName("TEST", c, 1); a.Template != want {
				t.Errorf("%s tried %s, want only %s", c, a.Template, want)
			}
		}
	}
}

// A corner whose mark is a disc the checker template cannot match is
// resolved by the circle fallback on the default crop.
func TestDetectCircleFallbackAccepted(t *testing.T) {
	img := syntheticScan(t)
	defer img.Close()
	lib := loadTestLibrary(t, writeTemplates(t, img))

	m := markCentres[BotRight]
	mark := img.Region(image.Rect(m.X-2*markHalf, m.Y-2*markHalf, m.X+2*markHalf, m.Y+2*markHalf))
	mark.SetTo(gocv.NewScalar(60, 60, 60, 0))
	mark.Close()
	gocv.Circle(&img, m, 60, color.RGBA{R: 230, G: 230, B: 230}, -1)

	p := testParams()
	set, reviews, err := NewDetector(lib, p, testLogger()).Detect(img, "scan_007")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(reviews) != 0 {
		t.Errorf("reviews = %+v, want none", reviews)
	}
	if !set.Resolved() {
		t.Fatalf("set not resolved: %+v", set.Corners)
	}

	br := set.Corners[BotRight]
	if !br.Attempted(Retried) || !br.Attempted(CircleFallback) {
		t.Errorf("bot_right trail %v, want retry then circle", br.Trail)
	}
	if br.Match.Method != MethodCircle || br.Match.Confidence != 0 {
		t.Errorf("bot_right match = %+v, want circle with confidence 0", br.Match)
	}
	if want := image.Pt(scanW-p.CropSize, scanH-p.CropSize); br.Match.Origin != want {
		t.Errorf("circle origin = %v, want default crop origin %v", br.Match.Origin, want)
	}
	if d := br.Match.Point.Distance(geometry.Point2D{X: float64(m.X), Y: float64(m.Y)}); d > 5 {
		t.Errorf("circle centre %v, want near %v", br.Match.Point, m)
	}
}
