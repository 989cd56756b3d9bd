// Command fiducialtest detects the fiducial marks of one scan and prints the
// state trail and every attempt of each corner. With -ledger it lists the
// images of a dataset that a previous run left unresolved.
package main

import (
	"flag"
	"fmt"
	"os"

	"airphoto-prep/internal/applog"
	"airphoto-prep/internal/fiducial"
	"airphoto-prep/internal/figure"
	"airphoto-prep/internal/ledger"
)

func main() {
	imagePath := flag.String("i", "", "Path to scan (TIFF, PNG, or JPEG)")
	templates := flag.String("t", "", "Template folder")
	dataset := flag.String("d", "", "Dataset name used to pick templates")
	crop := flag.Int("crop", fiducial.DefaultParams().CropSize, "Corner crop size in pixels")
	stripe := flag.Float64("stripe", fiducial.DefaultParams().Stripe, "Stripe width as a fraction of the image")
	sides := flag.String("sides", fiducial.DefaultParams().StripeSides.String(), "Edges carrying a stripe")
	threshold := flag.Float64("threshold", fiducial.DefaultParams().Threshold, "Acceptance threshold")
	all := flag.Bool("all", false, "Try every template of each corner")
	figures := flag.String("figures", "", "Write audit figures to this folder")
	verbose := flag.Bool("v", false, "Debug logging")
	ledgerPath := flag.String("ledger", "", "List unresolved images of -d from this run ledger and exit")
	flag.Parse()

	if *ledgerPath != "" {
		db, err := ledger.Open(*ledgerPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
			os.Exit(1)
		}
		n, err := printLedger(os.Stdout, db, *dataset)
		db.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read ledger: %v\n", err)
			os.Exit(1)
		}
		if n > 0 {
			os.Exit(3)
		}
		return
	}

	if *imagePath == "" || *templates == "" {
		fmt.Println("Usage: fiducialtest -i <scan> -t <templates> [-d <dataset>] [-crop 2500] [-stripe 0.05] [-sides 'right, bottom'] [-figures <dir>]")
		fmt.Println("       fiducialtest -ledger <run.db> -d <dataset>")
		os.Exit(1)
	}

	level := "warning"
	if *verbose {
		level = "debug"
	}
	log, _, err := applog.New(level, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	stripeSides, err := fiducial.ParseSides(*sides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad -sides: %v\n", err)
		os.Exit(1)
	}
	params := fiducial.DefaultParams().WithCrop(*crop, *stripe, stripeSides).WithThreshold(*threshold)
	params.OneTemplatePerCorner = !*all

	lib, err := fiducial.LoadLibrary(*templates, *dataset, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load templates: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()
	fmt.Printf("Loaded %d templates from %s\n", lib.Count(), *templates)

	det := fiducial.NewDetector(lib, params, log)
	if *figures != "" {
		det = det.WithAuditor(figure.NewWriter(*figures, params.FigureDPI))
	}

	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Crop: %d px (retry %d px)\n", params.CropSize, params.CropSize+params.RetryGrowth)
	fmt.Printf("  Stripe: %.2f on %s\n", params.Stripe, params.StripeSides)
	fmt.Printf("  Threshold: %.2f\n", params.Threshold)

	set, reviews, err := det.DetectImage(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nDetection failed: %v\n", err)
		for _, r := range reviews {
			fmt.Fprintf(os.Stderr, "  %s: no template\n", r.Corner)
		}
		os.Exit(1)
	}

	fmt.Printf("\n=== %s (%dx%d) ===\n", set.Image, set.Size.X, set.Size.Y)
	for _, c := range set.Corners {
		fmt.Printf("\n%s: %s at (%.1f, %.1f) via %s, confidence %.4f\n",
			c.Corner, c.State, c.Match.Point.X, c.Match.Point.Y, c.Match.Method, c.Match.Confidence)
		fmt.Printf("  Trail:")
		for _, s := range c.Trail {
			fmt.Printf(" %s", s)
		}
		fmt.Println()
		for i, a := range c.Attempts {
			fmt.Printf("  [%d] %-8s %-32s (%.1f, %.1f) conf=%.4f crop origin=%v\n",
				i+1, a.Method, a.Template, a.Point.X, a.Point.Y, a.Confidence, a.Origin)
		}
	}

	if set.Resolved() {
		fmt.Println("\nAll four corners accepted.")
		return
	}
	fmt.Printf("\n%d corners flagged for review\n", len(set.Flagged()))
	os.Exit(3)
}
