// Command circletest runs the Hough-circle fallback on the corner crops of a
// scan and prints the circle found in each.
package main

import (
	"flag"
	"fmt"
	"os"

	"airphoto-prep/internal/fiducial"
	aimage "airphoto-prep/internal/image"
)

func main() {
	imagePath := flag.String("i", "", "Path to scan (TIFF, PNG, or JPEG)")
	crop := flag.Int("crop", fiducial.DefaultParams().CropSize, "Corner crop size in pixels")
	stripe := flag.Float64("stripe", fiducial.DefaultParams().Stripe, "Stripe width as a fraction of the image")
	sides := flag.String("sides", fiducial.DefaultParams().StripeSides.String(), "Edges carrying a stripe")
	minR := flag.Int("min", 10, "Minimum radius in pixels")
	maxR := flag.Int("max", 120, "Maximum radius in pixels")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: circletest -i <scan> [-crop 2500] [-stripe 0.05] [-min 10] [-max 120]")
		os.Exit(1)
	}

	stripeSides, err := fiducial.ParseSides(*sides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad -sides: %v\n", err)
		os.Exit(1)
	}

	img, err := aimage.ReadGray(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()
	fmt.Printf("Loaded %s: %dx%d pixels\n", *imagePath, img.Cols(), img.Rows())

	crops, err := fiducial.ExtractCorners(img, aimage.Stem(*imagePath), *crop, *stripe, stripeSides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to crop corners: %v\n", err)
		os.Exit(1)
	}
	defer fiducial.CloseCrops(crops[:])

	cp := fiducial.DefaultCircleParams()
	fmt.Printf("\nHough parameters:\n")
	fmt.Printf("  Blur: %d  dp: %.1f  minDist: %.0f  param1: %.0f\n", cp.BlurSize, cp.DP, cp.MinDist, cp.Param1)
	fmt.Printf("  param2: %d down to %d in steps of %d\n", cp.Param2Start, cp.Param2Floor, cp.Param2Step)
	fmt.Printf("  Radius: %d-%d px\n\n", *minR, *maxR)

	for _, c := range crops {
		circle, ok := fiducial.FindCircle(c.Crop, *minR, *maxR, cp)
		if !ok {
			fmt.Printf("%-10s crop at %v: no circle\n", c.Corner, c.Origin)
			continue
		}
		p := c.ToImage(circle.Center)
		fmt.Printf("%-10s crop at %v: centre (%.1f, %.1f) radius %.1f at param2=%d\n",
			c.Corner, c.Origin, p.X, p.Y, circle.Radius, circle.Param2)
	}
}
