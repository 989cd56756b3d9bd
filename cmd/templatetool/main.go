// Command templatetool prepares the auxiliary files of a dataset: fiducial
// templates cut around hand-picked mark centres, the single corner mask of
// the standardized photos, and a flat input folder gathered from a tree of
// scan folders.
//
// Usage:
//
//	templatetool -centres <centres.json> [-o <template-folder>]
//	templatetool -mask <image-folder> -d <dataset> [-o <mask-folder>] [-px 12] [-py 12]
//	templatetool -gather <scan-tree> -o <input-folder> [-ext .tif]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"airphoto-prep/internal/fiducial"
	aimage "airphoto-prep/internal/image"
	"airphoto-prep/internal/mask"
	"airphoto-prep/pkg/geometry"
)

// CentresFile lists the mark centres picked on one scan.
type CentresFile struct {
	Image     string                       `json:"image"`
	Dataset   string                       `json:"dataset"`
	Index     int                          `json:"index,omitempty"`
	HalfWidth int                          `json:"half_width,omitempty"`
	Centres   map[string]geometry.PointInt `json:"centres"` // keyed by corner name
}

func main() {
	centresPath := flag.String("centres", "", "JSON file with hand-picked mark centres")
	maskDir := flag.String("mask", "", "Folder of standardized images to build the mask from")
	dataset := flag.String("d", "", "Dataset name (mask mode)")
	out := flag.String("o", "", "Output folder (default: next to the input)")
	px := flag.Float64("px", mask.DefaultPercent, "Mask corner width, percent of image width")
	py := flag.Float64("py", mask.DefaultPercent, "Mask corner height, percent of image height")
	gather := flag.String("gather", "", "Folder tree of scans to copy into -o")
	ext := flag.String("ext", ".tif", "Extension of the scans to gather")
	flag.Parse()

	switch {
	case *centresPath != "":
		if err := templates(*centresPath, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *maskDir != "":
		if *dataset == "" {
			fmt.Fprintln(os.Stderr, "Error: -d is required with -mask")
			os.Exit(1)
		}
		dir := *out
		if dir == "" {
			dir = *maskDir
		}
		paths, err := aimage.List(*maskDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Building mask from %d images\n", len(paths))
		path, err := mask.Create(paths, dir, *dataset, *px, *py)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Mask written to %s\n", path)
	case *gather != "":
		if *out == "" {
			fmt.Fprintln(os.Stderr, "Error: -o is required with -gather")
			os.Exit(1)
		}
		copied, err := aimage.Gather(*gather, *out, *ext)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Copied %d scans into %s\n", len(copied), *out)
	default:
		fmt.Println("Usage: templatetool -centres <centres.json> [-o <dir>]")
		fmt.Println("       templatetool -mask <image-folder> -d <dataset> [-o <dir>] [-px 12] [-py 12]")
		fmt.Println("       templatetool -gather <scan-tree> -o <dir> [-ext .tif]")
		os.Exit(1)
	}
}

func templates(centresPath, out string) error {
	data, err := os.ReadFile(centresPath)
	if err != nil {
		return fmt.Errorf("reading centres: %w", err)
	}
	var cf CentresFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parsing centres: %w", err)
	}
	if cf.Image == "" || cf.Dataset == "" {
		return fmt.Errorf("centres file needs image and dataset")
	}
	if cf.Index == 0 {
		cf.Index = 1
	}

	centres := make(map[fiducial.Corner]geometry.PointInt, len(cf.Centres))
	for name, p := range cf.Centres {
		c, err := fiducial.ParseCorner(name)
		if err != nil {
			return err
		}
		centres[c] = p
	}

	imgPath := cf.Image
	if !filepath.IsAbs(imgPath) {
		imgPath = filepath.Join(filepath.Dir(centresPath), imgPath)
	}
	if out == "" {
		out = filepath.Dir(centresPath)
	}

	fmt.Printf("Loading image: %s\n", imgPath)
	img, err := aimage.ReadGray(imgPath)
	if err != nil {
		return err
	}
	defer img.Close()

	names, err := fiducial.CreateTemplates(img, centres, cf.HalfWidth, cf.Dataset, cf.Index, out)
	for _, n := range names {
		fmt.Printf("  wrote %s.tif\n", n)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d templates written to %s (anchors in %s)\n", len(names), out, fiducial.AnchorTableName)
	return nil
}
