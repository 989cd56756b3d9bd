package main

import (
	"fmt"
	"io"

	"airphoto-prep/internal/fiducial"
	"airphoto-prep/internal/ledger"
)

// printLedger lists the images of dataset that still need a look: the
// corners of unresolved images that were not accepted, then the abandoned
// images. It returns the number of images listed.
func printLedger(w io.Writer, db *ledger.DB, dataset string) (int, error) {
	unresolved, err := db.Images(dataset, ledger.StatusUnresolved)
	if err != nil {
		return 0, err
	}
	abandoned, err := db.Images(dataset, ledger.StatusAbandoned)
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(w, "%d unresolved, %d abandoned in %s\n", len(unresolved), len(abandoned), dataset)
	for _, name := range unresolved {
		corners, err := db.Corners(dataset, name)
		if err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "\n%s\n", name)
		for _, c := range corners {
			if c.State == fiducial.Accepted.String() {
				continue
			}
			fmt.Fprintf(w, "  %-10s %-8s (%.0f, %.0f) conf=%.4f attempts=%d\n",
				c.Corner, c.State, c.X, c.Y, c.Confidence, c.Attempts)
		}
	}
	if len(abandoned) > 0 {
		fmt.Fprintln(w, "\nAbandoned:")
		for _, name := range abandoned {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	return len(unresolved) + len(abandoned), nil
}
