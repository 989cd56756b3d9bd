package image

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// To8Bit returns an 8-bit copy of a single-band Mat.
// 16-bit data is scaled by 1/256, anything else is min-max stretched.
func To8Bit(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Type() {
	case gocv.MatTypeCV8U:
		src.CopyTo(&dst)
	case gocv.MatTypeCV16U:
		src.ConvertToWithParams(&dst, gocv.MatTypeCV8U, 1.0/256, 0)
	default:
		stretched := gocv.NewMat()
		defer stretched.Close()
		gocv.Normalize(src, &stretched, 0, 255, gocv.NormMinMax)
		stretched.ConvertTo(&dst, gocv.MatTypeCV8U)
	}
	return dst
}

// MatToGray converts an 8-bit single-band Mat (or region) to a Go image (parallelized).
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	if mat.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("expected 8-bit single-band mat, got type %v", mat.Type())
	}

	h := mat.Rows()
	w := mat.Cols()
	img := image.NewGray(image.Rect(0, 0, w, h))

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (h + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for worker := 0; worker < numWorkers; worker++ {
		startY := worker * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		if startY >= h {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				row := y * img.Stride
				for x := 0; x < w; x++ {
					img.Pix[row+x] = mat.GetUCharAt(y, x)
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return img, nil
}
