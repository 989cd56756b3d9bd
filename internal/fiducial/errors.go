package fiducial

import "errors"

var (
	// ErrMissingTemplate means no usable template exists for a corner.
	ErrMissingTemplate = errors.New("no fiducial template for corner")

	// ErrMalformedAnchorTable means a template has no anchor row.
	ErrMalformedAnchorTable = errors.New("template missing from anchor table")

	// ErrIncompleteFiducialSet means fewer than four corners were accepted.
	ErrIncompleteFiducialSet = errors.New("fiducial set incomplete")

	// ErrTemplateTooLarge means the template does not fit in the crop.
	ErrTemplateTooLarge = errors.New("template larger than corner crop")
)
