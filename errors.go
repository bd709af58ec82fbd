package undistort

import "errors"

// Sentinel errors returned by engine constructors and frame operations.
// Wrap them with fmt.Errorf("...: %w", err) to add context; callers match
// with errors.Is.
var (
	// ErrInvalidSize indicates frame or buffer dimensions outside the
	// supported range.
	ErrInvalidSize = errors.New("undistort: invalid frame dimensions")

	// ErrInvalidStride indicates a row stride smaller than the row's
	// pixel data.
	ErrInvalidStride = errors.New("undistort: invalid stride")

	// ErrBadFormat indicates an unsupported pixel format.
	ErrBadFormat = errors.New("undistort: unsupported pixel format")

	// ErrBadParams indicates a malformed parameter buffer.
	ErrBadParams = errors.New("undistort: malformed parameters")

	// ErrSizeMismatch indicates a frame buffer whose length does not match
	// the dimensions the engine was built for.
	ErrSizeMismatch = errors.New("undistort: buffer size mismatch")
)
