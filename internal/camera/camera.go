// Package camera acquires video streams and captures still frames from them.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// Facing is a hint for which physical camera to prefer.
type Facing string

const (
	// FacingUser prefers the front camera.
	FacingUser Facing = "user"
	// FacingEnvironment prefers the back camera.
	FacingEnvironment Facing = "environment"
)

var (
	// ErrNoDevice is returned when no camera can be opened at all.
	ErrNoDevice = errors.New("camera: no device available")
	// ErrConstraintUnsatisfied is returned when no device matches the facing hint.
	ErrConstraintUnsatisfied = errors.New("camera: facing constraint unsatisfied")
	// ErrNoFrame is returned when a stream has not produced a frame.
	ErrNoFrame = errors.New("camera: no frame available")
	// ErrStreamStopped is returned when reading from a stopped stream.
	ErrStreamStopped = errors.New("camera: stream stopped")
)

// ParseFacing validates a facing hint. The empty string means no preference.
func ParseFacing(s string) (Facing, error) {
	switch f := Facing(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FacingUser, FacingEnvironment:
		return f, nil
	default:
		return "", fmt.Errorf("camera: unknown facing %q", s)
	}
}

// Constraints narrows stream acquisition. A zero value is unconstrained.
type Constraints struct {
	Facing Facing
}

// Track is one media track of a stream; stopping it releases the device.
type Track interface {
	Stop()
}

// Stream is a live video stream.
type Stream interface {
	// Tracks lists the tracks that must be stopped to release the device.
	Tracks() []Track
	// Frame returns the most recent frame, waiting for the first one if needed.
	Frame(ctx context.Context) (image.Image, error)
}

// Device hands out streams.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}
