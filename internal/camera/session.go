package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"

	"go.uber.org/zap"
)

const (
	// CaptureFilename names frames captured from a session.
	CaptureFilename = "camera_capture.jpg"
	// CaptureContentType is the encoding of captured frames.
	CaptureContentType = "image/jpeg"

	captureQuality = 92
)

// AcquireError reports that both the constrained and the unconstrained acquisition failed.
type AcquireError struct {
	Facing      Facing
	Constrained error
	Fallback    error
}

// Error implements the error interface.
func (e *AcquireError) Error() string {
	if e.Constrained == nil {
		return fmt.Sprintf("camera: acquire failed: %v", e.Fallback)
	}
	return fmt.Sprintf("camera: acquire %s failed: %v; fallback failed: %v", e.Facing, e.Constrained, e.Fallback)
}

// Unwrap exposes both underlying failures.
func (e *AcquireError) Unwrap() []error {
	var errs []error
	if e.Constrained != nil {
		errs = append(errs, e.Constrained)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// Session owns an open stream until Close is called.
type Session struct {
	mu          sync.Mutex
	stream      Stream
	facing      Facing
	constrained bool
	closed      bool
	logger      *zap.Logger
}

// Open acquires a stream honouring the facing hint, retrying once without constraints
// when the constrained request fails.
func Open(ctx context.Context, dev Device, facing Facing, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("camera_session")

	var constrainedErr error
	if facing != "" {
		stream, err := acquire(ctx, dev, Constraints{Facing: facing})
		if err == nil {
			return &Session{stream: stream, facing: facing, constrained: true, logger: logger}, nil
		}
		constrainedErr = err
		logger.Warn("constrained camera request failed, retrying unconstrained",
			zap.String("facing", string(facing)), zap.Error(err))
	}

	stream, err := acquire(ctx, dev, Constraints{})
	if err != nil {
		return nil, &AcquireError{Facing: facing, Constrained: constrainedErr, Fallback: err}
	}
	return &Session{stream: stream, facing: facing, logger: logger}, nil
}

func acquire(ctx context.Context, dev Device, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := dev.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, ErrNoDevice
	}
	return stream, nil
}

// Facing returns the preference the session was opened with.
func (s *Session) Facing() Facing {
	return s.facing
}

// Constrained reports whether the facing hint was honoured.
func (s *Session) Constrained() bool {
	return s.constrained
}

// Close stops every track of the stream. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	tracks := s.stream.Tracks()
	for _, track := range tracks {
		track.Stop()
	}
	s.logger.Debug("camera session closed", zap.Int("tracks", len(tracks)))
}

// Capture grabs the current frame and encodes it as JPEG at the frame's own resolution.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamStopped
	}

	frame, err := s.stream.Frame(ctx)
	if err != nil {
		return nil, err
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrNoFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: captureQuality}); err != nil {
		return nil, fmt.Errorf("camera: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// IsUnavailable reports whether err means a frame simply was not there to capture.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNoFrame) || errors.Is(err, ErrStreamStopped)
}
