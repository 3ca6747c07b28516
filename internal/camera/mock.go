package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// MockDevice is an in-memory Device for tests and dry runs.
type MockDevice struct {
	mu sync.Mutex

	// Fail maps a facing hint to the error returned for it; the empty facing is the
	// unconstrained request.
	Fail map[Facing]error
	// Image is served by every stream; nil makes Frame report ErrNoFrame.
	Image image.Image
	// TracksPerStream sets how many tracks each stream has, one by default.
	TracksPerStream int

	requests []Constraints
	streams  []*MockStream
}

// NewMockDevice returns a device serving a solid test image of the given size.
func NewMockDevice(width, height int) *MockDevice {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 40, A: 255})
		}
	}
	return &MockDevice{Fail: map[Facing]error{}, Image: img}
}

// Acquire records the request and returns a stream unless Fail says otherwise.
func (d *MockDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, c)
	if err := d.Fail[c.Facing]; err != nil {
		return nil, err
	}
	n := d.TracksPerStream
	if n <= 0 {
		n = 1
	}
	stream := &MockStream{image: d.Image}
	for i := 0; i < n; i++ {
		stream.tracks = append(stream.tracks, &MockTrack{})
	}
	d.streams = append(d.streams, stream)
	return stream, nil
}

// Requests returns the constraints of every Acquire call so far.
func (d *MockDevice) Requests() []Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Constraints(nil), d.requests...)
}

// Streams returns every stream handed out so far.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockStream(nil), d.streams...)
}

// MockStream is a stream served by MockDevice.
type MockStream struct {
	image  image.Image
	tracks []*MockTrack
}

// Tracks implements Stream.
func (s *MockStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Frame implements Stream.
func (s *MockStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Stopped() {
		return nil, ErrStreamStopped
	}
	if s.image == nil {
		return nil, ErrNoFrame
	}
	return s.image, nil
}

// Stopped reports whether every track has been stopped at least once.
func (s *MockStream) Stopped() bool {
	for _, t := range s.tracks {
		if t.Stops() == 0 {
			return false
		}
	}
	return true
}

// MockTrack counts Stop calls.
type MockTrack struct {
	mu    sync.Mutex
	stops int
}

// Stop implements Track.
func (t *MockTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

// Stops returns how many times Stop was called.
func (t *MockTrack) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}
