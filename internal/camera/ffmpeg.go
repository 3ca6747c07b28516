package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	megabyte            = 1024 * 1024
	defaultStartTimeout = 10 * time.Second
)

// FFmpegDevice opens cameras by running ffmpeg and reading its MJPEG output.
type FFmpegDevice struct {
	// Default is the device used for unconstrained requests.
	Default string
	// ByFacing maps a facing hint to a device; a missing entry fails the constraint.
	ByFacing map[Facing]string
	// FPS limits the frame rate; zero keeps the device rate.
	FPS uint
	// Binary is the ffmpeg executable, "ffmpeg" when empty.
	Binary string
	// StartTimeout bounds how long Acquire waits for the first frame.
	StartTimeout time.Duration

	logger *zap.Logger
}

// NewFFmpegDevice returns a device with the given default and per-facing device names.
func NewFFmpegDevice(defaultDevice string, byFacing map[Facing]string, logger *zap.Logger) *FFmpegDevice {
	return &FFmpegDevice{
		Default:      defaultDevice,
		ByFacing:     byFacing,
		Binary:       "ffmpeg",
		StartTimeout: defaultStartTimeout,
		logger:       logger.Named("ffmpeg_camera"),
	}
}

// Acquire starts ffmpeg for the matching device and waits until it delivers a frame.
func (d *FFmpegDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	name, err := d.resolve(c)
	if err != nil {
		return nil, err
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.Command(binary, d.args(name)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrNoDevice, err)
	}

	stream := newFFmpegStream(cmd, stderr, d.logger.With(zap.String("device", name)))
	go stream.readLoop(stdout)

	timeout := d.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-stream.ready:
		d.logger.Info("camera stream started", zap.String("device", name), zap.String("facing", string(c.Facing)))
		return stream, nil
	case <-stream.done:
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, stream.failure())
	case <-waitCtx.Done():
		stream.stop()
		return nil, fmt.Errorf("camera: waiting for first frame from %s: %w", name, waitCtx.Err())
	}
}

func (d *FFmpegDevice) resolve(c Constraints) (string, error) {
	if c.Facing == "" {
		if d.Default == "" {
			return "", ErrNoDevice
		}
		return d.Default, nil
	}
	name := d.ByFacing[c.Facing]
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrConstraintUnsatisfied, c.Facing)
	}
	return name, nil
}

func (d *FFmpegDevice) args(name string) []string {
	var args []string
	switch runtime.GOOS {
	case "windows":
		args = []string{"-f", "dshow", "-i", "video=" + name}
	case "darwin":
		args = []string{"-f", "avfoundation", "-i", name}
	default:
		args = []string{"-f", "v4l2", "-i", name}
	}
	if d.FPS > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", d.FPS))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-loglevel", "error", "-")
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	logger *zap.Logger

	mu     sync.Mutex
	latest []byte
	err    error

	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	stopOnce sync.Once
	stopChan chan struct{}
}

func newFFmpegStream(cmd *exec.Cmd, stderr *bytes.Buffer, logger *zap.Logger) *ffmpegStream {
	return &ffmpegStream{
		cmd:      cmd,
		stderr:   stderr,
		logger:   logger,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		stopChan: make(chan struct{}),
	}
}

func (s *ffmpegStream) readLoop(stdout io.ReadCloser) {
	defer close(s.done)
	defer stdout.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}

	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
		s.err = ErrStreamStopped
		return
	default:
	}
	switch {
	case scanner.Err() != nil:
		s.err = fmt.Errorf("camera: read frames: %w", scanner.Err())
	case waitErr != nil:
		s.err = fmt.Errorf("camera: ffmpeg exited: %v: %s", waitErr, strings.TrimSpace(s.stderr.String()))
	default:
		s.err = ErrStreamStopped
	}
	s.logger.Warn("camera stream ended", zap.Error(s.err))
}

func (s *ffmpegStream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return ErrStreamStopped
	}
	return s.err
}

func (s *ffmpegStream) stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
}

func (s *ffmpegStream) Tracks() []Track {
	return []Track{ffmpegTrack{stream: s}}
}

func (s *ffmpegStream) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.ready:
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-s.done:
		return nil, s.failure()
	default:
	}

	s.mu.Lock()
	data := s.latest
	s.mu.Unlock()
	if data == nil {
		return nil, ErrNoFrame
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("camera: decode frame: %w", err)
	}
	return img, nil
}

type ffmpegTrack struct {
	stream *ffmpegStream
}

func (t ffmpegTrack) Stop() {
	t.stream.stop()
}
