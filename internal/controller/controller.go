// Package controller drives the capture-and-classify workflow: it owns the active image,
// the camera session and the single outstanding classification request.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/camera"
	"github.com/example/freshcheck/internal/classifier"
	"github.com/example/freshcheck/internal/logging"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("controller: closed")

// Classifier submits an image to the classification endpoint.
type Classifier interface {
	Classify(ctx context.Context, img classifier.Image) (*classifier.Result, error)
}

// Controller serializes workflow operations. State changes go through Reduce and are
// published to subscribers in order.
type Controller struct {
	mu        sync.Mutex
	state     State
	closed    bool
	listeners map[uint64]func(State)
	nextID    uint64

	// notifyMu keeps listener delivery in transition order.
	notifyMu sync.Mutex

	// camMu serializes camera acquisition and release.
	camMu   sync.Mutex
	session *camera.Session
	device  camera.Device

	classifier Classifier
	logger     *zap.Logger
}

// New creates a controller. device may be nil when no camera is available; OpenCamera
// then fails with a permission-or-device error.
func New(device camera.Device, cls Classifier, logger *zap.Logger) *Controller {
	return &Controller{
		device:     device,
		classifier: cls,
		logger:     logger.Named("controller"),
		listeners:  make(map[uint64]func(State)),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change. fn runs synchronously and must not
// call back into the controller's operations.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Preview returns the active source when id names its preview.
func (c *Controller) Preview(id string) (*ImageSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Source == nil || id == "" || c.state.Source.PreviewID != id {
		return nil, false
	}
	return c.state.Source, true
}

// SelectFile makes data the active image.
func (c *Controller) SelectFile(name, contentType string, data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.selectSource(ImageSource{Kind: SourceFile, Name: name, ContentType: contentType, Data: data})
	return nil
}

func (c *Controller) selectSource(src ImageSource) {
	src.PreviewID = uuid.NewString()
	c.dispatch(SourceSelected{Source: src})
	c.logger.Debug("image source selected",
		zap.String("kind", string(src.Kind)),
		zap.String("name", src.Name),
		zap.Int("bytes", len(src.Data)),
	)
}

// OpenCamera acquires a camera session with the facing preference, stopping any open
// session first.
func (c *Controller) OpenCamera(ctx context.Context, facing camera.Facing) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.dispatch(CameraRequested{})

	c.camMu.Lock()
	defer c.camMu.Unlock()

	c.releaseSessionLocked()

	if c.device == nil {
		c.dispatch(CameraFailed{Message: MsgCameraUnavailable})
		return logging.NewOperationError("controller.open_camera", "", camera.ErrNoDevice)
	}

	session, err := camera.Open(ctx, c.device, facing, c.logger)
	if err != nil {
		wrapped := logging.NewOperationError("controller.open_camera", "", err)
		c.logger.Warn("camera unavailable", zap.Error(wrapped), zap.String("facing", string(facing)))
		c.dispatch(CameraFailed{Message: MsgCameraUnavailable})
		return wrapped
	}

	if c.isClosed() {
		session.Close()
		return ErrClosed
	}

	c.session = session
	c.dispatch(CameraOpened{Facing: facing})
	c.logger.Info("camera opened", zap.String("facing", string(facing)), zap.Bool("constrained", session.Constrained()))
	return nil
}

// CloseCamera releases the camera session. Calling it without a session does nothing.
func (c *Controller) CloseCamera() {
	c.camMu.Lock()
	defer c.camMu.Unlock()
	c.releaseSessionLocked()
}

func (c *Controller) releaseSessionLocked() {
	if c.session == nil {
		return
	}
	c.session.Close()
	c.session = nil
	c.dispatch(CameraClosed{})
}

// CaptureFrame turns the current camera frame into the active image. It returns nil
// without doing anything when no session is open or no frame is available yet.
func (c *Controller) CaptureFrame(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.camMu.Lock()
	session := c.session
	c.camMu.Unlock()
	if session == nil {
		return nil
	}

	data, err := session.Capture(ctx)
	if err != nil {
		if camera.IsUnavailable(err) {
			c.logger.Debug("no frame to capture", zap.Error(err))
			return nil
		}
		return logging.NewOperationError("controller.capture_frame", "", err)
	}

	c.selectSource(ImageSource{
		Kind:        SourceCameraFrame,
		Name:        camera.CaptureFilename,
		ContentType: camera.CaptureContentType,
		Data:        data,
	})
	return nil
}

// Submit classifies the active image. It returns ErrNoImage or ErrSubmissionInFlight
// without touching the network. The request is not cancelled when ctx is; it always
// runs to completion, and an outcome for an image that is no longer active is dropped
// with ErrStaleOutcome.
func (c *Controller) Submit(ctx context.Context) (*classifier.Result, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	next, err := c.dispatch(SubmitRequested{})
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(c.logger, "controller.submit", requestID)
	src := next.Source

	opLogger.Info("submitting image",
		zap.String("kind", string(src.Kind)),
		zap.String("name", src.Name),
		zap.Int("bytes", len(src.Data)),
	)

	result, err := c.classifier.Classify(context.WithoutCancel(ctx), classifier.Image{
		Name:        src.Name,
		ContentType: src.ContentType,
		Data:        src.Data,
	})
	if err != nil {
		wrapped := logging.NewOperationError("controller.submit", requestID, err)
		if _, rerr := c.dispatch(SubmitFailed{Generation: next.Generation, Message: classifier.UserMessage(err)}); rerr != nil {
			opLogger.Info("dropping failure for replaced image", zap.Error(err))
			return nil, rerr
		}
		opLogger.Warn("classification failed", logging.ErrorFields(wrapped)...)
		return nil, wrapped
	}

	if _, rerr := c.dispatch(SubmitSucceeded{Generation: next.Generation, Result: result}); rerr != nil {
		opLogger.Info("dropping result for replaced image", zap.String("label", result.Label))
		return nil, rerr
	}
	opLogger.Info("classification succeeded", zap.String("label", result.Label))
	return result, nil
}

// Close releases the camera session whatever the current phase and rejects further
// operations. An outstanding submission still completes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.CloseCamera()

	c.mu.Lock()
	c.listeners = make(map[uint64]func(State))
	c.mu.Unlock()
	c.logger.Debug("controller closed")
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) dispatch(ev Event) (State, error) {
	c.mu.Lock()
	next, err := Reduce(c.state, ev)
	c.state = next
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.notifyMu.Lock()
	c.mu.Unlock()

	defer c.notifyMu.Unlock()
	for _, fn := range listeners {
		fn(next)
	}
	return next, err
}
