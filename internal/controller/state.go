package controller

import (
	"errors"
	"fmt"

	"github.com/example/freshcheck/internal/camera"
	"github.com/example/freshcheck/internal/classifier"
)

// User facing messages.
const (
	MsgNoImage           = "Silakan pilih atau ambil foto terlebih dahulu."
	MsgCameraUnavailable = "Tidak bisa mengakses kamera. Pastikan izin sudah diberikan dan perangkat mendukung kamera."
)

var (
	// ErrNoImage rejects a submission without a selected image.
	ErrNoImage = errors.New("controller: no image selected")
	// ErrSubmissionInFlight rejects a submission while another one is running.
	ErrSubmissionInFlight = errors.New("controller: submission already in flight")
	// ErrStaleOutcome marks a submission outcome that no longer matches the active image.
	ErrStaleOutcome = errors.New("controller: stale submission outcome")
	// ErrUnknownEvent is returned for events Reduce does not understand.
	ErrUnknownEvent = errors.New("controller: unknown event")
)

// Phase is the position of the capture-and-classify workflow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSourceSelected
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSourceSelected:
		return "source_selected"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SourceKind tells where the active image came from.
type SourceKind string

const (
	SourceFile        SourceKind = "file"
	SourceCameraFrame SourceKind = "camera-frame"
)

// ImageSource is the active image. Data must not be modified once selected.
type ImageSource struct {
	Kind        SourceKind
	Name        string
	ContentType string
	Data        []byte
	PreviewID   string
}

// ErrorKind classifies the visible error message.
type ErrorKind string

const (
	ErrorPermissionOrDevice ErrorKind = "permission_or_device"
	ErrorValidation         ErrorKind = "validation"
	ErrorRemote             ErrorKind = "remote"
)

// Failure is the single visible error.
type Failure struct {
	Kind    ErrorKind
	Message string
}

// CameraState mirrors the controller's camera session.
type CameraState struct {
	Open   bool
	Facing camera.Facing
}

// State is everything a front end needs to render the workflow.
type State struct {
	Phase   Phase
	Source  *ImageSource
	Result  *classifier.Result
	Failure *Failure
	Camera  CameraState

	// InFlight stays true until the outstanding request completes, even when a new
	// source made its outcome stale.
	InFlight bool
	// Generation changes whenever a new source is selected or a submission starts;
	// outcomes carrying an older generation are dropped.
	Generation uint64
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// SourceSelected replaces the active image.
type SourceSelected struct{ Source ImageSource }

// SubmitRequested starts a classification of the active image.
type SubmitRequested struct{}

// SubmitSucceeded delivers the result of the submission started at Generation.
type SubmitSucceeded struct {
	Generation uint64
	Result     *classifier.Result
}

// SubmitFailed delivers the failure of the submission started at Generation.
type SubmitFailed struct {
	Generation uint64
	Message    string
}

// CameraRequested marks the start of a camera acquisition.
type CameraRequested struct{}

// CameraOpened records a successfully opened session.
type CameraOpened struct{ Facing camera.Facing }

// CameraFailed records that no session could be opened.
type CameraFailed struct{ Message string }

// CameraClosed records that the session was released.
type CameraClosed struct{}

func (SourceSelected) event()  {}
func (SubmitRequested) event() {}
func (SubmitSucceeded) event() {}
func (SubmitFailed) event()    {}
func (CameraRequested) event() {}
func (CameraOpened) event()    {}
func (CameraFailed) event()    {}
func (CameraClosed) event()    {}

// Reduce applies ev to s and returns the next state. It never mutates s. A non-nil
// error reports a rejected event; the returned state is still the one to adopt, which
// for ErrNoImage carries the validation message and for ErrSubmissionInFlight is s.
func Reduce(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case SourceSelected:
		src := ev.Source
		s.Source = &src
		s.Result = nil
		s.Failure = nil
		s.Phase = PhaseSourceSelected
		s.Generation++
		return s, nil

	case SubmitRequested:
		if s.InFlight {
			return s, ErrSubmissionInFlight
		}
		if s.Source == nil {
			s.Result = nil
			s.Failure = &Failure{Kind: ErrorValidation, Message: MsgNoImage}
			return s, ErrNoImage
		}
		s.Phase = PhaseSubmitting
		s.InFlight = true
		s.Result = nil
		s.Failure = nil
		s.Generation++
		return s, nil

	case SubmitSucceeded:
		stale := !s.InFlight || ev.Generation != s.Generation
		s.InFlight = false
		if stale {
			return s, ErrStaleOutcome
		}
		s.Phase = PhaseSucceeded
		s.Result = ev.Result
		s.Failure = nil
		return s, nil

	case SubmitFailed:
		stale := !s.InFlight || ev.Generation != s.Generation
		s.InFlight = false
		if stale {
			return s, ErrStaleOutcome
		}
		msg := ev.Message
		if msg == "" {
			msg = classifier.GenericFailureMessage
		}
		s.Phase = PhaseFailed
		s.Result = nil
		s.Failure = &Failure{Kind: ErrorRemote, Message: msg}
		return s, nil

	case CameraRequested:
		s.Result = nil
		s.Failure = nil
		if !s.InFlight {
			s.Phase = restingPhase(s)
		}
		return s, nil

	case CameraOpened:
		s.Camera = CameraState{Open: true, Facing: ev.Facing}
		return s, nil

	case CameraFailed:
		msg := ev.Message
		if msg == "" {
			msg = MsgCameraUnavailable
		}
		s.Camera = CameraState{}
		s.Failure = &Failure{Kind: ErrorPermissionOrDevice, Message: msg}
		return s, nil

	case CameraClosed:
		s.Camera = CameraState{}
		return s, nil

	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func restingPhase(s State) Phase {
	if s.Source == nil {
		return PhaseIdle
	}
	return PhaseSourceSelected
}
