package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/camera"
	"github.com/example/freshcheck/internal/classifier"
	"github.com/example/freshcheck/internal/controller"
	"github.com/example/freshcheck/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// SourceView describes the active image without its bytes.
type SourceView struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	PreviewURL  string `json:"preview_url"`
}

// ResultView is a rendered classification.
type ResultView struct {
	Label             string   `json:"label"`
	Confidence        *float64 `json:"confidence,omitempty"`
	ConfidencePercent string   `json:"confidence_percent,omitempty"`
	ClassIndex        *int     `json:"class_index,omitempty"`
	Fresh             bool     `json:"fresh"`
}

// ErrorView is the single visible error.
type ErrorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CameraView mirrors the camera session.
type CameraView struct {
	Open   bool   `json:"open"`
	Facing string `json:"facing,omitempty"`
}

// StateView is the JSON form of the controller state served to front ends.
type StateView struct {
	Phase      string      `json:"phase"`
	Submitting bool        `json:"submitting"`
	Source     *SourceView `json:"source,omitempty"`
	Result     *ResultView `json:"result,omitempty"`
	Error      *ErrorView  `json:"error,omitempty"`
	Camera     CameraView  `json:"camera"`
}

// NewStateView renders s for a front end.
func NewStateView(s controller.State, verdict classifier.Verdict) StateView {
	view := StateView{
		Phase:      s.Phase.String(),
		Submitting: s.InFlight,
		Camera:     CameraView{Open: s.Camera.Open, Facing: string(s.Camera.Facing)},
	}
	if s.Source != nil {
		view.Source = &SourceView{
			Kind:        string(s.Source.Kind),
			Name:        s.Source.Name,
			ContentType: s.Source.ContentType,
			Size:        len(s.Source.Data),
			PreviewURL:  "/preview/" + s.Source.PreviewID,
		}
	}
	if s.Result != nil {
		rv := &ResultView{
			Label:      s.Result.DisplayLabel(),
			Confidence: s.Result.Confidence,
			ClassIndex: s.Result.ClassIndex,
			Fresh:      verdict.IsFresh(s.Result),
		}
		rv.ConfidencePercent, _ = s.Result.ConfidencePercent()
		view.Result = rv
	}
	if s.Failure != nil {
		view.Error = &ErrorView{Kind: string(s.Failure.Kind), Message: s.Failure.Message}
	}
	return view
}

type uiServer struct {
	ctrl     *controller.Controller
	verdict  classifier.Verdict
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// RegisterUIRoutes exposes the controller over HTTP and a websocket state stream.
func RegisterUIRoutes(router *gin.Engine, ctrl *controller.Controller, verdict classifier.Verdict, logger *zap.Logger) {
	s := &uiServer{
		ctrl:    ctrl,
		verdict: verdict,
		logger:  logger.Named("ui_api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/state", s.handleState)
	router.POST("/source", s.handleSelectSource)
	router.POST("/camera/open", s.handleOpenCamera)
	router.POST("/camera/close", s.handleCloseCamera)
	router.POST("/camera/capture", s.handleCapture)
	router.POST("/submit", s.handleSubmit)
	router.GET("/preview/:id", s.handlePreview)
	router.GET("/ws", s.handleWS)
}

func (s *uiServer) view() StateView {
	return NewStateView(s.ctrl.State(), s.verdict)
}

func (s *uiServer) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.view())
}

func (s *uiServer) handleSelectSource(c *gin.Context) {
	file, err := c.FormFile(fileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgNoFile})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	if err := s.ctrl.SelectFile(file.Filename, file.Header.Get("Content-Type"), data); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *uiServer) handleOpenCamera(c *gin.Context) {
	facing, err := camera.ParseFacing(c.DefaultPostForm("facing", string(camera.FacingEnvironment)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ctrl.OpenCamera(c.Request.Context(), facing); err != nil {
		if errors.Is(err, controller.ErrClosed) {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusServiceUnavailable, s.view())
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *uiServer) handleCloseCamera(c *gin.Context) {
	s.ctrl.CloseCamera()
	c.JSON(http.StatusOK, s.view())
}

func (s *uiServer) handleCapture(c *gin.Context) {
	if err := s.ctrl.CaptureFrame(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *uiServer) handleSubmit(c *gin.Context) {
	_, err := s.ctrl.Submit(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.view())
	case errors.Is(err, controller.ErrNoImage):
		c.JSON(http.StatusBadRequest, s.view())
	case errors.Is(err, controller.ErrSubmissionInFlight), errors.Is(err, controller.ErrStaleOutcome):
		c.JSON(http.StatusConflict, s.view())
	case errors.Is(err, controller.ErrClosed):
		s.fail(c, err)
	default:
		c.JSON(http.StatusBadGateway, s.view())
	}
}

func (s *uiServer) handlePreview(c *gin.Context) {
	src, ok := s.ctrl.Preview(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	contentType := src.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(src.Data)
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, src.Data)
}

func (s *uiServer) fail(c *gin.Context, err error) {
	if errors.Is(err, controller.ErrClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("request failed", append(logging.ErrorFields(err), zap.String("path", c.FullPath()))...)
	c.JSON(http.StatusInternalServerError, gin.H{"error": classifier.GenericFailureMessage})
}

// handleWS sends the current state, then the latest state after every change. Bursts
// of changes are coalesced into one message.
func (s *uiServer) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	cancel := s.ctrl.Subscribe(func(controller.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := s.writeState(conn); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-changed:
			if err := s.writeState(conn); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *uiServer) writeState(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(s.view())
}
