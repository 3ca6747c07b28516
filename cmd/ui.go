package cmd

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/camera"
	"github.com/example/freshcheck/internal/classifier"
	"github.com/example/freshcheck/internal/controller"
	"github.com/example/freshcheck/internal/handlers"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Serve the capture-and-classify API for a browser front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := newController()
		defer ctrl.Close()

		r := gin.Default()
		r.MaxMultipartMemory = handlers.MaxUploadSize
		r.Use(handlers.NewCORS(cfg.CORSOrigins))
		handlers.RegisterUIRoutes(r, ctrl, classifier.NewVerdict(cfg.FreshLabels), logger)

		server := &http.Server{
			Addr:    cfg.UIAddr,
			Handler: r,
		}

		logger.Info("UI API listening",
			zap.String("addr", cfg.UIAddr),
			zap.String("classifier", cfg.ClassifierURL),
		)
		return serveHTTPServer(cmd.Context(), server, logger)
	},
}

func init() {
	uiCmd.Flags().StringVar(&cfg.UIAddr, "addr", cfg.UIAddr, "listen address")
	uiCmd.Flags().StringSliceVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "allowed browser origins, * for any")
	rootCmd.AddCommand(uiCmd)
}

func newController() *controller.Controller {
	cls := classifier.NewClient(cfg.ClassifierURL, nil, logger)
	return controller.New(newCameraDevice(), cls, logger)
}

func newCameraDevice() camera.Device {
	byFacing := map[camera.Facing]string{}
	if cfg.CameraDeviceUser != "" {
		byFacing[camera.FacingUser] = cfg.CameraDeviceUser
	}
	if cfg.CameraDeviceEnvironment != "" {
		byFacing[camera.FacingEnvironment] = cfg.CameraDeviceEnvironment
	}
	if cfg.CameraDevice == "" && len(byFacing) == 0 {
		return nil
	}
	return camera.NewFFmpegDevice(cfg.CameraDevice, byFacing, logger)
}
