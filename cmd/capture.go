package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/camera"
	"github.com/example/freshcheck/internal/controller"
)

var (
	captureFacing string
	captureSave   string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take one photo with the camera and classify it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		facing, err := camera.ParseFacing(captureFacing)
		if err != nil {
			return err
		}
		ctrl := newController()
		defer ctrl.Close()
		return runCapture(cmd.Context(), cmd.OutOrStdout(), ctrl, facing, captureSave)
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureFacing, "facing", string(camera.FacingEnvironment), "preferred camera: user or environment")
	captureCmd.Flags().StringVar(&captureSave, "save", "", "also write the captured JPEG to this path")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(ctx context.Context, out io.Writer, ctrl *controller.Controller, facing camera.Facing, savePath string) error {
	if err := ctrl.OpenCamera(ctx, facing); err != nil {
		logger.Debug("open camera failed", zap.Error(err))
		if errors.Is(err, controller.ErrClosed) {
			return err
		}
		return errors.New(controller.MsgCameraUnavailable)
	}
	defer ctrl.CloseCamera()

	if err := ctrl.CaptureFrame(ctx); err != nil {
		return err
	}
	src := ctrl.State().Source
	if src == nil || src.Kind != controller.SourceCameraFrame {
		return errors.New("no frame captured")
	}
	ctrl.CloseCamera()

	if savePath != "" {
		if err := os.WriteFile(savePath, src.Data, 0o644); err != nil {
			return fmt.Errorf("failed to save capture: %w", err)
		}
	}
	return submitAndPrint(ctx, out, ctrl)
}
