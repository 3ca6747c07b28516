package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/freshcheck/internal/classifier"
	"github.com/example/freshcheck/internal/controller"
)

var classifyFile string

var classifyCmd = &cobra.Command{
	Use:   "classify --file PATH",
	Short: "Classify an image file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := controller.New(nil, classifier.NewClient(cfg.ClassifierURL, nil, logger), logger)
		defer ctrl.Close()
		return runClassify(cmd.Context(), cmd.OutOrStdout(), ctrl, classifyFile)
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyFile, "file", "f", "", "image to classify")
	_ = classifyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(ctx context.Context, out io.Writer, ctrl *controller.Controller, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	name := filepath.Base(path)
	if err := ctrl.SelectFile(name, mime.TypeByExtension(filepath.Ext(name)), data); err != nil {
		return err
	}
	return submitAndPrint(ctx, out, ctrl)
}

// submitAndPrint submits the active image behind a spinner and prints the rendered
// outcome. A failed classification prints its message and returns an error.
func submitAndPrint(ctx context.Context, out io.Writer, ctrl *controller.Controller) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Mengirim gambar"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	_, err := ctrl.Submit(ctx)
	close(done)
	_ = bar.Finish()

	printState(out, ctrl.State())
	if err != nil {
		if errors.Is(err, controller.ErrNoImage) {
			return errors.New(controller.MsgNoImage)
		}
		return errors.New("classification failed")
	}
	return nil
}

func printState(out io.Writer, s controller.State) {
	if s.Failure != nil {
		fmt.Fprintf(out, "Error: %s\n", s.Failure.Message)
		return
	}
	if s.Result == nil {
		return
	}

	fmt.Fprintf(out, "Label: %s\n", s.Result.DisplayLabel())
	if pct, ok := s.Result.ConfidencePercent(); ok {
		fmt.Fprintf(out, "Confidence: %s\n", pct)
	}
	verdict := "not fresh"
	if classifier.NewVerdict(cfg.FreshLabels).IsFresh(s.Result) {
		verdict = "fresh"
	}
	fmt.Fprintf(out, "Verdict: %s\n", verdict)
}
