package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func serveHTTPServer(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(ctx, server, shutdownTimeout, logger, nil)
}

// serveHTTPServerWithOptions serves until the server fails or ctx is done, then drains
// in-flight requests for up to shutdownTimeout. A nil listener listens on server.Addr.
func serveHTTPServerWithOptions(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal", zap.Error(context.Cause(ctx)))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
