package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Listener serves a handler on a TCP address until its context is
// cancelled, then drains in-flight requests.
type Listener struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
	writeTimeout    time.Duration

	ready chan struct{}
	addr  net.Addr
}

type ListenerConfig struct {
	Address         string
	Handler         http.Handler
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	// WriteTimeout bounds a whole request, including synchronous update
	// processing.
	WriteTimeout time.Duration
}

func NewListener(cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	return &Listener{
		address:         cfg.Address,
		handler:         cfg.Handler,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
		writeTimeout:    writeTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr is valid after Ready is closed.
func (l *Listener) Addr() net.Addr {
	return l.addr
}

func (l *Listener) Serve(ctx context.Context) error {
	if l.handler == nil {
		return errors.New("httpapi: listener handler is nil")
	}
	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.address, err)
	}
	l.addr = ln.Addr()
	close(l.ready)

	server := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      l.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	l.logger.Info("http server listening", "address", l.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}
	l.logger.Info("http server stopped")
	return nil
}
