package milter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/d--j/go-milter"

	"github.com/zpam/categorizer/pkg/config"
)

// Server represents the categorizing milter server
type Server struct {
	config    *config.Config
	milterSrv *milter.Server
}

// NewServer creates a new milter server backed by c
func NewServer(cfg *config.Config, c Classifier, observer Observer, logger *slog.Logger) (*Server, error) {
	if !cfg.Milter.Enabled {
		return nil, fmt.Errorf("milter is not enabled in configuration")
	}
	if c == nil {
		return nil, fmt.Errorf("milter requires a classifier")
	}

	var milterOpts []milter.Option

	// Configure protocol options (what events to skip). The body is always needed.
	var skipProtocols milter.OptProtocol
	if cfg.Milter.SkipConnect {
		skipProtocols |= milter.OptNoConnect
	}
	if cfg.Milter.SkipHelo {
		skipProtocols |= milter.OptNoHelo
	}
	if cfg.Milter.SkipMail {
		skipProtocols |= milter.OptNoMailFrom
	}
	if cfg.Milter.SkipRcpt {
		skipProtocols |= milter.OptNoRcptTo
	}
	if cfg.Milter.SkipHeaders {
		skipProtocols |= milter.OptNoHeaders
	}

	if skipProtocols != 0 {
		milterOpts = append(milterOpts, milter.WithProtocol(skipProtocols))
	}

	milterOpts = append(milterOpts, milter.WithAction(milter.OptAddHeader))

	// Configure timeouts
	if cfg.Milter.ReadTimeoutMs > 0 {
		milterOpts = append(milterOpts, milter.WithReadTimeout(
			time.Duration(cfg.Milter.ReadTimeoutMs)*time.Millisecond))
	}
	if cfg.Milter.WriteTimeoutMs > 0 {
		milterOpts = append(milterOpts, milter.WithWriteTimeout(
			time.Duration(cfg.Milter.WriteTimeoutMs)*time.Millisecond))
	}

	milterOpts = append(milterOpts, milter.WithMilter(func() milter.Milter {
		return NewHandler(cfg, c, observer, logger)
	}))

	return &Server{
		config:    cfg,
		milterSrv: milter.NewServer(milterOpts...),
	}, nil
}

// Listen opens the configured milter socket
func (s *Server) Listen() (net.Listener, error) {
	listener, err := net.Listen(s.config.Milter.Network, s.config.Milter.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %v", s.config.Milter.Network, s.config.Milter.Address, err)
	}
	return listener, nil
}

// Serve accepts milter connections until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.milterSrv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(s.config.Milter.GracefulShutdownTimeout)*time.Millisecond,
		)
		defer cancel()

		if err := s.milterSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown milter server: %v", err)
		}

		return ctx.Err()

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("milter server error: %v", err)
		}
		return nil
	}
}

// Close closes the milter server
func (s *Server) Close() error {
	return s.milterSrv.Close()
}

// Stats returns server statistics
func (s *Server) Stats() ServerStats {
	return ServerStats{
		MilterCount: s.milterSrv.MilterCount(),
	}
}

// ServerStats contains server statistics
type ServerStats struct {
	MilterCount uint64 // Total number of milter instances created
}
