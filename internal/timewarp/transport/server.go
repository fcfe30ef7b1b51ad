package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/dvector"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/messenger"
)

const readBufferSize = 1024

// Server is the inbound side of the TCP transport. It accepts one
// connection per inbound message (per spec.md §6), reads up to
// readBufferSize bytes, strips the defensive NUL/newline padding, decodes
// an Envelope, and hands the contained model.Message to the Messenger's
// local-dispatch path — remote-origin messages always target a locally
// hosted component.
type Server struct {
	addr      string
	messenger *messenger.Messenger
	dv        *dvector.Vector
	logger    *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to addr (not yet listening). dv, if
// non-nil, receives every inbound envelope's piggybacked dependency-vector
// snapshot via Merge, per spec.md §5; pass nil for a federation that opted
// out of dependency tracking.
func NewServer(addr string, m *messenger.Messenger, dv *dvector.Vector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		messenger: m,
		dv:        dv,
		logger:    logger.With("subsystem", "transport.server", "addr", addr),
	}
}

// ListenAndServe binds addr and accepts connections until ctx is cancelled
// or Close is called. It blocks until the accept loop exits.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("transport server listening")

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("transport server stopped")
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops accepting new connections. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		s.logger.Warn("read failed", "error", err, "remote", conn.RemoteAddr())
		return
	}

	raw := bytes.Trim(buf[:n], "\x00")
	raw = bytes.ReplaceAll(raw, []byte("\n"), nil)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("malformed envelope", "error", err, "remote", conn.RemoteAddr())
		return
	}

	if env.DependencyVector != nil && s.dv != nil {
		if err := s.dv.Merge(env.DependencyVector); err != nil {
			s.logger.Warn("dependency vector merge rejected", "trace_id", env.TraceID, "error", err)
		}
	}

	if err := s.messenger.SendLocal(env.Message.To, env.Message); err != nil {
		s.logger.Error("local dispatch failed", "trace_id", env.TraceID, "to", env.Message.To, "error", err)
	}
}
