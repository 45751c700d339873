// Package ipc is the daemon's control socket: one JSON request and one JSON
// response per unix connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSocket is used when no path is configured.
func DefaultSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "jarvis.sock")
	}
	return filepath.Join(os.TempDir(), "jarvis.sock")
}

type Request struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args,omitempty"`
}

type Response struct {
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
}

// Handler answers one request.
type Handler func(ctx context.Context, req Request) Response

const ioTimeout = 5 * time.Second

type Server struct {
	path    string
	handler Handler

	ln net.Listener
	wg sync.WaitGroup
}

// Listen removes a stale socket at path and starts listening.
func Listen(path string, h Handler) (*Server, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return &Server{path: path, handler: h, ln: ln}, nil
}

// Serve accepts connections until Close.
func (s *Server) Serve(ctx context.Context) error {
	log.Info("Control socket ready", "path", s.path)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("Accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(ioTimeout))
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Warn("Bad control request", "err", err)
		_ = json.NewEncoder(conn).Encode(Response{Output: "bad request: " + err.Error()})
		return
	}
	log.Debug("Control request", "cmd", req.Cmd, "args", req.Args)

	resp := s.safeHandle(ctx, req)

	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Warn("Failed to answer control request", "cmd", req.Cmd, "err", err)
	}
}

func (s *Server) safeHandle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Control handler panicked", "cmd", req.Cmd, "err", r)
			resp = Response{Output: fmt.Sprint(r)}
		}
	}()
	return s.handler(ctx, req)
}

// Send dials path, sends req and waits for the response.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", req.Cmd, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", req.Cmd, err)
	}
	return resp, nil
}
