// Package control exposes the bridge's command surface over a TCP line
// protocol. Each connection carries newline-delimited commands; each command
// produces exactly one reply line.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Executor runs one command line and returns the reply. Satisfied by
// *bridge.Bridge.
type Executor interface {
	Execute(ctx context.Context, line string) string
}

// maxLineBytes bounds a single command line; metadata is capped well below
// this by the dispatcher.
const maxLineBytes = 64 * 1024

// Server accepts control connections and feeds command lines to an Executor.
type Server struct {
	addr string
	exec Executor
	log  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a control server listening on addr once Run is called.
func NewServer(addr string, exec Executor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, exec: exec, log: log}
}

// Run listens and serves until ctx is cancelled. It returns nil on orderly
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.log.Info("control server listening", "addr", l.Addr().String())

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("control accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// serve handles one control connection until EOF or cancellation.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	s.log.Debug("control client connected", "remote", remote)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply := s.exec.Execute(ctx, line)

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			s.log.Warn("control reply write failed", "remote", remote, "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("control read failed", "remote", remote, "error", err)
	}
	s.log.Debug("control client disconnected", "remote", remote)
}
