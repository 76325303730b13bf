package control_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callbridge-io/callbridge/internal/control"
)

// echoExec records lines and replies deterministically.
type echoExec struct {
	mu    sync.Mutex
	lines []string
}

func (e *echoExec) Execute(_ context.Context, line string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, line)
	if strings.HasSuffix(line, "fail") {
		return "-ERR Operation Failed"
	}
	return "+OK Success"
}

func (e *echoExec) received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.lines))
	copy(out, e.lines)
	return out
}

// startServer runs a control server on an ephemeral port and returns its
// address.
func startServer(t *testing.T, exec control.Executor) (string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := control.NewServer("127.0.0.1:0", exec, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("server did not shut down")
		}
	})

	// Wait for the listener to bind.
	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr().String(), cancel
}

func TestServer_CommandReplyRoundTrip(t *testing.T) {
	t.Parallel()

	exec := &echoExec{}
	addr, _ := startServer(t, exec)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprintln(conn, "call-1 pause")
	fmt.Fprintln(conn, "call-1 fail")

	r := bufio.NewScanner(conn)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	if !r.Scan() || r.Text() != "+OK Success" {
		t.Fatalf("first reply = %q, err=%v", r.Text(), r.Err())
	}
	if !r.Scan() || r.Text() != "-ERR Operation Failed" {
		t.Fatalf("second reply = %q, err=%v", r.Text(), r.Err())
	}

	got := exec.received()
	if len(got) != 2 || got[0] != "call-1 pause" || got[1] != "call-1 fail" {
		t.Errorf("received lines = %v", got)
	}
}

func TestServer_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	exec := &echoExec{}
	addr, _ := startServer(t, exec)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprint(conn, "\n\n  \ncall-1 resume\n")

	r := bufio.NewScanner(conn)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if !r.Scan() || r.Text() != "+OK Success" {
		t.Fatalf("reply = %q, err=%v", r.Text(), r.Err())
	}
	if got := exec.received(); len(got) != 1 || got[0] != "call-1 resume" {
		t.Errorf("received lines = %v", got)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	t.Parallel()

	exec := &echoExec{}
	addr, _ := startServer(t, exec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			fmt.Fprintf(conn, "call-%d pause\n", i)
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			r := bufio.NewScanner(conn)
			if !r.Scan() || r.Text() != "+OK Success" {
				t.Errorf("client %d reply = %q", i, r.Text())
			}
		}(i)
	}
	wg.Wait()

	if got := exec.received(); len(got) != 8 {
		t.Errorf("received %d lines, want 8", len(got))
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	t.Parallel()

	exec := &echoExec{}
	addr, cancel := startServer(t, exec)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cancel()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("connection still open after server shutdown")
	}
}
