package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/timvw/pane-tracker/internal/logging"
	ptotel "github.com/timvw/pane-tracker/internal/otel"
)

var log = logging.ForComponent(logging.CompIPC)

// ErrInUse is returned by Listen when another process is serving on the
// socket path.
var ErrInUse = errors.New("socket in use")

// maxLineBytes bounds a single message line.
const maxLineBytes = 64 * 1024

const staleDialTimeout = 500 * time.Millisecond

// Server accepts client connections and answers each on its own goroutine.
// Connections share nothing but the listener.
type Server struct {
	path    string
	ln      net.Listener
	Metrics *ptotel.Metrics // nil-safe

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds the socket at path. A leftover socket file from a process
// that is gone is removed first; a live one fails with ErrInUse. Any other
// kind of file at path is left alone and reported as an error.
func Listen(path string) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := reclaimStale(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return &Server{path: path, ln: ln, conns: make(map[net.Conn]struct{})}, nil
}

func reclaimStale(path string) error {
	st, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket path: %w", err)
	}
	if st.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path exists and is not a unix socket: %s", path)
	}
	if c, err := net.DialTimeout("unix", path, staleDialTimeout); err == nil {
		_ = c.Close()
		return fmt.Errorf("%s: %w", path, ErrInUse)
	}
	log.Info("removing stale socket", "path", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until ctx is done or Close is called. It
// returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn("accept failed", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.Metrics.RecordIPCConnection(ctx)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

// handle runs one connection: read a message, reply if it expects one,
// repeat. The connection ends when the client closes it or sends a message
// that expects no reply.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	w := bufio.NewWriter(conn)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := Decode(line)
		if err != nil {
			log.Warn("bad message", "error", err)
			s.Metrics.RecordIPCError(ctx)
			if werr := writeMessage(w, Errorf("%v", err)); werr != nil {
				log.Warn("write reply failed", "error", werr)
				return
			}
			continue
		}
		reply, ok := Respond(msg)
		if !ok {
			return
		}
		if err := writeMessage(w, reply); err != nil {
			log.Warn("write reply failed", "error", err)
			s.Metrics.RecordIPCError(ctx)
			return
		}
	}
	if err := sc.Err(); err != nil && !s.isClosed() {
		log.Warn("read failed", "error", err)
		s.Metrics.RecordIPCError(ctx)
	}
}

func writeMessage(w *bufio.Writer, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Flush()
}

// Close stops accepting, closes open connections, waits for their handlers
// and removes the socket file. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
