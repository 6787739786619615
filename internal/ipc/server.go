package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/anthropic/dirwatch/internal/store"
	"github.com/anthropic/dirwatch/internal/watcher"
)

const (
	// maxRecent caps the "recent" limit argument.
	maxRecent = 1000

	connTimeout  = 5 * time.Second
	drainTimeout = 5 * time.Second
)

// DaemonQuerier is the interface the IPC server uses to query daemon state.
// This avoids importing the daemon package (which would be circular).
type DaemonQuerier interface {
	Uptime() time.Duration
	RunID() string
	Watches() []watcher.WatchpointInfo
	Stats() watcher.Stats
	Stop()
}

// StoreQuerier provides data access methods needed by the IPC server.
type StoreQuerier interface {
	EventsCount() (int64, error)
	DBSizeBytes() (int64, error)
	RecentEvents(limit int) ([]store.EventRecord, error)
}

// Server is a Unix domain socket server for CLI-to-daemon communication.
type Server struct {
	daemon DaemonQuerier
	store  StoreQuerier

	listener net.Listener
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates a new IPC server. Either argument may be nil and set
// later with SetDaemon or SetStore.
func NewServer(daemon DaemonQuerier, store StoreQuerier) *Server {
	return &Server{
		daemon: daemon,
		store:  store,
	}
}

// Listen starts accepting connections on the given Unix socket path.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Listen(socketPath string, ctx context.Context) error {
	// Remove stale socket file if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}

	// Set socket permissions to owner-only.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	log.Printf("IPC server listening on %s", socketPath)

	// Close the listener when context is cancelled.
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			// Context cancelled causes listener to close.
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop stops accepting connections and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("connections still open after %s", drainTimeout)
	}
}

// SetStore updates the store reference after daemon startup.
// Accepts interface{} to satisfy daemon.StoreAware without circular imports.
// The concrete value must implement StoreQuerier.
func (s *Server) SetStore(st interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sq, ok := st.(StoreQuerier); ok {
		s.store = sq
	}
}

// SetDaemon sets the daemon reference. This is called after daemon creation
// to break the circular construction dependency (daemon needs server, server needs daemon).
func (s *Server) SetDaemon(d DaemonQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemon = d
}

// handleConn reads a single JSON request, dispatches it, and writes the response.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	req, err := readRequest(conn)
	if err != nil {
		writeError(conn, err.Error())
		return
	}

	d, st := s.refs()

	switch req.Command {
	case CmdPing:
		writeResponse(conn, Response{OK: true, Data: "pong"})

	case CmdStatus:
		writeResponse(conn, Response{OK: true, Data: buildStatus(d, st)})

	case CmdRecent:
		s.handleRecent(conn, st, req.Args)

	case CmdStop:
		writeResponse(conn, Response{OK: true, Data: "shutting down"})
		// Trigger daemon shutdown after sending response.
		if d != nil {
			d.Stop()
		}

	default:
		writeError(conn, fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (s *Server) refs() (DaemonQuerier, StoreQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daemon, s.store
}

func buildStatus(d DaemonQuerier, st StoreQuerier) StatusData {
	data := StatusData{Watches: []WatchStatus{}}

	if d != nil {
		data.Uptime = d.Uptime().Truncate(time.Second).String()
		data.RunID = d.RunID()
		for _, wp := range d.Watches() {
			data.Watches = append(data.Watches, WatchStatus{
				ID:    int(wp.ID),
				Path:  wp.Path,
				Flags: wp.Flags.String(),
			})
		}
		stats := d.Stats()
		data.Pumps = stats.Pumps
		data.Delivered = stats.Delivered
		data.Hidden = stats.Hidden
		data.Duplicates = stats.Duplicates
		data.Unreadable = stats.Unreadable
	}

	if st != nil {
		if v, err := st.DBSizeBytes(); err == nil {
			data.DBSizeBytes = v
		}
		if v, err := st.EventsCount(); err == nil {
			data.EventsCount = v
		}
	}
	return data
}

func (s *Server) handleRecent(conn net.Conn, st StoreQuerier, args map[string]string) {
	if st == nil {
		writeError(conn, "journal not open")
		return
	}

	limit := 0
	if v, ok := args["limit"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(conn, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, maxRecent)
	}

	events, err := st.RecentEvents(limit)
	if err != nil {
		writeError(conn, fmt.Sprintf("recent events: %v", err))
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	writeResponse(conn, Response{OK: true, Data: RecentData{Events: events}})
}

// readRequest decodes the single newline-terminated request on conn.
func readRequest(conn net.Conn) (Request, error) {
	var req Request
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return req, fmt.Errorf("read request: %w", err)
		}
		return req, fmt.Errorf("empty request")
	}
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.Command == "" {
		return req, fmt.Errorf("missing command")
	}
	return req, nil
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, msg string) {
	writeResponse(conn, Response{OK: false, Error: msg})
}
