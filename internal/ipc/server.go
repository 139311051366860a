package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// request is the JSON-RPC 2.0 envelope a client sends per frame.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  Params      `json:"params"`
}

// response is the JSON-RPC 2.0 envelope the server sends back.
type response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  Params      `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// Listener is the narrow seam a platform-specific transport implements:
// Accept returns the next inbound connection already peer-authenticated,
// per SPEC_FULL.md §6's named-pipe security descriptor requirement.
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
}

// Server dispatches JSON-RPC requests arriving over length-prefixed
// frames, per SPEC_FULL.md §4.7: one request in flight per connection,
// a global semaphore bounding total concurrent queries, Busy returned
// for anything beyond that rather than queued.
type Server struct {
	log      *logrus.Entry
	registry *Registry
	sem      chan struct{}

	mu       sync.Mutex
	listener Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   bool
}

// Options configures a Server.
type Options struct {
	// MaxConcurrency bounds total in-flight requests across all
	// connections; default 8 per SPEC_FULL.md §6's query.max_concurrency.
	MaxConcurrency int
}

// DefaultOptions returns the spec's default concurrency cap.
func DefaultOptions() Options { return Options{MaxConcurrency: 8} }

// NewServer builds a Server dispatching against registry.
func NewServer(registry *Registry, opts Options, log *logrus.Entry) *Server {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultOptions().MaxConcurrency
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		log:      log.WithField("component", "ipc"),
		registry: registry,
		sem:      make(chan struct{}, opts.MaxConcurrency),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections from l until ctx is cancelled or Close is
// called, handling each on its own goroutine.
func (s *Server) Serve(ctx context.Context, l Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections, closes every open one, and waits
// for their handlers to return. Closing a connection does not cancel a
// request already dispatched on it: that request runs to completion and
// its reply write fails.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// ShutdownGrace waits up to d for every connection handler started by
// Serve to return (a handler returns only once its connection is closed)
// before Close forcibly closes every connection, per the Supervisor's graceful
// shutdown sequencing in SPEC_FULL.md §4.8.
func (s *Server) ShutdownGrace(d time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		body, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, apperrors.ErrFrameTooLarge) {
				// Protocol error per SPEC_FULL.md §7: the connection stays
				// open, the client gets an error reply for this message.
				s.reply(conn, nil, err)
				continue
			}
			return // connection closed, or a genuine transport read error
		}

		var req request
		if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
			s.reply(conn, nil, fmt.Errorf("%w: %v", apperrors.ErrBadJSON, unmarshalErr))
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.reply(conn, req.ID, apperrors.ErrBusy)
			continue
		}

		result, callErr := s.registry.Dispatch(ctx, req.Method, req.Params)
		<-s.sem
		s.reply(conn, req.ID, callErr, result)
	}
}

func (s *Server) reply(conn net.Conn, id interface{}, err error, result ...Params) {
	resp := response{JSONRPC: "2.0", ID: id}
	if err != nil {
		rerr := toRPCError(err)
		resp.Error = &rerr
	} else if len(result) > 0 {
		resp.Result = result[0]
	}
	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		s.log.WithError(marshalErr).Error("marshal response")
		return
	}
	if writeErr := writeFrame(conn, body); writeErr != nil {
		s.log.WithError(writeErr).Debug("write response frame")
	}
}
