// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

// Package tarpit accepts TCP connections and then does nothing with them.
// Accepted connections are never read from and never written to; they stay
// open until a hold timeout expires or the server is shut down. This keeps
// the client (typically a proxy under test) blocked waiting for a response.
package tarpit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/papercutsoftware/deadend/lib/logging"
)

const (
	DefaultBacklog = 5

	ReasonTimeout  = "timeout"
	ReasonShutdown = "shutdown"

	maxAcceptBackoff = time.Second
)

type AcceptMode string

const (
	// AcceptAll holds every connection that arrives.
	AcceptAll AcceptMode = "all"
	// AcceptOnce holds the first connection and never calls accept again.
	// Later clients complete the TCP handshake into the kernel backlog and
	// wait there.
	AcceptOnce AcceptMode = "once"
)

// ParseAcceptMode maps a config string to a mode. Blank means AcceptAll.
func ParseAcceptMode(s string) (AcceptMode, error) {
	switch AcceptMode(s) {
	case "", AcceptAll:
		return AcceptAll, nil
	case AcceptOnce:
		return AcceptOnce, nil
	}
	return "", fmt.Errorf("unknown accept mode %q (expected %q or %q)", s, AcceptAll, AcceptOnce)
}

// Observer is notified as connections come and go.
type Observer interface {
	Accepted(listener string)
	Released(listener string, reason string)
}

type nopObserver struct{}

func (nopObserver) Accepted(string)         {}
func (nopObserver) Released(string, string) {}

type Config struct {
	Name           string
	Address        string
	Backlog        int
	Mode           AcceptMode
	MaxConnections int
	HoldTimeout    time.Duration
	AcceptRate     float64
	AcceptBurst    int
	Logger         *log.Logger
	Observer       Observer
}

type Stats struct {
	Name     string
	Address  string
	Held     int
	Accepted uint64
	Released uint64
}

type heldConn struct {
	conn  net.Conn
	since time.Time
	timer *time.Timer
}

type Server struct {
	conf    Config
	ln      net.Listener
	limiter *rate.Limiter
	slots   chan struct{}

	mu     sync.Mutex
	held   map[uint64]*heldConn
	nextID uint64

	accepted atomic.Uint64
	released atomic.Uint64

	quit      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func setupConfigDefaults(c *Config) {
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.Mode == "" {
		c.Mode = AcceptAll
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = 1
	}
	if c.Logger == nil {
		c.Logger = logging.NewNilLogger()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Name == "" {
		c.Name = c.Address
	}
}

// Listen binds the configured address and returns a server ready to Serve.
func Listen(c Config) (*Server, error) {
	setupConfigDefaults(&c)
	if _, err := ParseAcceptMode(string(c.Mode)); err != nil {
		return nil, err
	}
	if c.MaxConnections < 0 {
		return nil, fmt.Errorf("%s: negative MaxConnections %d", c.Name, c.MaxConnections)
	}

	ln, err := listen(c.Address, c.Backlog, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen on %s: %w", c.Name, c.Address, err)
	}

	s := &Server{
		conf: c,
		ln:   ln,
		held: make(map[uint64]*heldConn),
		quit: make(chan struct{}),
	}
	if c.MaxConnections > 0 {
		s.slots = make(chan struct{}, c.MaxConnections)
	}
	if c.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(c.AcceptRate), c.AcceptBurst)
	}
	c.Logger.Printf("%s: Listening on %s (backlog: %d, mode: %s)", c.Name, ln.Addr(), c.Backlog, c.Mode)
	return s, nil
}

func (s *Server) Name() string {
	return s.conf.Name
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts and holds connections until ctx is cancelled or Close is
// called. Every held connection is released before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.quit:
			cancel()
		}
	}()

	var backoff time.Duration
	for {
		if !s.acquireSlot(ctx) {
			return nil
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.releaseSlot()
				return nil
			}
		}

		conn, err := s.ln.Accept()
		if err != nil {
			s.releaseSlot()
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// EMFILE and friends are expected while clients are exhausting
			// us. Keep going.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.conf.Logger.Printf("%s: WARNING: Accept error: %v; retrying in %v", s.conf.Name, err, backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0
		s.hold(conn)

		if s.conf.Mode == AcceptOnce {
			s.conf.Logger.Printf("%s: Single connection held. No longer accepting.", s.conf.Name)
			<-ctx.Done()
			return nil
		}
	}
}

func (s *Server) acquireSlot(ctx context.Context) bool {
	if s.slots == nil {
		return !s.isClosed()
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.slots == nil {
		return
	}
	select {
	case <-s.slots:
	default:
	}
}

func (s *Server) hold(conn net.Conn) {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		conn.Close()
		s.releaseSlot()
		return
	}
	s.nextID++
	id := s.nextID
	hc := &heldConn{conn: conn, since: time.Now()}
	s.held[id] = hc
	if s.conf.HoldTimeout > 0 {
		hc.timer = time.AfterFunc(s.conf.HoldTimeout, func() {
			defer s.recoverTimer()
			s.release(id, ReasonTimeout)
		})
	}
	held := len(s.held)
	s.mu.Unlock()

	s.accepted.Add(1)
	s.conf.Observer.Accepted(s.conf.Name)
	s.conf.Logger.Printf("%s: Holding connection from %s (held: %d)", s.conf.Name, conn.RemoteAddr(), held)
}

func (s *Server) release(id uint64, reason string) error {
	s.mu.Lock()
	hc, ok := s.held[id]
	if ok {
		delete(s.held, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if hc.timer != nil {
		hc.timer.Stop()
	}
	err := hc.conn.Close()
	s.releaseSlot()
	s.released.Add(1)
	s.conf.Observer.Released(s.conf.Name, reason)
	if reason == ReasonTimeout {
		s.conf.Logger.Printf("%s: Released connection from %s after %v", s.conf.Name,
			hc.conn.RemoteAddr(), time.Since(hc.since).Round(time.Millisecond))
	}
	return err
}

// recoverTimer keeps a panic in a timeout release (usually the Observer)
// from taking the process down. Timer goroutines are not covered by the
// caller's crash handling.
func (s *Server) recoverTimer() {
	if r := recover(); r != nil {
		s.conf.Logger.Printf("%s: ERROR: Hold timeout release panicked: %v\n%s", s.conf.Name, r, debug.Stack())
	}
}

func (s *Server) isClosed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// Close stops listening and releases all held connections. Safe to call
// more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)

		var result *multierror.Error
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}

		s.mu.Lock()
		ids := make([]uint64, 0, len(s.held))
		for id := range s.held {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		for _, id := range ids {
			if err := s.release(id, ReasonShutdown); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if len(ids) > 0 {
			s.conf.Logger.Printf("%s: Released %d held connections", s.conf.Name, len(ids))
		}
		s.closeErr = result.ErrorOrNil()
	})
	return s.closeErr
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	held := len(s.held)
	s.mu.Unlock()
	return Stats{
		Name:     s.conf.Name,
		Address:  s.ln.Addr().String(),
		Held:     held,
		Accepted: s.accepted.Load(),
		Released: s.released.Load(),
	}
}
