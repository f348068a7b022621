// Package mockserver is the in-process provider stand-in of a consumer test. It replays the
// declared responses, records every request it receives and, once stopped, verifies the
// recorded traffic against the declared interactions.
package mockserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/form3tech-oss/pact-consumer/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultHost             = "127.0.0.1"
	DefaultStartTimeout     = 5 * time.Second
	DefaultShutdownGrace    = 2 * time.Second
	DefaultUnexpectedStatus = http.StatusInternalServerError

	readinessDelay   = 10 * time.Millisecond
	defaultWaitDelay = 50 * time.Millisecond
	maxNotifyWait    = time.Second
)

var (
	// ErrPortInUse is returned by Start when the configured port is already bound.
	ErrPortInUse = errors.New("port already in use")
	// ErrNotStopped is returned by Verify unless the server was started and then stopped.
	ErrNotStopped = errors.New("mock server has not been started and stopped")
)

type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "stopped"
}

type Config struct {
	Host string
	// Port 0 binds an ephemeral port.
	Port        int
	TLS         bool
	TLSCertFile string
	TLSKeyFile  string
	// StartTimeout bounds the wait for the listener to accept connections.
	StartTimeout time.Duration
	// ShutdownGrace bounds the drain of in-flight requests; remaining connections are
	// closed afterwards.
	ShutdownGrace    time.Duration
	Matching         matching.Config
	UnexpectedStatus int
	// WaitDelay is the polling delay of WaitForRequests and WaitForInteractions.
	WaitDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.UnexpectedStatus == 0 {
		c.UnexpectedStatus = DefaultUnexpectedStatus
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultWaitDelay
	}
	return c
}

// Server serves the HTTP interactions of one pact.
type Server struct {
	config       Config
	interactions []*pact.Interaction
	signal       *captureSignal
	inflight     sync.WaitGroup

	mu       sync.Mutex
	state    State
	ran      bool
	captures []Capture
	served   map[*pact.Interaction]int
	server   *http.Server
	addr     net.Addr
	done     chan struct{}
}

func New(interactions []*pact.Interaction, config Config) *Server {
	return &Server{
		config:       config.withDefaults(),
		interactions: interactions,
		signal:       newCaptureSignal(),
		served:       map[*pact.Interaction]int{},
	}
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start binds the listener and serves requests until Stop. It returns once the listener
// accepts connections, or with an error wrapping ErrPortInUse when the port is taken.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != Stopped {
		state := s.state
		s.mu.Unlock()
		return errors.Errorf("cannot start a mock server that is %s", state)
	}
	s.state = Starting
	s.captures = nil
	s.served = map[*pact.Interaction]int{}
	s.mu.Unlock()

	listener, err := s.listen()
	if err != nil {
		s.setState(Stopped)
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Any("/*", s.handle)

	server := &http.Server{Handler: e}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("mock server stopped serving")
		}
	}()

	address := listener.Addr().String()
	ready := retryFor(func(time.Duration) bool {
		conn, err := net.DialTimeout("tcp", address, readinessDelay*10)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, readinessDelay, s.config.StartTimeout)
	if !ready {
		server.Close()
		<-done
		s.setState(Stopped)
		return errors.Errorf("mock server on %s was not ready within %s", address, s.config.StartTimeout)
	}

	s.mu.Lock()
	s.server = server
	s.addr = listener.Addr()
	s.done = done
	s.state = Running
	s.ran = true
	s.mu.Unlock()

	log.Infof("mock server listening on %s", s.URL())
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, errors.Wrapf(ErrPortInUse, "unable to listen on %s", address)
		}
		return nil, errors.Wrapf(err, "unable to listen on %s", address)
	}
	if !s.config.TLS {
		return listener, nil
	}
	config, err := tlsConfig(s.config.Host, s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		listener.Close()
		return nil, err
	}
	return tlsListener(listener, config), nil
}

// Stop drains in-flight requests within the shutdown grace period and closes the
// listener. It is a no-op unless the server is running.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	server, done, addr := s.server, s.done, s.addr
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
	defer cancel()

	var err error
	if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
		log.WithError(shutdownErr).Warn("mock server did not drain in time, closing connections")
		if closeErr := server.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "unable to close mock server")
		}
	}
	<-done
	s.inflight.Wait()

	s.setState(Stopped)
	log.Infof("mock server on %s stopped", addr)
	return err
}

// URL is the base URL of the running server.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	scheme := "http"
	if s.config.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.addr.String())
}

// Port is the bound port, 0 before the first start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Server) Interactions() []*pact.Interaction {
	return s.interactions
}

func (s *Server) handle(c echo.Context) error {
	s.inflight.Add(1)
	defer s.inflight.Done()

	req := c.Request()
	content, readErr := io.ReadAll(req.Body)
	actual := pact.RequestFromHTTP(req, content)
	capture := s.record(actual, readErr)

	logger := log.WithFields(log.Fields{
		"method":   actual.Method,
		"path":     actual.Path,
		"sequence": capture.Sequence,
	})
	if readErr != nil {
		logger.WithError(readErr).Warn("unable to read request body")
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request body. %s", readErr.Error()))
	}

	match := matching.MatchRequest(s.interactions, actual, s.config.Matching)
	if match.Kind != matching.FullMatch {
		return c.JSON(s.config.UnexpectedStatus, httpresponse.UnexpectedRequest(actual.Method, actual.Path, match.Mismatches))
	}

	s.mu.Lock()
	s.served[match.Interaction]++
	s.mu.Unlock()
	s.signal.broadcast()

	logger.Infof("serving interaction '%s'", match.Interaction.Description)
	return respond(c, match.Interaction.Response)
}

func (s *Server) record(req *pact.Request, readErr error) Capture {
	capture := Capture{ReceivedAt: time.Now(), Request: req}
	if readErr != nil {
		capture.Error = readErr.Error()
	}
	s.mu.Lock()
	capture.Sequence = len(s.captures) + 1
	s.captures = append(s.captures, capture)
	s.mu.Unlock()
	s.signal.broadcast()
	return capture
}

func respond(c echo.Context, r *pact.Response) error {
	header := c.Response().Header()
	for name, values := range r.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	if !r.Body.IsPresent() {
		return c.NoContent(r.Status)
	}
	return c.Blob(r.Status, r.ContentType(), r.Body.Content)
}

// Captures returns the requests received so far, in arrival order.
func (s *Server) Captures() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Capture(nil), s.captures...)
}

func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

// Query evaluates a jsonpath expression over the capture documents, for example
// "$[*].path" or "$[?(@.method == 'POST')].body".
func (s *Server) Query(expr string) (interface{}, error) {
	captures := s.Captures()
	docs := make([]interface{}, 0, len(captures))
	for _, c := range captures {
		docs = append(docs, c.Document())
	}
	v, err := jsonpath.Get(expr, docs)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to evaluate %q over the captured requests", expr)
	}
	return v, nil
}

// WaitForRequests blocks until count requests were received or timeout elapses, and
// reports whether they were.
func (s *Server) WaitForRequests(count int, timeout time.Duration) bool {
	return s.waitFor(func() bool { return s.RequestCount() >= count }, timeout)
}

// WaitForInteractions blocks until every HTTP interaction was served at least once.
func (s *Server) WaitForInteractions(timeout time.Duration) bool {
	return s.waitFor(s.allServed, timeout)
}

func (s *Server) allServed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.interactions {
		if !i.IsMessage() && s.served[i] == 0 {
			return false
		}
	}
	return true
}

func (s *Server) waitFor(done func() bool, timeout time.Duration) bool {
	return retryFor(func(timeLeft time.Duration) bool {
		if done() {
			return true
		}
		if timeLeft > maxNotifyWait {
			timeLeft = maxNotifyWait
		}
		if timeLeft > 0 {
			s.signal.wait(timeLeft)
		}
		return done()
	}, s.config.WaitDelay, timeout)
}
