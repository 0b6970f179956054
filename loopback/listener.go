// Package loopback implements the single-use local HTTP endpoint that captures
// the provider's redirect during an authorization code login.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	SuccessMessage = "Authentication successful. You can close this window."
	FailureMessage = "Authentication failed. Return to the application for details."

	defaultShutdownTimeout = 5 * time.Second
)

// State is the listener's lifecycle position.
type State int

const (
	Idle State = iota
	Listening
	Completed
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CodeHandler receives the authorization code and the echoed state. It runs on
// the listener's request goroutine and its error decides Completed vs Failed.
type CodeHandler func(ctx context.Context, code, state string) error

// FailureHandler is told about redirects that carried an error instead of a code.
type FailureHandler func(err error)

// Listener is a one-shot redirect endpoint. A Listener cannot be restarted
// once stopped; create a new one per login attempt.
type Listener struct {
	mu        sync.Mutex
	state     State
	claimed   bool
	onCode    CodeHandler
	onFailure FailureHandler
	srv       *http.Server
	ln        net.Listener

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}

	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithFailureHandler registers a hook for provider-side denials.
func WithFailureHandler(fn FailureHandler) Option {
	return func(l *Listener) {
		l.onFailure = fn
	}
}

// WithShutdownTimeout bounds how long Stop waits for an in-flight response.
func WithShutdownTimeout(d time.Duration) Option {
	return func(l *Listener) {
		l.shutdownTimeout = d
	}
}

// New creates an idle listener.
func New(opts ...Option) *Listener {
	l := &Listener{
		state:           Idle,
		done:            make(chan struct{}),
		shutdownTimeout: defaultShutdownTimeout,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds addr and serves on a background goroutine. A bind failure is
// returned as *BindError and is never retried.
func (l *Listener) Start(addr string, onCode CodeHandler) error {
	if onCode == nil {
		panic("loopback: nil CodeHandler")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return ErrNotIdle
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	r := mux.NewRouter()
	r.HandleFunc("/", l.handleRedirect).Methods(http.MethodGet)

	l.ln = ln
	l.onCode = onCode
	l.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.state = Listening

	go l.serve(l.srv, ln)

	l.logger.Debug().Str("addr", ln.Addr().String()).Msg("loopback listener started")
	return nil
}

func (l *Listener) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error().Err(err).Msg("loopback listener serve failed")
		l.setState(Failed)
		go l.Stop()
	}
}

// Addr returns the bound address, or "" before Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Port returns the bound TCP port, or 0 before Start.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return 0
	}
	if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the listener has stopped and released its port.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Stop closes the listener. It is idempotent, safe in every state and from any
// goroutine, and all callers block until the port is released.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		srv := l.srv
		l.state = Stopped
		l.mu.Unlock()

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				// The handler outlived the timeout; drop its connection.
				if cerr := srv.Close(); cerr != nil && !errors.Is(cerr, http.ErrServerClosed) {
					l.stopErr = fmt.Errorf("loopback listener close: %w", cerr)
				}
			}
			l.logger.Debug().Msg("loopback listener stopped")
		}
		close(l.done)
	})
	return l.stopErr
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Stopped {
		l.state = s
	}
}

func (l *Listener) handleRedirect(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	errorParam := query.Get("error")

	if code == "" && errorParam == "" {
		http.Error(w, "Bad Request: No code parameter in request", http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	if l.claimed || l.state != Listening {
		l.mu.Unlock()
		http.Error(w, ErrCompleted.Error(), http.StatusServiceUnavailable)
		return
	}
	l.claimed = true
	l.mu.Unlock()

	// Every path past the claim ends the listener. Shutdown waits for this
	// handler to return, so the response is flushed before the socket closes.
	defer func() { go l.Stop() }()

	if errorParam != "" {
		denied := &DeniedError{Code: errorParam, Description: query.Get("error_description")}
		l.setState(Failed)
		l.logger.Warn().Str("error", errorParam).Msg("provider denied authorization")
		if l.onFailure != nil {
			l.onFailure(denied)
		}
		http.Error(w, fmt.Sprintf("Authorization failed: %s", denied.Code), http.StatusBadRequest)
		return
	}

	if err := l.onCode(r.Context(), code, query.Get("state")); err != nil {
		l.setState(Failed)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(FailureMessage))
		return
	}

	l.setState(Completed)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(SuccessMessage))
}
