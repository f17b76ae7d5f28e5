// Package live keeps open console pages fresh. Each browser view subscribes
// over SockJS; the adaptive poller invalidates the view's cached queries on
// every tick and tells the browser to reload them.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/igm/sockjs-go/sockjs"
	"github.com/jonboulle/clockwork"

	"github.com/gestionrh/gestionrh-console/internal/authz"
	"github.com/gestionrh/gestionrh-console/internal/poller"
	"github.com/gestionrh/gestionrh-console/internal/shared"
)

// Prefix is the mount point of the SockJS endpoint.
const Prefix = "/live"

const minInterval = 5 * time.Second

// Close codes sent to the browser.
const (
	CloseUnauthenticated = 4001
	CloseSessionError    = 4002
)

// Conn is the part of a SockJS session the handler uses.
type Conn interface {
	Recv() (string, error)
	Send(string) error
	Close(status uint32, reason string) error
}

// Message is sent by the browser.
type Message struct {
	Action     string   `json:"action"`
	View       string   `json:"view"`
	Keys       []string `json:"keys"`
	IntervalMS int64    `json:"interval_ms"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// Event is pushed to the browser.
type Event struct {
	Type    string   `json:"type"`
	View    string   `json:"view,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Options configure the live handler.
type Options struct {
	Sessions     *shared.SessionManager
	Invalidator  poller.Invalidator
	BaseInterval time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
	// GlobalKeys are the shared cache keys any user may poll.
	GlobalKeys []string
	// Connections tracks open connections when set.
	Connections Gauge
}

// Gauge is satisfied by prometheus.Gauge.
type Gauge interface {
	Inc()
	Dec()
}

// Handler serves the SockJS endpoint.
type Handler struct {
	opts   Options
	sockjs http.Handler
}

// NewHandler constructs the live handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = poller.DefaultBaseInterval
	}
	h := &Handler{opts: opts}
	h.sockjs = sockjs.NewHandler(Prefix, sockjs.DefaultOptions, h.handleSession)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.sockjs.ServeHTTP(w, r)
}

func (h *Handler) handleSession(session sockjs.Session) {
	sess, err := h.session(session.Request())
	if err != nil {
		h.opts.Logger.Warn("live session load", slog.Any("error", err))
		_ = session.Close(CloseSessionError, "session unavailable")
		return
	}
	user := sess.User()
	if user == nil {
		_ = session.Close(CloseUnauthenticated, "unauthenticated")
		return
	}
	h.Serve(context.Background(), user, session)
}

// session returns the console session bound to the handshake request.
func (h *Handler) session(req *http.Request) (*shared.Session, error) {
	if req == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if sess := shared.SessionFromContext(req.Context()); sess != nil {
		return sess, nil
	}
	if h.opts.Sessions == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return h.opts.Sessions.Load(req.Context(), req)
}

// Serve runs the subscription protocol for one connection until it closes.
func (h *Handler) Serve(ctx context.Context, user *authz.User, conn Conn) {
	if h.opts.Connections != nil {
		h.opts.Connections.Inc()
		defer h.opts.Connections.Dec()
	}
	c := &connection{handler: h, user: user, conn: conn, views: make(map[string]*poller.Subscription)}
	c.scheduler = poller.New(poller.InvalidatorFunc(c.invalidate),
		poller.WithClock(h.opts.Clock),
		poller.WithLogger(h.opts.Logger.With(slog.String("user", user.Email))))
	defer c.scheduler.StopAll()

	for {
		raw, err := conn.Recv()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			c.send(Event{Type: "error", Message: "message invalide"})
			continue
		}
		c.handle(ctx, msg)
	}
}

type connection struct {
	handler   *Handler
	user      *authz.User
	conn      Conn
	scheduler *poller.Scheduler

	mu    sync.Mutex
	views map[string]*poller.Subscription

	sendMu sync.Mutex
}

func (c *connection) handle(_ context.Context, msg Message) {
	switch msg.Action {
	case "subscribe":
		keys := c.handler.AllowedKeys(c.user, msg.Keys)
		if msg.View == "" || len(keys) == 0 {
			c.send(Event{Type: "error", View: msg.View, Message: "abonnement refusé"})
			return
		}
		enabled := msg.Enabled == nil || *msg.Enabled
		interval := c.handler.interval(msg.IntervalMS)
		c.mu.Lock()
		sub, ok := c.views[msg.View]
		if !ok {
			c.views[msg.View] = c.scheduler.Start(keys, interval, enabled)
		}
		c.mu.Unlock()
		if ok {
			sub.Reconfigure(keys, interval, enabled)
		}
		c.send(Event{Type: "subscribed", View: msg.View, Keys: keys})
	case "unsubscribe":
		c.mu.Lock()
		sub, ok := c.views[msg.View]
		delete(c.views, msg.View)
		c.mu.Unlock()
		if ok {
			sub.Stop()
		}
	default:
		c.send(Event{Type: "error", Message: "action inconnue"})
	}
}

func (c *connection) invalidate(ctx context.Context, keys ...string) error {
	err := c.handler.opts.Invalidator.Invalidate(ctx, keys...)
	if err != nil {
		c.handler.opts.Logger.Warn("live invalidate", slog.Any("keys", keys), slog.Any("error", err))
	}
	c.send(Event{Type: "refresh", Keys: keys})
	return err
}

func (c *connection) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.conn.Send(string(payload))
}

func (h *Handler) interval(ms int64) time.Duration {
	if ms <= 0 {
		return h.opts.BaseInterval
	}
	return max(time.Duration(ms)*time.Millisecond, minInterval)
}

// AllowedKeys keeps the keys u may poll: keys scoped to u and the shared
// reference data keys.
func (h *Handler) AllowedKeys(u *authz.User, keys []string) []string {
	if u == nil {
		return nil
	}
	suffix := ":u=" + u.Email
	var out []string
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if strings.HasSuffix(key, suffix) && strings.Count(key, ":u=") == 1 {
			out = append(out, key)
			continue
		}
		if strings.Contains(key, ":u=") {
			continue
		}
		for _, global := range h.opts.GlobalKeys {
			if key == global || strings.HasPrefix(key, global+":") {
				out = append(out, key)
				break
			}
		}
	}
	return out
}
