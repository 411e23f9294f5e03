// Package pagechannel is the message channel between the daemon and the
// in-page agents running in browser tabs. Each agent holds one WebSocket
// connection identified by its tab id. The daemon sends page-side requests
// (show or hide the warning) and waits for a correlated reply; agents send
// the ordinary request vocabulary (logActivity, urlChanged, ...) which is
// forwarded to the blocker service.
package pagechannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/services/dispatcher"
)

// DefaultReplyTimeout bounds how long SendMessage waits for an agent.
const DefaultReplyTimeout = 2 * time.Second

const writeWait = 5 * time.Second

// Message is the frame exchanged in both directions. Requests carry an
// action; replies to daemon requests carry only the id and the handled flag
// (or a full response); replies to agent requests carry the id and Response.
type Message struct {
	ID string `json:"id,omitempty"`
	domain.Request
	Handled  *bool            `json:"handled,omitempty"`
	Response *domain.Response `json:"response,omitempty"`
}

// RequestHandler answers agent requests. *blocker.Service satisfies it.
type RequestHandler interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

// Metrics tracks connected agents.
type Metrics interface {
	PageChannelOpened()
	PageChannelClosed()
}

// Options configures a Hub.
type Options struct {
	Requests     RequestHandler
	Metrics      Metrics
	ReplyTimeout time.Duration
	// AllowedOrigins lists origins, besides the daemon's own, that may
	// connect. Agents are extension or daemon-served pages, never sites.
	AllowedOrigins []string
	// CheckOrigin replaces the origin check entirely when set.
	CheckOrigin func(r *http.Request) bool
	Logger      log.Logger
}

// Hub tracks agent connections by tab. It is an http.Handler for the
// WebSocket endpoint and implements dispatcher.PageChannel.
type Hub struct {
	requests RequestHandler
	metrics  Metrics
	timeout  time.Duration
	upgrader websocket.Upgrader
	logger   log.Logger

	mu     sync.Mutex
	agents map[domain.TabID]*agent
}

var _ dispatcher.PageChannel = (*Hub)(nil)

// New constructs a Hub.
func New(opts Options) *Hub {
	h := &Hub{
		requests: opts.Requests,
		metrics:  opts.Metrics,
		timeout:  opts.ReplyTimeout,
		logger:   opts.Logger,
		agents:   make(map[domain.TabID]*agent),
	}
	if h.timeout <= 0 {
		h.timeout = DefaultReplyTimeout
	}
	if h.logger == nil {
		h.logger = log.NewNoopLogger()
	}
	check := opts.CheckOrigin
	if check == nil {
		allowed := opts.AllowedOrigins
		check = func(r *http.Request) bool { return urlutil.OriginAllowed(r, allowed) }
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: check}
	return h
}

// SetRequestHandler wires the service after construction; the service and
// the hub depend on each other through the dispatcher.
func (h *Hub) SetRequestHandler(r RequestHandler) {
	h.mu.Lock()
	h.requests = r
	h.mu.Unlock()
}

// Connected reports whether an agent is connected for tab.
func (h *Hub) Connected(tab domain.TabID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.agents[tab]
	return ok
}

// Tabs lists tabs with a connected agent.
func (h *Hub) Tabs() []domain.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.TabID, 0, len(h.agents))
	for tab := range h.agents {
		out = append(out, tab)
	}
	return out
}

// ServeHTTP upgrades GET /ws?tab=<id> and runs the agent read loop until the
// connection drops. A second connection for the same tab replaces the first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tab := domain.TabID(r.URL.Query().Get("tab"))
	if tab == "" {
		http.Error(w, "missing tab", http.StatusBadRequest)
		return
	}
	if !h.upgrader.CheckOrigin(r) {
		h.logger.Warn(map[string]any{"tab": string(tab), "origin": r.Header.Get("Origin")}, "page agent origin rejected")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(map[string]any{"tab": string(tab), "error": err}, "websocket upgrade failed")
		return
	}

	a := newAgent(tab, conn)
	h.register(a)
	defer h.unregister(a)

	h.logger.Debug(map[string]any{"tab": string(tab), "remote": r.RemoteAddr}, "page agent connected")
	h.readLoop(r.Context(), a)
	h.logger.Debug(map[string]any{"tab": string(tab)}, "page agent disconnected")
}

func (h *Hub) register(a *agent) {
	h.mu.Lock()
	old := h.agents[a.tab]
	h.agents[a.tab] = a
	h.mu.Unlock()
	if old != nil {
		old.close()
	}
	if h.metrics != nil {
		h.metrics.PageChannelOpened()
	}
}

func (h *Hub) unregister(a *agent) {
	h.mu.Lock()
	if h.agents[a.tab] == a {
		delete(h.agents, a.tab)
	}
	h.mu.Unlock()
	a.close()
	if h.metrics != nil {
		h.metrics.PageChannelClosed()
	}
}

func (h *Hub) handler() RequestHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

func (h *Hub) readLoop(ctx context.Context, a *agent) {
	for {
		var msg Message
		if err := a.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !a.isClosed() {
				h.logger.Debug(map[string]any{"tab": string(a.tab), "error": err}, "page agent read failed")
			}
			return
		}

		if msg.Action == "" {
			if !a.deliver(msg) {
				h.logger.Debug(map[string]any{"tab": string(a.tab), "id": msg.ID}, "unsolicited reply dropped")
			}
			continue
		}

		// Requests are answered off the read loop: answering one may send a
		// request back to this same agent and wait on its reply.
		go h.answer(ctx, a, msg)
	}
}

func (h *Hub) answer(ctx context.Context, a *agent, msg Message) {
	req := msg.Request
	req.TabID = a.tab

	var resp domain.Response
	if rh := h.handler(); rh != nil {
		resp = rh.Handle(ctx, req)
	} else {
		resp = domain.Failure(domain.ErrTextUnknownAction)
	}
	if err := a.write(Message{ID: msg.ID, Response: &resp}); err != nil {
		h.logger.Debug(map[string]any{"tab": string(a.tab), "action": req.Action, "error": err}, "reply to page agent failed")
	}
}

// SendMessage delivers req to the agent of tab and waits for its reply.
// Every failure, including a missing agent and a timeout, wraps
// domain.ErrChannelUnavailable.
func (h *Hub) SendMessage(ctx context.Context, tab domain.TabID, req domain.Request) (domain.Response, error) {
	h.mu.Lock()
	a := h.agents[tab]
	h.mu.Unlock()
	if a == nil {
		return domain.Response{}, fmt.Errorf("%w: no agent for tab %s", domain.ErrChannelUnavailable, tab)
	}

	id := uuid.NewString()
	reply := a.expect(id)
	defer a.forget(id)

	if err := a.write(Message{ID: id, Request: req}); err != nil {
		return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case msg := <-reply:
		return msg.toResponse(), nil
	case <-a.closed:
		return domain.Response{}, fmt.Errorf("%w: agent for tab %s disconnected", domain.ErrChannelUnavailable, tab)
	case <-timer.C:
		return domain.Response{}, fmt.Errorf("%w: no reply from tab %s within %s", domain.ErrChannelUnavailable, tab, h.timeout)
	case <-ctx.Done():
		return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, ctx.Err())
	}
}

// Close drops every agent connection.
func (h *Hub) Close() error {
	h.mu.Lock()
	agents := make([]*agent, 0, len(h.agents))
	for _, a := range h.agents {
		agents = append(agents, a)
	}
	h.mu.Unlock()
	for _, a := range agents {
		a.close()
	}
	return nil
}

func (m Message) toResponse() domain.Response {
	if m.Response != nil {
		return *m.Response
	}
	if m.Handled != nil {
		return domain.HandledResponse(*m.Handled)
	}
	return domain.HandledResponse(false)
}

var errAgentClosed = errors.New("agent connection closed")

type agent struct {
	tab  domain.TabID
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	closed  chan struct{}
	once    sync.Once
}

func newAgent(tab domain.TabID, conn *websocket.Conn) *agent {
	return &agent{
		tab:     tab,
		conn:    conn,
		pending: make(map[string]chan Message),
		closed:  make(chan struct{}),
	}
}

func (a *agent) write(msg Message) error {
	if a.isClosed() {
		return errAgentClosed
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteJSON(msg)
}

func (a *agent) expect(id string) <-chan Message {
	ch := make(chan Message, 1)
	a.mu.Lock()
	a.pending[id] = ch
	a.mu.Unlock()
	return ch
}

func (a *agent) forget(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

func (a *agent) deliver(msg Message) bool {
	a.mu.Lock()
	ch, ok := a.pending[msg.ID]
	delete(a.pending, msg.ID)
	a.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

func (a *agent) isClosed() bool {
	select {
	case <-a.closed:
		return true
	default:
		return false
	}
}

func (a *agent) close() {
	a.once.Do(func() {
		close(a.closed)
		a.writeMu.Lock()
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		a.writeMu.Unlock()
		_ = a.conn.Close()
	})
}
