package ws

import (
	"net/http"
	"time"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-presence/auth"
	"github.com/tcriess/lightspeed-presence/globals"
	"github.com/tcriess/lightspeed-presence/persistence"
	"github.com/tcriess/lightspeed-presence/ratelimit"
	"github.com/tcriess/lightspeed-presence/registry"
	"github.com/tcriess/lightspeed-presence/types"
)

// Handler upgrades HTTP requests to websocket sessions and drives one
// connection's lifecycle: register, greet, pump events, tear down.
type Handler struct {
	mgr           *registry.Manager
	router        *Router
	limiter       *ratelimit.Limiter
	authenticator auth.Authenticator
	persister     persistence.Persister

	upgrader websocket.Upgrader
}

func NewHandler(mgr *registry.Manager, router *Router, limiter *ratelimit.Limiter, authenticator auth.Authenticator, persister persistence.Persister) *Handler {
	return &Handler{
		mgr:           mgr,
		router:        router,
		limiter:       limiter,
		authenticator: authenticator,
		persister:     persister,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles incoming websockets. Identity may be supplied up front
// via the token/provider query parameters; connections without one start
// anonymous and may authenticate in-band later.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userId := ""
	vals := r.URL.Query()
	if token := vals.Get("token"); token != "" {
		provider := vals.Get("provider")
		var err error
		userId, err = h.authenticator.Authenticate(r.Context(), token, provider)
		if err != nil {
			globals.AppLogger.Debug("query-string authentication failed", "error", err)
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	connId := uuid.NewString()
	client := NewClient(connId, conn, h.router)
	guestNick := ""
	if userId == "" {
		guestNick = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}

	client.reg = h.mgr.Connections.Register(client, guestNick)
	defer h.teardown(client)

	if userId != "" {
		if _, err := h.mgr.Connections.Authenticate(connId, h.router.lookupUser(userId)); err != nil {
			globals.AppLogger.Error("could not authenticate registered connection", "error", err)
		}
	}

	if err := client.Send(types.WireEventConnected, types.ConnectedPayload{
		ConnId:    connId,
		UserId:    userId,
		GuestNick: guestNick,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		globals.AppLogger.Debug("could not send greeting", "conn", connId, "error", err)
	}

	go client.WriteLoop()
	client.ReadLoop(r.Context())
}

// teardown runs the Disconnected transition: leave every room, deregister,
// release rate-limit state, record last-online. Terminal for this
// connection id.
func (h *Handler) teardown(client *Client) {
	userId := client.reg.UserId()
	h.mgr.Disconnect(client.id)
	h.limiter.RemoveConn(client.id)
	if userId != "" && h.persister != nil && !h.mgr.Connections.IsOnline(userId) {
		user := client.reg.User()
		user.LastOnline = time.Now().UTC()
		if err := h.persister.StoreUser(*user); err != nil {
			globals.AppLogger.Error("could not store user", "error", err)
		}
	}
	globals.AppLogger.Info("connection closed", "conn", client.id, "user", userId)
}
