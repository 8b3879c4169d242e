package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mandoob-dispatch-services/internal/auth"
	"mandoob-dispatch-services/internal/config"
	"mandoob-dispatch-services/internal/geofence"
	"mandoob-dispatch-services/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server pushes the dispatch feed to connected drivers: the set of
// pending orders currently inside each driver's progressive radius.
type Server struct {
	DB       *pgxpool.Pool
	Logger   *zap.Logger
	Config   config.Config
	Geofence *geofence.Engine

	mu      sync.RWMutex
	clients map[int64]map[*wsClient]struct{}
}

func New(db *pgxpool.Pool, logger *zap.Logger, cfg config.Config, gf *geofence.Engine) *Server {
	return &Server{
		DB:       db,
		Logger:   logger,
		Config:   cfg,
		Geofence: gf,
		clients:  make(map[int64]map[*wsClient]struct{}),
	}
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(value)
}

func (c *wsClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (s *Server) subscribe(driverID int64, client *wsClient) (unsubscribe func()) {
	s.mu.Lock()
	if s.clients[driverID] == nil {
		s.clients[driverID] = make(map[*wsClient]struct{})
	}
	s.clients[driverID][client] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		clients := s.clients[driverID]
		delete(clients, client)
		if len(clients) == 0 {
			delete(s.clients, driverID)
		}
		s.mu.Unlock()
	}
}

// NotifyDriver pushes an ad-hoc message to every open connection a
// driver has. Used when an order is cancelled out from under the feed.
func (s *Server) NotifyDriver(driverID int64, message any) {
	if s == nil {
		return
	}
	s.mu.RLock()
	clientsMap := s.clients[driverID]
	clients := make([]*wsClient, 0, len(clientsMap))
	for c := range clientsMap {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(message); err != nil {
			_ = c.conn.Close()
		}
	}
}

func (s *Server) loadDriver(ctx context.Context, driverID int64) (geofence.Driver, bool) {
	var d geofence.Driver
	var wallet pgtype.Numeric
	err := s.DB.QueryRow(ctx, `
		select id, name, vehicle_type, current_lat, current_lng,
		       is_online, is_active, last_activity_at, wallet_balance
		from drivers where id = $1
	`, driverID).Scan(&d.ID, &d.Name, &d.VehicleType, &d.Lat, &d.Lng,
		&d.IsOnline, &d.IsActive, &d.LastActivityAt, &wallet)
	if err != nil {
		return geofence.Driver{}, false
	}
	d.WalletBalance = utils.NumericToFloat64(wallet)
	return d, true
}

// DriverDispatchWS upgrades a driver connection and streams dispatch
// snapshots. The feed is poll-driven: every tick the available set is
// recomputed and pushed only when it changed, so the radius growth of a
// waiting order surfaces without any client action.
func (s *Server) DriverDispatchWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	token := auth.ParseBearerToken(r.URL.Query().Get("token"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	claims, err := auth.VerifyAccessToken(token, s.Config.JWTSecret)
	if err != nil || claims.Role != auth.RoleDriver || claims.DriverIDInt64() == 0 {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "unauthorized"})
		return
	}
	driverID := claims.DriverIDInt64()

	ctx := r.Context()
	client := &wsClient{conn: conn}
	unsubscribe := s.subscribe(driverID, client)
	defer unsubscribe()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(s.Config.WSDispatchPollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.Config.WSHeartbeatInterval)
	defer heartbeat.Stop()

	var lastSent []byte
	send := func() bool {
		driver, ok := s.loadDriver(ctx, driverID)
		if !ok {
			return true
		}
		if !geofence.IsRecentlyActive(driver, time.Now(), s.Config.DriverActivityWindow) {
			return true
		}
		orders, err := s.Geofence.AvailableOrdersForDriver(ctx, driver, time.Now())
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("dispatch feed query failed", zap.Int64("driverId", driverID), zap.Error(err))
			}
			return true
		}
		payload := map[string]any{"type": "dispatch.state", "data": orders}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return true
		}
		if string(encoded) == string(lastSent) {
			return true
		}
		if err := client.writeJSON(payload); err != nil {
			return false
		}
		lastSent = encoded
		return true
	}

	// Initial snapshot before the first tick.
	if !send() {
		return
	}

	for {
		select {
		case <-clientClosed:
			return
		case <-ctx.Done():
			return
		case <-poll.C:
			if !send() {
				return
			}
		case <-heartbeat.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}
