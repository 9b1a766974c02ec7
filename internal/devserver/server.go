package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/rooms"
)

// ErrNotFound is returned for an unknown room id.
var ErrNotFound = errors.New("room not found")

const (
	roomsPath  = "/rooms"
	streamPath = "/ws/rooms/status"
)

var validate = validator.New()

type statusUpdate struct {
	NewStatus rooms.Status `json:"new_status" validate:"required,oneof=AVAILABLE GUIDING CONTRACTED"`
}

type updateResponse struct {
	Message string     `json:"message"`
	Room    rooms.Room `json:"room"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server is an in-memory room server speaking the same HTTP and websocket
// protocol roomboard consumes.
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms []rooms.Room
	index map[string]int

	connMu sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

type seedRoom struct {
	name, address string
	status        rooms.Status
}

var seedRooms = []seedRoom{
	{"清水寺マンション 201号室", "京都市東山区", rooms.StatusAvailable},
	{"比叡山ハイツ 503号室", "京都市左京区", rooms.StatusGuiding},
	{"メゾン京都駅前 101号室", "京都府下京区", rooms.StatusContracted},
}

// DefaultRooms returns three seed rooms with fresh ids.
func DefaultRooms() []rooms.Room {
	return lo.Map(seedRooms, func(s seedRoom, _ int) rooms.Room {
		return rooms.Room{ID: uuid.NewString(), Name: s.name, Address: s.address, Status: s.status}
	})
}

// New returns a server holding seed, which must pass rooms.ValidateRooms.
func New(log *zap.Logger, seed []rooms.Room) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	if err := s.store(seed); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) store(list []rooms.Room) error {
	if err := rooms.ValidateRooms(list); err != nil {
		return err
	}
	cp := append([]rooms.Room(nil), list...)
	index := make(map[string]int, len(cp))
	for i, r := range cp {
		index[r.ID] = i
	}
	s.mu.Lock()
	s.rooms = cp
	s.index = index
	s.mu.Unlock()
	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+roomsPath, s.handleList)
	mux.HandleFunc("POST "+roomsPath+"/{id}/status", s.handleSetStatus)
	mux.HandleFunc("GET "+streamPath, s.handleStream)
	return mux
}

// Rooms returns a copy of the current rooms in order.
func (s *Server) Rooms() []rooms.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]rooms.Room(nil), s.rooms...)
}

// SetStatus updates one room and broadcasts the change to every stream
// connection.
func (s *Server) SetStatus(id string, status rooms.Status) (rooms.Room, error) {
	if !status.Valid() {
		return rooms.Room{}, fmt.Errorf("set status: %w: %q", rooms.ErrUnknownStatus, status)
	}

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return rooms.Room{}, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	s.rooms[i].Status = status
	updated := s.rooms[i]
	s.mu.Unlock()

	s.Broadcast(rooms.NewStatusUpdateMessage(id, status))
	s.log.Info("status updated", zap.String("room_id", id), zap.String("status", string(status)))
	return updated, nil
}

// Replace swaps the whole room list and broadcasts it as a full array.
func (s *Server) Replace(list []rooms.Room) error {
	if err := s.store(list); err != nil {
		return fmt.Errorf("replace rooms: %w", err)
	}
	s.Broadcast(s.Rooms())
	return nil
}

// Broadcast sends v as JSON to every stream connection.
func (s *Server) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode broadcast", zap.Error(err))
		return
	}
	s.BroadcastRaw(data)
}

// BroadcastRaw sends data unchanged to every stream connection. Slow
// connections whose buffer is full are dropped.
func (s *Server) BroadcastRaw(data []byte) {
	s.connMu.Lock()
	targets := lo.Keys(s.conns)
	s.connMu.Unlock()

	for _, c := range targets {
		if !c.send(data) {
			s.log.Warn("dropping slow stream connection", zap.String("remote", c.remote))
			s.drop(c)
		}
	}
}

// Connections returns the number of open stream connections.
func (s *Server) Connections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}

// DisconnectAll closes every stream connection but keeps accepting new ones.
func (s *Server) DisconnectAll() {
	s.connMu.Lock()
	targets := lo.Keys(s.conns)
	s.connMu.Unlock()
	for _, c := range targets {
		s.drop(c)
	}
}

// Close disconnects every stream connection and refuses new ones.
func (s *Server) Close() {
	s.connMu.Lock()
	s.closed = true
	s.connMu.Unlock()
	s.DisconnectAll()
}

func (s *Server) add(c *conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) drop(c *conn) {
	s.connMu.Lock()
	_, ok := s.conns[c]
	delete(s.conns, c)
	n := len(s.conns)
	s.connMu.Unlock()
	if ok {
		c.close()
		s.log.Info("stream connection closed", zap.String("remote", c.remote), zap.Int("connections", n))
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Rooms())
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body statusUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: fmt.Sprintf("invalid body: %v", err)})
		return
	}
	if err := validate.Struct(body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: fmt.Sprintf("invalid new_status %q", body.NewStatus)})
		return
	}

	room, err := s.SetStatus(id, body.NewStatus)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: fmt.Sprintf("Room with ID %s not found", id)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Message: "Status updated successfully", Room: room})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, r.RemoteAddr)
	if !s.add(c) {
		c.close()
		return
	}
	s.log.Info("stream connection opened", zap.String("remote", c.remote), zap.Int("connections", s.Connections()))
	defer s.drop(c)

	c.readLoop(func(data []byte) {
		s.log.Debug("stream client message", zap.String("remote", c.remote), zap.Int("frame_bytes", len(data)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
