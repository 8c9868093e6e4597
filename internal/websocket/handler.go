package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventHandler runs a typed event sent by a connected client. The
// client id and room id identify the sender.
type EventHandler func(ctx context.Context, clientID, roomID string, event InboundEvent)

// PresenceListener is told when clients join and leave rooms. The
// agent presence flow hangs off this.
type PresenceListener interface {
	ClientJoined(roomID, clientID string)
	ClientLeft(roomID, clientID string)
}

type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	onEvent     EventHandler
	presence    PresenceListener
}

func NewHandler(h *Hub, redisClient *redis.Client) *Handler {
	return &Handler{
		hub:         h,
		redisClient: redisClient,
	}
}

func (h *Handler) SetEventHandler(handler EventHandler) {
	h.onEvent = handler
}

func (h *Handler) SetPresenceListener(listener PresenceListener) {
	h.presence = listener
}

// subscribeToRoomChannel mirrors the room's Redis channel into the
// local hub so every server instance delivers the same events.
func (h *Handler) subscribeToRoomChannel(roomID string) {
	if h.redisClient == nil {
		return
	}
	if !h.hub.HasRoom(roomID) {
		log.Printf("Room %s not found for subscription", roomID)
		return
	}

	subscriber := h.redisClient.Subscribe(context.Background(), roomID)
	defer subscriber.Close()

	ch := subscriber.Channel()
	for msg := range ch {
		h.hub.Broadcast <- &WSMessage{
			Content:   msg.Payload,
			RoomID:    roomID,
			Timestamp: time.Now().Unix(),
		}
	}
	log.Printf("Unsubscribed from Redis channel: %s", roomID)
}

func (h *Handler) CreateRoom(id string) {
	if !h.hub.AddRoom(id) {
		return
	}
	setRooms(h.hub.RoomCount())

	go h.subscribeToRoomChannel(id)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomId, clientId string) {
	h.CreateRoom(roomId)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:     conn,
		Message:  make(chan *WSMessage, 10),
		ID:       clientId,
		RoomID:   roomId,
		done:     make(chan struct{}),
		isClosed: false,
	}

	h.hub.Register <- cl

	if h.presence != nil {
		h.presence.ClientJoined(roomId, clientId)
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := make([]RoomRes, 0)
	for _, id := range h.hub.RoomIDs() {
		rooms = append(rooms, RoomRes{ID: id})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}

// NotifyRoom delivers a payload to the local room without going through
// Redis. Command replies use it to answer the requesting socket's room.
func (h *Handler) NotifyRoom(roomID string, payload []byte) {
	h.hub.Broadcast <- &WSMessage{
		Content:   string(payload),
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
}

func (h *Handler) dispatch(cl *WSClient, event InboundEvent) {
	if h.onEvent == nil {
		return
	}
	h.onEvent(context.Background(), cl.ID, cl.RoomID, event)
}

func (h *Handler) clientLeft(cl *WSClient) {
	if h.presence != nil {
		h.presence.ClientLeft(cl.RoomID, cl.ID)
	}
}
