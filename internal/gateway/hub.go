package gateway

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
)

// Envelope é o formato de cada mensagem enviada aos assinantes.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// subscriber é uma conexão WebSocket com fila própria de saída.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan Envelope
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// Hub distribui eventos repostate:* para todas as conexões abertas.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     isLoopbackOrigin,
		},
		subscribers: make(map[string]*subscriber),
	}
}

// Publish tem a assinatura de repocontext.EmitFunc. Um assinante com a fila
// cheia é desconectado; ao reconectar ele relê o snapshot.
func (h *Hub) Publish(eventName string, data interface{}) {
	msg := Envelope{Event: eventName, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		select {
		case sub.send <- msg:
		default:
			log.Printf("[Gateway] subscriber %s is too slow, dropping connection", id)
			delete(h.subscribers, id)
			sub.close()
		}
	}
}

// Count retorna o número de assinantes conectados.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HandleWebSocket trata GET /ws/events. Mensagens recebidas do cliente são
// descartadas; a leitura só existe para detectar o fechamento.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] upgrade error: %v", err)
		return
	}

	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Envelope, subscriberBuffer),
	}
	h.register(sub)
	defer h.unregister(sub)

	log.Printf("[Gateway] subscriber %s connected", sub.id)
	go h.writeLoop(sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Gateway] read error from %s: %v", sub.id, err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(msg); err != nil {
			log.Printf("[Gateway] write error to %s: %v", sub.id, err)
			return
		}
	}
	_ = sub.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.id] = sub
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	if current, ok := h.subscribers[sub.id]; ok && current == sub {
		delete(h.subscribers, sub.id)
	}
	h.mu.Unlock()

	sub.close()
	log.Printf("[Gateway] subscriber %s disconnected", sub.id)
}

// CloseAll desconecta todos os assinantes.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.close()
	}
}
