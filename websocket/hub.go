package websocket

import (
	"log"
	"sync"

	"live-polling-backend/models"

	"github.com/google/uuid"
)

// Subscriber is one live event consumer: a websocket connection or an SSE stream.
// Its send queue is never closed; Done is closed once the hub drops it.
type Subscriber struct {
	ID string

	identity  string // 由 joinRoster 设置，受 Hub.mu 保护
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Send 出站消息队列
func (s *Subscriber) Send() <-chan []byte { return s.send }

// Done is closed when the subscriber has been dropped.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// offer enqueues without blocking and reports whether the queue had room.
func (s *Subscriber) offer(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// HubConfig 广播中心配置
type HubConfig struct {
	SendBuffer     int
	MaxConnections int
}

// Hub is the publish/subscribe registry of live subscribers. It implements
// service.Publisher: publishing takes a snapshot of the current subscribers
// and never blocks on a slow one; a subscriber whose queue is full is dropped.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}

	sendBuffer     int
	maxConnections int
	countMu        sync.Mutex
}

// NewHub 创建一个新的Hub
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		subscribers:    make(map[*Subscriber]struct{}),
		sendBuffer:     cfg.SendBuffer,
		maxConnections: cfg.MaxConnections,
	}
}

// Subscribe registers a new subscriber and broadcasts the new connection count.
func (h *Hub) Subscribe() (*Subscriber, error) {
	sub := &Subscriber{
		ID:   uuid.NewString(),
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.maxConnections > 0 && len(h.subscribers) >= h.maxConnections {
		h.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	h.subscribers[sub] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()

	log.Printf("Client registered, total clients: %d", total)
	h.broadcastCount()
	return sub, nil
}

// Unsubscribe drops the subscriber; calling it twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if !h.remove(sub) {
		return
	}
	log.Printf("Client unregistered, total clients: %d", h.Count())
	h.broadcastCount()
}

func (h *Hub) remove(sub *Subscriber) bool {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
	return ok
}

// SetIdentity binds a participant identity to a subscriber for targeted sends.
func (h *Hub) SetIdentity(sub *Subscriber, identity string) {
	h.mu.Lock()
	sub.identity = identity
	h.mu.Unlock()
}

// Identity 返回订阅者绑定的身份
func (h *Hub) Identity(sub *Subscriber) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sub.identity
}

// Count 当前订阅者数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast 向所有订阅者广播事件
func (h *Hub) Broadcast(evt *models.Event) {
	payload, err := evt.ToJSON()
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}
	if h.deliver(h.snapshot(""), payload) > 0 {
		h.broadcastCount()
	}
}

// SendTo delivers evt to every subscriber bound to identity.
func (h *Hub) SendTo(identity string, evt *models.Event) {
	if identity == "" {
		return
	}
	payload, err := evt.ToJSON()
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}
	if h.deliver(h.snapshot(identity), payload) > 0 {
		h.broadcastCount()
	}
}

// Reply 只发给单个订阅者
func (h *Hub) Reply(sub *Subscriber, evt *models.Event) {
	payload, err := evt.ToJSON()
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}
	if h.deliver([]*Subscriber{sub}, payload) > 0 {
		h.broadcastCount()
	}
}

func (h *Hub) snapshot(identity string) []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		if identity != "" && sub.identity != identity {
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}

// deliver returns how many subscribers were dropped for being too slow.
func (h *Hub) deliver(subs []*Subscriber, payload []byte) int {
	dropped := 0
	for _, sub := range subs {
		if sub.offer(payload) {
			continue
		}
		// 发送缓冲区已满，断开连接
		if h.remove(sub) {
			log.Printf("Dropping slow client %s", sub.ID)
			dropped++
		}
	}
	return dropped
}

// broadcastCount drops slow subscribers without announcing the drop again.
func (h *Hub) broadcastCount() {
	h.countMu.Lock()
	defer h.countMu.Unlock()
	evt := &models.Event{
		Type: models.EventLiveConnectionCount,
		Data: models.ConnectionCountPayload{Count: h.Count()},
	}
	payload, err := evt.ToJSON()
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}
	h.deliver(h.snapshot(""), payload)
}

// CloseAll drops every subscriber, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*Subscriber]struct{})
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}
