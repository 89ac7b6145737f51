package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/service"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	hub     *Hub
	session *service.Session
	conn    *websocket.Conn
	sub     *Subscriber

	// 主持人用户名，仅当连接携带有效令牌时非空
	presenter string
	limiter   *rate.Limiter
}

// readPump 从WebSocket连接读取请求并逐个处理
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading message: %v", err)
			}
			return
		}

		var msg models.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.ack("", nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			continue
		}
		if !c.limiter.Allow() {
			c.ack(msg.ID, nil, ErrRateLimited)
			continue
		}

		result, err := c.dispatch(msg)
		c.ack(msg.ID, result, err)
	}
}

// ack is queued after any broadcasts the request produced, since both
// travel through the same subscriber queue.
func (c *Client) ack(id string, data interface{}, err error) {
	payload := models.AckPayload{ID: id, Success: err == nil}
	if err == nil {
		payload.Data = data
	} else {
		payload.Reason = reasonFor(err)
		payload.Message = err.Error()
	}
	c.hub.Reply(c.sub, &models.Event{Type: models.EventAck, Data: payload})
}

// writePump 向WebSocket连接发送消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.sub.Send():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.sub.Done():
			// Hub已丢弃该连接
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
