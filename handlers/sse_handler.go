package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 15 * time.Second

// LiveStream 以SSE方式推送与WebSocket相同的事件，只读
func (h *Handler) LiveStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	sub, err := h.hub.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer h.hub.Unsubscribe(sub)

	// 设置SSE所需的HTTP头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Printf("已注册SSE客户端，客户端IP: %s", c.ClientIP())

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	notify := c.Request.Context().Done()

	for {
		select {
		case <-notify:
			log.Printf("SSE客户端已断开连接: %s", sub.ID)
			return
		case <-sub.Done():
			log.Printf("服务端关闭SSE连接: %s", sub.ID)
			return
		case payload := <-sub.Send():
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				log.Printf("写入SSE数据失败: %v", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				log.Printf("心跳发送失败，关闭连接: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
