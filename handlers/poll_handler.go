package handlers

import (
	"log"
	"net/http"
	"strings"

	"live-polling-backend/models"

	"github.com/gin-gonic/gin"
)

// AnonymousIdentity is used when X-Student-Name is absent.
const AnonymousIdentity = "anonymous"

// TeacherLogin 生成主持人用户名和能力令牌
func (h *Handler) TeacherLogin(c *gin.Context) {
	username, token := h.presenters.Issue()
	log.Printf("主持人登录: %s", username)
	c.JSON(http.StatusOK, gin.H{"username": username, "token": token})
}

// CurrentPollState 返回当前投票快照，没有投票时 data 为 null。
// revision 是快照时刻最后一个会话事件的序号
func (h *Handler) CurrentPollState(c *gin.Context) {
	snap, revision := h.session.SnapshotAt()
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil, "revision": revision})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap, "revision": revision})
}

// StudentVoted reports whether the caller's identity already voted on :pollId.
func (h *Handler) StudentVoted(c *gin.Context) {
	identity := strings.TrimSpace(c.GetHeader("X-Student-Name"))
	if identity == "" {
		identity = AnonymousIdentity
	}
	c.JSON(http.StatusOK, gin.H{"hasVoted": h.session.HasVoted(c.Param("pollId"), identity)})
}

// PollResults 返回实时计票，非当前投票返回空映射
func (h *Handler) PollResults(c *gin.Context) {
	tally := h.session.Tally(c.Param("pollId"))
	if tally == nil {
		tally = models.Tally{}
	}
	c.JSON(http.StatusOK, gin.H{"data": tally})
}

// PollHistory 返回主持人的历史投票
func (h *Handler) PollHistory(c *gin.Context) {
	polls, err := h.session.History(c.Request.Context(), c.Param("username"))
	if err != nil {
		log.Printf("查询历史投票失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取历史投票失败"})
		return
	}
	if polls == nil {
		polls = []models.ArchivedPoll{}
	}
	c.JSON(http.StatusOK, gin.H{"data": polls})
}

// ChatMessages 返回保留的聊天记录
func (h *Handler) ChatMessages(c *gin.Context) {
	msgs := h.session.ChatMessages()
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// Roster 返回当前参与者名单
func (h *Handler) Roster(c *gin.Context) {
	list := h.session.Roster()
	if list == nil {
		list = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}
