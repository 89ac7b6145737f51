package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/service"
	broker "live-polling-backend/websocket"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnectionLost is reported when the live channel drops. It never
	// affects server state.
	ErrConnectionLost = errors.New("connection lost")
	ErrRemoved        = errors.New("removed from session")
	ErrNotConnected   = errors.New("live channel not connected")
)

// DefaultTimeout bounds every recovery query.
const DefaultTimeout = 5 * time.Second

// Role 客户端角色
type Role string

const (
	RoleParticipant Role = "participant"
	RolePresenter   Role = "presenter"
)

// Config 恢复客户端配置
type Config struct {
	BaseURL  string // 例如 http://localhost:8090
	Identity string // 参与者名称，或主持人用户名
	Token    string // 主持人能力令牌
	Role     Role
	Timeout  time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Now        func() time.Time
}

// frame is one inbound live message.
type frame struct {
	Type models.EventType `json:"type"`
	Seq  uint64           `json:"seq"`
	Data json.RawMessage  `json:"data"`
}

// Client recovers the session over REST and then follows the live channel.
type Client struct {
	cfg  Config
	http *http.Client
	view *View

	writeMu sync.Mutex
	conn    *websocket.Conn
	first   *frame

	pendingMu sync.Mutex
	pending   map[string]chan models.AckPayload
	seq       atomic.Uint64
}

// New 创建恢复客户端
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Role == "" {
		cfg.Role = RoleParticipant
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		view:    NewView(cfg.Identity, cfg.Now),
		pending: make(map[string]chan models.AckPayload),
	}
}

// View 返回客户端视图
func (c *Client) View() *View { return c.view }

// Recover fetches the snapshot, then the voted flag (participant) or the
// live tally (presenter). Failed or slow queries degrade to "no active poll"
// and "not voted".
func (c *Client) Recover(ctx context.Context) State {
	var snap *models.PollSnapshot
	var revision uint64
	var envelope struct {
		Data     *models.PollSnapshot `json:"data"`
		Revision uint64               `json:"revision"`
	}
	if err := c.getJSON(ctx, "/api/current-poll-state", nil, &envelope); err != nil {
		log.Printf("获取当前投票失败，按无投票处理: %v", err)
	} else {
		snap = envelope.Data
		revision = envelope.Revision
	}

	hasVoted := false
	var tally models.Tally
	if snap != nil && snap.IsActive {
		switch c.cfg.Role {
		case RolePresenter:
			var res struct {
				Data models.Tally `json:"data"`
			}
			if err := c.getJSON(ctx, "/api/poll-results/"+url.PathEscape(snap.PollID), nil, &res); err != nil {
				log.Printf("获取投票结果失败: %v", err)
			} else {
				tally = res.Data
			}
		default:
			var res struct {
				HasVoted bool `json:"hasVoted"`
			}
			header := http.Header{}
			if c.cfg.Identity != "" {
				header.Set("X-Student-Name", c.cfg.Identity)
			}
			if err := c.getJSON(ctx, "/api/student-voted/"+url.PathEscape(snap.PollID), header, &res); err != nil {
				log.Printf("获取投票状态失败，按未投票处理: %v", err)
			} else {
				hasVoted = res.HasVoted
			}
		}
	}
	if tally == nil && snap != nil {
		tally = make(models.Tally, len(snap.Options))
		for _, opt := range snap.Options {
			tally[opt.Text] = 0
		}
	}

	c.view.ResetAt(snap, hasVoted, tally, revision)
	return c.view.State()
}

// Resume opens the live channel and then recovers, so nothing published
// while the queries run is lost: the server queues it for the connection
// and Listen applies whatever the snapshot does not already reflect.
func (c *Client) Resume(ctx context.Context) (State, error) {
	if err := c.Connect(ctx); err != nil {
		return c.Recover(ctx), err
	}
	return c.Recover(ctx), nil
}

func (c *Client) getJSON(ctx context.Context, path string, header http.Header, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TeacherLogin asks the server for a presenter name and capability token.
func TeacherLogin(ctx context.Context, baseURL string, timeout time.Duration) (username, token string, err error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/teacher-login", nil)
	if err != nil {
		return "", "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d from teacher-login", resp.StatusCode)
	}
	var body struct {
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}
	return body.Username, body.Token, nil
}

// Connect opens the live channel and returns once the server has registered
// it, which the first frame (the connection count) proves. From then on the
// server queues events for it, so call Recover after Connect and before
// Listen; Resume does both.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.BaseURL + "/api/ws")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}

	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	first := &frame{}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	if err := conn.ReadJSON(first); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.writeMu.Lock()
	c.conn = conn
	c.first = first
	c.writeMu.Unlock()
	return nil
}

// Listen applies live events until ctx ends, the connection drops, or this
// identity is removed. onChange sees the state after every visible change.
func (c *Client) Listen(ctx context.Context, onChange func(State)) error {
	c.writeMu.Lock()
	conn, first := c.conn, c.first
	c.first = nil
	c.writeMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.failPending()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f frame
		if first != nil {
			f, first = *first, nil
		} else if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}

		if f.Type == models.EventAck {
			var ack models.AckPayload
			if err := json.Unmarshal(f.Data, &ack); err == nil {
				c.resolve(ack)
			}
			continue
		}

		changed, err := c.view.ApplyEvent(f.Type, f.Seq, f.Data)
		if err != nil {
			log.Printf("忽略无法解析的事件 %s: %v", f.Type, err)
			continue
		}
		if changed && onChange != nil {
			onChange(c.view.State())
		}
		if f.Type == models.EventRemoved && c.view.State().Removed {
			conn.Close()
			return ErrRemoved
		}
	}
}

// Call sends one request and waits for its ack. Listen must be running.
func (c *Client) Call(ctx context.Context, op string, data interface{}) (models.AckPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.AckPayload{}, err
	}
	id := strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan models.AckPayload, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	conn := c.conn
	if conn == nil {
		c.writeMu.Unlock()
		return models.AckPayload{}, ErrNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	err = conn.WriteJSON(models.InboundMessage{ID: id, Type: op, Data: raw})
	c.writeMu.Unlock()
	if err != nil {
		return models.AckPayload{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	select {
	case ack, ok := <-ch:
		if !ok {
			return models.AckPayload{}, ErrConnectionLost
		}
		return ack, nil
	case <-ctx.Done():
		return models.AckPayload{}, ctx.Err()
	}
}

func (c *Client) resolve(ack models.AckPayload) {
	c.pendingMu.Lock()
	ch, ok := c.pending[ack.ID]
	if ok {
		delete(c.pending, ack.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- ack
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Vote submits option for the recovered poll. A client that already voted
// is refused locally.
func (c *Client) Vote(ctx context.Context, option string) error {
	st := c.view.State()
	if st.Poll == nil || !st.Poll.IsActive {
		return service.ErrNoActivePoll
	}
	if st.HasVoted {
		return service.ErrAlreadyVoted
	}
	ack, err := c.Call(ctx, broker.OpSubmitVote, models.VoteInput{
		PollID:   st.Poll.PollID,
		Username: c.cfg.Identity,
		Option:   option,
	})
	if err != nil {
		return err
	}
	if !ack.Success {
		if ack.Reason == "already_voted" {
			c.view.MarkVoted()
		}
		return ackError(ack)
	}
	c.view.MarkVoted()
	return nil
}

// JoinRoster 加入聊天名单
func (c *Client) JoinRoster(ctx context.Context) error {
	return c.expectSuccess(ctx, broker.OpJoinRoster, models.JoinRosterInput{Username: c.cfg.Identity})
}

// Chat 发送聊天消息
func (c *Client) Chat(ctx context.Context, text string) error {
	return c.expectSuccess(ctx, broker.OpPostChatMessage, models.ChatMessage{User: c.cfg.Identity, Text: text})
}

// CreatePoll 主持人创建投票
func (c *Client) CreatePoll(ctx context.Context, in models.CreatePollInput) error {
	return c.expectSuccess(ctx, broker.OpCreatePoll, in)
}

// Kick 主持人移出参与者
func (c *Client) Kick(ctx context.Context, identity string) error {
	return c.expectSuccess(ctx, broker.OpKick, models.KickInput{Username: identity})
}

func (c *Client) expectSuccess(ctx context.Context, op string, data interface{}) error {
	ack, err := c.Call(ctx, op, data)
	if err != nil {
		return err
	}
	if !ack.Success {
		return ackError(ack)
	}
	return nil
}

// ackError maps a failure reason back to the matching session error.
func ackError(ack models.AckPayload) error {
	var base error
	switch ack.Reason {
	case "invalid_poll":
		base = service.ErrInvalidPoll
	case "no_active_poll":
		base = service.ErrNoActivePoll
	case "already_voted":
		base = service.ErrAlreadyVoted
	case "unknown_option":
		base = service.ErrUnknownOption
	case "empty_identity":
		base = service.ErrEmptyIdentity
	case "not_presenter":
		base = service.ErrNotPresenter
	default:
		return fmt.Errorf("request failed: %s %s", ack.Reason, ack.Message)
	}
	return base
}

// Close 关闭实时连接
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.first = nil
	return err
}
