package websocket

import (
	"encoding/json"
	"fmt"

	"live-polling-backend/models"
	"live-polling-backend/service"
)

// 客户端请求类型
const (
	OpCreatePoll      = "createPoll"
	OpSubmitVote      = "submitVote"
	OpJoinRoster      = "joinRoster"
	OpPostChatMessage = "postChatMessage"
	OpKick            = "kick"
	OpPing            = "ping"
)

// dispatch runs one inbound request to completion. Any broadcasts it causes
// are already queued when it returns.
func (c *Client) dispatch(msg models.InboundMessage) (interface{}, error) {
	switch msg.Type {
	case OpCreatePoll:
		if c.presenter == "" {
			return nil, service.ErrNotPresenter
		}
		var in models.CreatePollInput
		if err := decode(msg.Data, &in); err != nil {
			return nil, err
		}
		poll, err := c.session.CreatePoll(c.presenter, in)
		if err != nil {
			return nil, err
		}
		return map[string]string{"pollId": poll.ID}, nil

	case OpSubmitVote:
		var in models.VoteInput
		if err := decode(msg.Data, &in); err != nil {
			return nil, err
		}
		identity := in.Username
		if identity == "" {
			identity = c.hub.Identity(c.sub)
		}
		return c.session.SubmitVote(in.PollID, identity, in.Option)

	case OpJoinRoster:
		var in models.JoinRosterInput
		if err := decode(msg.Data, &in); err != nil {
			return nil, err
		}
		if in.Username == "" {
			return nil, service.ErrEmptyIdentity
		}
		c.hub.SetIdentity(c.sub, in.Username)
		return c.session.JoinRoster(in.Username)

	case OpPostChatMessage:
		var in models.ChatMessage
		if err := decode(msg.Data, &in); err != nil {
			return nil, err
		}
		if in.User == "" {
			in.User = c.hub.Identity(c.sub)
		}
		in.Timestamp = 0
		return c.session.PostChat(in), nil

	case OpKick:
		if c.presenter == "" {
			return nil, service.ErrNotPresenter
		}
		var in models.KickInput
		if err := decode(msg.Data, &in); err != nil {
			return nil, err
		}
		return c.session.Kick(in.Username)

	case OpPing:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
