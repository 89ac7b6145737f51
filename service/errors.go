package service

import "errors"

var (
	// 业务错误定义
	ErrInvalidPoll   = errors.New("invalid poll")
	ErrNoActivePoll  = errors.New("no active poll")
	ErrAlreadyVoted  = errors.New("you already voted")
	ErrUnknownOption = errors.New("unknown option")
	ErrEmptyIdentity = errors.New("identity must not be empty")
	ErrNotPresenter  = errors.New("presenter capability required")
)

// ReasonFor maps a session error to the stable reason code sent in acks.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPoll):
		return "invalid_poll"
	case errors.Is(err, ErrNoActivePoll):
		return "no_active_poll"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, ErrEmptyIdentity):
		return "empty_identity"
	case errors.Is(err, ErrNotPresenter):
		return "not_presenter"
	default:
		return "internal_error"
	}
}
