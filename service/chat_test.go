package service

import (
	"fmt"
	"testing"

	"live-polling-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestChatLog_RingBuffer(t *testing.T) {
	c := NewChatLog(3)
	for i := 0; i < 5; i++ {
		c.Append(models.ChatMessage{User: "u", Text: fmt.Sprintf("m%d", i)})
	}

	msgs := c.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].Text)
	assert.Equal(t, "m3", msgs[1].Text)
	assert.Equal(t, "m4", msgs[2].Text)
}

func TestChatLog_Unbounded(t *testing.T) {
	c := NewChatLog(0)
	for i := 0; i < 10; i++ {
		c.Append(models.ChatMessage{Text: fmt.Sprintf("m%d", i)})
	}
	assert.Equal(t, 10, c.Len())
	assert.Equal(t, "m0", c.Messages()[0].Text)
}

func TestRoster_InsertionOrder(t *testing.T) {
	var r Roster
	assert.True(t, r.Add("alice"))
	assert.True(t, r.Add("bob"))
	assert.False(t, r.Add("alice"))
	assert.Equal(t, []string{"alice", "bob"}, r.List())

	assert.True(t, r.Remove("alice"))
	assert.False(t, r.Remove("alice"))
	assert.True(t, r.Add("alice"))
	assert.Equal(t, []string{"bob", "alice"}, r.List())
}

func TestPresenterRegistry(t *testing.T) {
	r := NewPresenterRegistry()
	name, token := r.Issue()
	assert.Contains(t, name, "teacher_")
	assert.NotEmpty(t, token)

	got, ok := r.Resolve(token)
	assert.True(t, ok)
	assert.Equal(t, name, got)

	_, ok = r.Resolve("bogus")
	assert.False(t, ok)
	_, ok = r.Resolve("")
	assert.False(t, ok)

	other, otherToken := r.Issue()
	assert.NotEqual(t, name, other)
	assert.NotEqual(t, token, otherToken)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, "already_voted", ReasonFor(ErrAlreadyVoted))
	assert.Equal(t, "invalid_poll", ReasonFor(fmt.Errorf("%w: empty", ErrInvalidPoll)))
	assert.Equal(t, "internal_error", ReasonFor(fmt.Errorf("boom")))
	assert.Equal(t, "", ReasonFor(nil))
}
