package mq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"live-polling-backend/models"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archivedPoll() *models.ArchivedPoll {
	return &models.ArchivedPoll{
		ID:           "poll_1",
		Question:     "Favorite color?",
		Owner:        "teacher_42",
		TimerSeconds: 30,
		Options: []models.ArchivedOption{
			{ID: "opt_poll_1_0", Text: "Red", Votes: 2},
			{ID: "opt_poll_1_1", Text: "Blue", Votes: 1},
		},
		ArchivedAt: time.UnixMilli(1700000000000),
	}
}

func TestNewArchiveMessage(t *testing.T) {
	msg := NewArchiveMessage(archivedPoll())
	assert.Equal(t, "poll_1", msg.PollID)
	assert.Equal(t, "poll_1_archived", msg.MessageID)
	assert.Equal(t, 3, msg.TotalVotes)
	assert.Equal(t, int64(1700000000000), msg.ArchivedAt)
	assert.Len(t, msg.Options, 2)
}

type fakeProducer struct {
	sent     []*primitive.Message
	err      error
	shutdown bool
}

func (f *fakeProducer) SendSync(_ context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msgs...)
	return &primitive.SendResult{Status: primitive.SendOK, MsgID: "m1"}, nil
}

func (f *fakeProducer) Shutdown() error {
	f.shutdown = true
	return nil
}

func TestRocketNotifier_Send(t *testing.T) {
	p := &fakeProducer{}
	n := newRocketNotifier(p, "")

	require.NoError(t, n.NotifyArchived(context.Background(), archivedPoll()))
	require.Len(t, p.sent, 1)
	assert.Equal(t, DefaultTopic, p.sent[0].Topic)
	assert.Equal(t, "archived", p.sent[0].GetTags())

	var msg ArchiveMessage
	require.NoError(t, json.Unmarshal(p.sent[0].Body, &msg))
	assert.Equal(t, "teacher_42", msg.Owner)

	require.NoError(t, n.Close())
	assert.True(t, p.shutdown)
}

func TestRocketNotifier_SendError(t *testing.T) {
	n := newRocketNotifier(&fakeProducer{err: errors.New("broker down")}, "polls")
	assert.Error(t, n.NotifyArchived(context.Background(), archivedPoll()))
}

func TestNewRocketNotifier_NoNameServers(t *testing.T) {
	_, err := NewRocketNotifier(RocketConfig{})
	assert.Error(t, err)
}

func TestRedisNotifier_Publish(t *testing.T) {
	addr := os.Getenv("POLL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLL_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()

	channel := "polls.archived." + t.Name()
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, channel)
	require.NoError(t, n.NotifyArchived(ctx, archivedPoll()))

	select {
	case m := <-sub.Channel():
		var msg ArchiveMessage
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
		assert.Equal(t, "poll_1", msg.PollID)
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNewNotifier(t *testing.T) {
	n, err := NewNotifier(Options{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)
	assert.NoError(t, n.NotifyArchived(context.Background(), archivedPoll()))

	n, err = NewNotifier(Options{})
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)

	_, err = NewNotifier(Options{Driver: "redis"})
	assert.Error(t, err)

	_, err = NewNotifier(Options{Driver: "kafka"})
	assert.Error(t, err)

	n, err = NewNotifier(Options{Driver: "redis", Redis: redis.NewClient(&redis.Options{Addr: "localhost:0"}), Topic: "t"})
	require.NoError(t, err)
	assert.IsType(t, &RedisNotifier{}, n)
}
