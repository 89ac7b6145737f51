package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePollInput_OptionForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"strings", `{"question":"Q","options":["Red","Blue"],"timer":30}`, []string{"Red", "Blue"}},
		{"objects", `{"question":"Q","options":[{"text":"Red"},{"text":"Blue","correct":true}],"timer":"30"}`, []string{"Red", "Blue"}},
		{"mixed", `{"question":"Q","options":["Red",{"text":"Blue"}],"timer":30}`, []string{"Red", "Blue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in CreatePollInput
			require.NoError(t, json.Unmarshal([]byte(tt.body), &in))
			require.Len(t, in.Options, len(tt.want))
			for i, text := range tt.want {
				assert.Equal(t, text, in.Options[i].Text)
			}
			assert.Equal(t, TimerSeconds(30), in.Timer)
		})
	}
}

func TestOption_CorrectFlagKept(t *testing.T) {
	var opt Option
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"text":"Blue","correct":false}`), &opt))
	assert.Equal(t, 2, opt.Index)
	require.NotNil(t, opt.Correct)
	assert.False(t, *opt.Correct)

	assert.Error(t, json.Unmarshal([]byte(`42`), &opt))
}

func TestTimerSeconds_Invalid(t *testing.T) {
	var in CreatePollInput
	assert.Error(t, json.Unmarshal([]byte(`{"timer":"soon"}`), &in))
}

func TestPoll_TimeLeft(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &Poll{TimerSeconds: 10, StartedAt: start}
	assert.Equal(t, 10, p.TimeLeft(start.Add(-time.Second)))
	assert.Equal(t, 7, p.TimeLeft(start.Add(3500*time.Millisecond)))
	assert.Equal(t, 0, p.TimeLeft(start.Add(time.Minute)))
}
