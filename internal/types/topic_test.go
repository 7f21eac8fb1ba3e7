package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	tcases := []struct {
		in    string
		topic Topic
		err   bool
	}{
		{in: "room:1", topic: RoomTopic(1)},
		{in: "user:42", topic: UserTopic(42)},
		{in: "room", err: true},
		{in: "room:x", err: true},
		{in: "group:1", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			topic, err := ParseTopic(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.topic, topic)
			assert.Equal(t, tc.in, topic.String())
		})
	}
}

func TestEventTopicJSON(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventUserJoined, Topic: RoomTopic(3)})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"topic":"room:3"`)

	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, RoomTopic(3), ev.Topic)
}
