package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEventCarriesCallFields(t *testing.T) {
	evt, err := NewMessageEvent("a-me", User{ID: "me", Name: "Me"}, OutgoingMessage{
		Text:   "📹 Video call started",
		Custom: map[string]any{"type": "video_call", "callUrl": "https://x/call/42", "callId": "42"},
	})
	require.NoError(t, err)

	assert.Equal(t, EventMessageNew, evt.Type)
	assert.Equal(t, "a-me", evt.ChannelID)
	require.NotNil(t, evt.Message)
	assert.NotEmpty(t, evt.Message.ID)
	assert.Equal(t, "me", evt.Message.User.ID)
	assert.Equal(t, "https://x/call/42", evt.Message.CallURL)
	assert.Equal(t, "42", evt.Message.CallID)

	var custom map[string]string
	require.NoError(t, json.Unmarshal(evt.Message.Custom, &custom))
	assert.Equal(t, "video_call", custom["type"])
	assert.Equal(t, "channel:a-me", ChannelKey("a-me"))
}

func TestDecodeRedisEventFillsChannelFromKey(t *testing.T) {
	evt, err := DecodeRedisEvent("channel:a-b", []byte(`{"type":"typing.start","user":{"id":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, "a-b", evt.ChannelID)
	assert.Equal(t, EventTypingStart, evt.Type)

	_, err = DecodeRedisEvent("channel:a-b", []byte(`not json`))
	assert.Error(t, err)
}
