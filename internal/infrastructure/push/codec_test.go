package push_test

import (
	"testing"

	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  push.Message
		want string
	}{
		{name: "joined", msg: push.Joined("bob"), want: `{"type":"joined","user_name":"bob"}`},
		{name: "left", msg: push.Left("bob"), want: `{"type":"left","user_name":"bob"}`},
		{name: "start", msg: push.Start("apple"), want: `{"type":"start","word":"apple"}`},
		{name: "end", msg: push.End(), want: `{"type":"end"}`},
		{name: "stop", msg: push.Stop("carol"), want: `{"type":"stop","user_name":"carol"}`},
		{name: "close", msg: push.Close("alice"), want: `{"type":"close","owner_name":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.msg.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestDecode(t *testing.T) {
	msg, err := push.Decode([]byte(`{"type":"start","word":"IMPOSTOR"}`))
	require.NoError(t, err)
	assert.Equal(t, push.Start("IMPOSTOR"), msg)

	_, err = push.Decode([]byte(`{`))
	assert.Error(t, err)
}
