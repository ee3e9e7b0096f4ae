package dashboard

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvconsole/internal/audit"
	"kvconsole/internal/config"
	"kvconsole/internal/constants"
)

func setup(t *testing.T) (*audit.Log, *Dashboard, string) {
	t.Helper()
	history, err := audit.New(config.AuditConfig{Capacity: 10}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	d := New(history, zerolog.Nop())
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	return history, d, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestReplayThenStream(t *testing.T) {
	history, d, url := setup(t)
	history.Record(constants.ActionConnect, "first", "s1", nil)
	history.Record(constants.ActionKeys, "second", "s1", nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, TypeReplay, msg.Type)
	assert.Equal(t, "first", msg.Data.Description)
	msg = readMessage(t, conn)
	assert.Equal(t, "second", msg.Data.Description)

	require.Eventually(t, func() bool { return d.Clients() == 1 }, time.Second, 10*time.Millisecond)

	history.Record(constants.ActionCLI, "live", "s1", nil)
	msg = readMessage(t, conn)
	assert.Equal(t, TypeEntry, msg.Type)
	assert.Equal(t, "live", msg.Data.Description)
}

func TestStreamFiltersBySession(t *testing.T) {
	history, _, url := setup(t)
	history.Record(constants.ActionConnect, "other", "s2", nil)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?connection_id=s1", nil)
	require.NoError(t, err)
	defer conn.Close()

	history.Record(constants.ActionCLI, "skip", "s2", nil)
	history.Record(constants.ActionCLI, "mine", "s1", nil)

	msg := readMessage(t, conn)
	assert.Equal(t, "mine", msg.Data.Description)
	assert.Equal(t, "s1", msg.Data.SessionID)
}

func TestClientCountDropsOnDisconnect(t *testing.T) {
	_, d, url := setup(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return d.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return d.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
