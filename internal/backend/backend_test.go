package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvconsole/internal/apperr"
)

func newTestConn(t *testing.T) (*Conn, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	conn := NewConn(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mr
}

// recordingClient counts dispatched commands without a backend.
type recordingClient struct {
	redis.Cmdable
	calls int
}

func (c *recordingClient) Do(ctx context.Context, args ...any) *redis.Cmd {
	c.calls++
	return redis.NewCmdResult("OK", nil)
}

func (c *recordingClient) Close() error { return nil }

func TestExecRejectsBlockedCommandsBeforeDispatch(t *testing.T) {
	client := &recordingClient{}
	conn := NewConn(client)

	for _, name := range []string{"flushall", "FLUSHALL", "FlushDB", "config", "CONFIG", "shutdown", "save", "BGSAVE", "lastsave", "monitor"} {
		_, err := conn.Exec(context.Background(), []string{name, "arg"})
		require.Error(t, err, name)
		assert.True(t, apperr.Is(err, apperr.KindCommandRejected), name)
	}
	assert.Zero(t, client.calls)

	reply, err := conn.Exec(context.Background(), []string{"ping"})
	require.NoError(t, err)
	assert.Equal(t, Bulk("OK"), reply)
	assert.Equal(t, 1, client.calls)
}

func TestExecEmptyCommand(t *testing.T) {
	conn := NewConn(&recordingClient{})
	_, err := conn.Exec(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestExecAgainstBackend(t *testing.T) {
	conn, mr := newTestConn(t)
	ctx := context.Background()

	reply, err := conn.Exec(ctx, []string{"SET", "greeting", "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Text())

	reply, err = conn.Exec(ctx, []string{"get", "greeting"})
	require.NoError(t, err)
	assert.Equal(t, Bulk("hello world"), reply)

	reply, err = conn.Exec(ctx, []string{"GET", "missing"})
	require.NoError(t, err)
	assert.Equal(t, Null{}, reply)
	assert.Equal(t, "(nil)", reply.Text())

	reply, err = conn.Exec(ctx, []string{"INCR", "counter"})
	require.NoError(t, err)
	assert.Equal(t, Scalar{Value: int64(1)}, reply)

	mr.RPush("list", "a", "b")
	reply, err = conn.Exec(ctx, []string{"LRANGE", "list", "0", "-1"})
	require.NoError(t, err)
	assert.Equal(t, Array{Bulk("a"), Bulk("b")}, reply)
	assert.Equal(t, []string{"a", "b"}, Display(reply))
}

func TestExecBackendError(t *testing.T) {
	conn, mr := newTestConn(t)
	mr.RPush("list", "a")

	_, err := conn.Exec(context.Background(), []string{"GET", "list"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBackendOperationFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "WRONGTYPE")
}

func TestExecTransportLost(t *testing.T) {
	conn, mr := newTestConn(t)
	mr.Close()

	_, err := conn.Exec(context.Background(), []string{"PING"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransportLost, apperr.KindOf(err))
}

func TestExecTimeoutKeepsConnUsable(t *testing.T) {
	mr := miniredis.RunT(t)
	conn := NewConn(redis.NewClient(&redis.Options{
		Addr:                  mr.Addr(),
		ReadTimeout:           -1,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	}))
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := conn.Exec(ctx, []string{"BLPOP", "empty", "0"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBackendOperationFailed, apperr.KindOf(err))

	reply, err := conn.Exec(context.Background(), []string{"PING"})
	require.NoError(t, err)
	assert.Equal(t, Bulk("PONG"), reply)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(&net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}))
	assert.False(t, IsTimeout(io.EOF))
	assert.False(t, IsTimeout(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.False(t, IsTimeout(nil))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))
	assert.Equal(t, apperr.KindTransportLost, apperr.KindOf(Classify("op", io.EOF)))
	assert.Equal(t, apperr.KindTransportLost, apperr.KindOf(Classify("op", redis.ErrClosed)))
	assert.Equal(t, apperr.KindTransportLost, apperr.KindOf(Classify("op", context.DeadlineExceeded)))
	assert.Equal(t, apperr.KindTransportLost, apperr.KindOf(Classify("op", fmt.Errorf("read: %w", io.ErrUnexpectedEOF))))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(Classify("op", context.Canceled)))
	assert.Equal(t, apperr.KindBackendOperationFailed, apperr.KindOf(Classify("op", errors.New("something odd"))))

	typed := apperr.New(apperr.KindKeyNotFound, "inner", "gone")
	assert.Equal(t, apperr.KindKeyNotFound, apperr.KindOf(Classify("op", typed)))
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"null", Null{}, "(nil)"},
		{"integer", Scalar{Value: int64(42)}, "(integer) 42"},
		{"double", Scalar{Value: 1.5}, "(double) 1.5"},
		{"bool", Scalar{Value: true}, "(true)"},
		{"big", Scalar{Value: big.NewInt(7)}, "(big number) 7"},
		{"bulk", Bulk("value"), "value"},
		{"error", ErrorReply{Message: "ERR bad"}, "(error) ERR bad"},
		{"empty array", Array{}, "(empty array)"},
		{"array", Array{Bulk("a"), Scalar{Value: int64(2)}}, "1) a\n2) (integer) 2"},
		{"nested", Array{Bulk("a"), Array{Bulk("b"), Bulk("c")}}, "1) a\n2) 1) b\n   2) c"},
		{"map", Map{{Key: Bulk("f"), Value: Bulk("v")}}, "1# f => v"},
		{"empty map", Map{}, "(empty hash)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reply.Text())
		})
	}
}

func TestFromValue(t *testing.T) {
	assert.Equal(t, Null{}, FromValue(nil))
	assert.Equal(t, Bulk("x"), FromValue("x"))
	assert.Equal(t, Scalar{Value: int64(3)}, FromValue(int64(3)))
	assert.Equal(t, Scalar{Value: 2.5}, FromValue(2.5))
	assert.Equal(t, Scalar{Value: false}, FromValue(false))

	arr := FromValue([]any{"a", nil, int64(1), errors.New("ERR nested")})
	assert.Equal(t, Array{Bulk("a"), Null{}, Scalar{Value: int64(1)}, ErrorReply{Message: "ERR nested"}}, arr)

	m := FromValue(map[any]any{"b": "2", "a": "1"})
	assert.Equal(t, Map{{Key: Bulk("a"), Value: Bulk("1")}, {Key: Bulk("b"), Value: Bulk("2")}}, m)
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "(nil)", Display(Null{}))
	assert.Equal(t, "5", Display(Scalar{Value: int64(5)}))
	assert.Equal(t, "v", Display(Bulk("v")))
	assert.Equal(t, []string{"a", "b,c"}, Display(Array{Bulk("a"), Array{Bulk("b"), Bulk("c")}}))
	assert.Equal(t, []string{"f", "v"}, Display(Map{{Key: Bulk("f"), Value: Bulk("v")}}))
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"get foo", []string{"get", "foo"}},
		{"  SET   key   value  ", []string{"SET", "key", "value"}},
		{`set key "hello world"`, []string{"set", "key", "hello world"}},
		{`set key 'it''s'`, nil},
		{`set key 'single \' quote'`, []string{"set", "key", "single ' quote"}},
		{`set key 'back\slash'`, []string{"set", "key", `back\slash`}},
		{`set key "line\nbreak"`, []string{"set", "key", "line\nbreak"}},
		{`set key "say \"hi\""`, []string{"set", "key", `say "hi"`}},
		{`set key ""`, []string{"set", "key", ""}},
		{`set a"b c`, []string{"set", `a"b`, "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommandLine(tt.line)
			if tt.want == nil {
				assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandLineErrors(t *testing.T) {
	for _, line := range []string{"", "   ", `get "unterminated`, `get 'open`, `get "a"b`} {
		_, err := ParseCommandLine(line)
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), line)
	}
}

func TestIsBlocked(t *testing.T) {
	assert.True(t, IsBlocked("FLUSHALL"))
	assert.True(t, IsBlocked(" monitor "))
	assert.False(t, IsBlocked("get"))
	assert.False(t, IsBlocked("configx"))
}

func TestKeys(t *testing.T) {
	conn, mr := newTestConn(t)
	ctx := context.Background()

	keys, err := conn.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for i := 0; i < 25; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("user:%02d", i), "x"))
	}
	require.NoError(t, mr.Set("session:1", "x"))

	keys, err = conn.Keys(ctx, "user:*")
	require.NoError(t, err)
	require.Len(t, keys, 25)
	assert.Equal(t, "user:00", keys[0])
	assert.Equal(t, "user:24", keys[24])

	keys, err = conn.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 26)
}

func TestReadKey(t *testing.T) {
	conn, mr := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("s", "v"))
	mr.RPush("l", "a", "b")
	_, _ = mr.SetAdd("set", "y", "x")
	_, _ = mr.ZAdd("z", 2, "two")
	_, _ = mr.ZAdd("z", 1, "one")
	mr.HSet("h", "f", "v")

	tests := []struct {
		key  string
		typ  string
		data any
	}{
		{"s", TypeString, "v"},
		{"l", TypeList, []string{"a", "b"}},
		{"set", TypeSet, []string{"x", "y"}},
		{"z", TypeZSet, []ZMember{{Member: "one", Score: 1}, {Member: "two", Score: 2}}},
		{"h", TypeHash, map[string]string{"f": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kv, err := conn.ReadKey(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.key, kv.Key)
			assert.Equal(t, tt.typ, kv.Type)
			assert.Equal(t, tt.data, kv.Data)
		})
	}

	_, err := conn.ReadKey(ctx, "absent")
	assert.True(t, apperr.Is(err, apperr.KindKeyNotFound))
}

func TestWriteKey(t *testing.T) {
	conn, mr := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, conn.WriteKey(ctx, "s", TypeString, json.RawMessage(`"hello"`)))
	got, _ := mr.Get("s")
	assert.Equal(t, "hello", got)

	require.NoError(t, conn.WriteKey(ctx, "n", TypeString, json.RawMessage(`42`)))
	got, _ = mr.Get("n")
	assert.Equal(t, "42", got)

	mr.RPush("l", "old")
	require.NoError(t, conn.WriteKey(ctx, "l", TypeList, json.RawMessage(`["a", 1, true]`)))
	list, _ := mr.List("l")
	assert.Equal(t, []string{"a", "1", "true"}, list)

	require.NoError(t, conn.WriteKey(ctx, "l", TypeList, json.RawMessage(`[]`)))
	assert.False(t, mr.Exists("l"))

	require.NoError(t, conn.WriteKey(ctx, "set", TypeSet, json.RawMessage(`["x", "y", "x"]`)))
	members, _ := mr.Members("set")
	assert.Equal(t, []string{"x", "y"}, members)

	mr.HSet("h", "stale", "1")
	require.NoError(t, conn.WriteKey(ctx, "h", TypeHash, json.RawMessage(`{"name": "kv", "port": 6379}`)))
	assert.Equal(t, "kv", mr.HGet("h", "name"))
	assert.Equal(t, "6379", mr.HGet("h", "port"))
	assert.Equal(t, "", mr.HGet("h", "stale"))

	require.NoError(t, conn.WriteKey(ctx, "z", TypeZSet, json.RawMessage(`[{"member":"a","score":1.5},{"member":"b","score":3}]`)))
	score, err := mr.ZScore("z", "a")
	require.NoError(t, err)
	assert.Equal(t, 1.5, score)
	zm, _ := mr.ZMembers("z")
	assert.Equal(t, []string{"a", "b"}, zm)
}

func TestWriteKeyInvalidInput(t *testing.T) {
	conn, _ := newTestConn(t)
	ctx := context.Background()

	for _, tc := range []struct {
		typ  string
		data string
	}{
		{"", `"x"`},
		{TypeString, ``},
		{TypeString, `null`},
		{TypeList, `"not a list"`},
		{TypeHash, `["not", "a", "hash"]`},
		{TypeZSet, `[{"member":"a","score":"high"}]`},
		{"stream", `{}`},
	} {
		err := conn.WriteKey(ctx, "k", tc.typ, json.RawMessage(tc.data))
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "%s %s", tc.typ, tc.data)
	}
}

func TestDeleteKey(t *testing.T) {
	conn, mr := newTestConn(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "v"))
	require.NoError(t, conn.DeleteKey(ctx, "k"))
	assert.False(t, mr.Exists("k"))

	err := conn.DeleteKey(ctx, "k")
	assert.True(t, apperr.Is(err, apperr.KindKeyNotFound))
}

func TestKeyOperationsTransportLost(t *testing.T) {
	conn, mr := newTestConn(t)
	mr.Close()
	ctx := context.Background()

	_, err := conn.Keys(ctx, "*")
	assert.True(t, apperr.Is(err, apperr.KindTransportLost))
	_, err = conn.ReadKey(ctx, "k")
	assert.True(t, apperr.Is(err, apperr.KindTransportLost))
	err = conn.DeleteKey(ctx, "k")
	assert.True(t, apperr.Is(err, apperr.KindTransportLost))
}
