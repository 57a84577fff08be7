package mqtt3

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getShortSocketPath(t testing.TB) string {
	t.Helper()
	path := fmt.Sprintf("/tmp/mqtt3_test_%d.sock", time.Now().UnixNano())
	t.Cleanup(func() { os.Remove(path) })
	return path
}

func TestUnixDialer(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		socketPath := getShortSocketPath(t)

		listener, err := net.Listen("unix", socketPath)
		require.NoError(t, err)
		defer listener.Close()

		go func() {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()

			msg, _, err := ReadMessage(conn, 0)
			if err != nil {
				return
			}
			if _, err := ParseConnect(msg); err == nil {
				_, _ = NewConnackMessage(false, ConnackAccepted).Encode(conn)
			}
		}()

		conn, err := NewUnixDialer().Dial(context.Background(), socketPath)
		require.NoError(t, err)
		defer conn.Close()

		connect, err := NewConnectMessage(ConnectOptions{ClientID: "unix", CleanSession: true})
		require.NoError(t, err)
		_, err = connect.Encode(conn)
		require.NoError(t, err)

		got, _, err := ReadMessage(conn, 0)
		require.NoError(t, err)
		present, code, ok := ParseConnack(got)
		require.True(t, ok)
		assert.False(t, present)
		assert.Equal(t, ConnackAccepted, code)
	})

	t.Run("dial context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewUnixDialer().Dial(ctx, "/nonexistent/socket.sock")
		assert.Error(t, err)
	})

	t.Run("dial nonexistent socket", func(t *testing.T) {
		_, err := NewUnixDialer().Dial(context.Background(), "/nonexistent/socket.sock")
		assert.Error(t, err)
	})
}
