package jwks

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TimeoutBudget(t *testing.T) {
	t.Run("The default budget", func(t *testing.T) {
		assert.Equal(t, TimeoutBudget{
			Connect:        3400 * time.Millisecond,
			TLSHandshake:   2 * time.Second,
			RequestWrite:   time.Second,
			ResponseHeader: 2500 * time.Millisecond,
			Attempt:        8500 * time.Millisecond,
		}, DefaultTimeoutBudget())
	})

	t.Run("NewHTTPClient applies every phase", func(t *testing.T) {
		client := DefaultTimeoutBudget().NewHTTPClient()
		assert.Equal(t, 8500*time.Millisecond, client.Timeout)

		transport, ok := client.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Equal(t, 2*time.Second, transport.TLSHandshakeTimeout)
		assert.Equal(t, 2500*time.Millisecond, transport.ResponseHeaderTimeout)
		assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
		assert.NotNil(t, transport.DialContext)
		assert.NotSame(t, http.DefaultTransport, transport)
	})

	t.Run("Writes fail once the write deadline passes", func(t *testing.T) {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		conn := &writeDeadlineConn{Conn: local, timeout: 20 * time.Millisecond}

		// Nobody reads from remote, so the write blocks until the deadline.
		_, err := conn.Write([]byte("GET / HTTP/1.1\r\n"))
		require.Error(t, err)

		var netErr net.Error
		require.True(t, errors.As(err, &netErr))
		assert.True(t, netErr.Timeout())
		assert.True(t, isTransientError(err))
	})

	t.Run("Each write gets a fresh deadline", func(t *testing.T) {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		go func() {
			buf := make([]byte, 16)
			for {
				if _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()

		conn := &writeDeadlineConn{Conn: local, timeout: 50 * time.Millisecond}
		for i := 0; i < 3; i++ {
			_, err := conn.Write([]byte("x"))
			require.NoError(t, err)
			time.Sleep(30 * time.Millisecond)
		}
	})

	t.Run("A zero write timeout leaves connections unwrapped", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()

		dialer := &net.Dialer{}
		conn, err := writeDeadlineDialer(dialer.DialContext, 0)(context.Background(), "tcp", listener.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		_, wrapped := conn.(*writeDeadlineConn)
		assert.False(t, wrapped)

		conn2, err := writeDeadlineDialer(dialer.DialContext, time.Second)(context.Background(), "tcp", listener.Addr().String())
		require.NoError(t, err)
		defer conn2.Close()
		_, wrapped = conn2.(*writeDeadlineConn)
		assert.True(t, wrapped)
	})

	t.Run("A slow response header fails the attempt", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		server, _ := setupTestServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})

		budget := DefaultTimeoutBudget()
		budget.ResponseHeader = 50 * time.Millisecond
		policy := fastRetryPolicy()
		policy.MaxAttempts = 1

		start := time.Now()
		_, err := newTestFetcher(t, WithTimeoutBudget(budget), WithRetryPolicy(policy)).Fetch(context.Background(), server.URL)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, KindTransportTransient, ClassifyError(fetchErr.Err, policy))
	})
}
