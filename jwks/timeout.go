package jwks

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// TimeoutBudget holds the per-phase timeouts of a single HTTP attempt.
// The budget is deliberately tight: a quick failure leaves room for a
// retry that may take a different network path (L4 load balancing, for
// example). A zero field disables that phase's limit.
type TimeoutBudget struct {
	// Connect bounds TCP connection establishment. Slightly above the
	// initial TCP retransmit timeout of 3 s.
	Connect time.Duration

	// TLSHandshake bounds the TLS negotiation after connect.
	TLSHandshake time.Duration

	// RequestWrite bounds each write of the request to the connection. A
	// GET without a body is a few hundred bytes.
	RequestWrite time.Duration

	// ResponseHeader bounds the time from a written request to the
	// response headers, not the complete body.
	ResponseHeader time.Duration

	// Attempt is the hard ceiling for one attempt, up to the last body byte.
	Attempt time.Duration
}

// DefaultTimeoutBudget returns the production timeouts.
func DefaultTimeoutBudget() TimeoutBudget {
	return TimeoutBudget{
		Connect:        3400 * time.Millisecond,
		TLSHandshake:   2000 * time.Millisecond,
		RequestWrite:   1000 * time.Millisecond,
		ResponseHeader: 2500 * time.Millisecond,
		Attempt:        8500 * time.Millisecond,
	}
}

// NewHTTPClient returns an HTTP client whose transport enforces the budget.
// It starts from a cleanhttp pooled transport so that connections are
// reused across fetches but never shared with http.DefaultTransport.
func (b TimeoutBudget) NewHTTPClient() *http.Client {
	transport := cleanhttp.DefaultPooledTransport()

	dialer := &net.Dialer{
		Timeout:   b.Connect,
		KeepAlive: 30 * time.Second,
	}
	transport.DialContext = writeDeadlineDialer(dialer.DialContext, b.RequestWrite)
	transport.TLSHandshakeTimeout = b.TLSHandshake
	transport.ResponseHeaderTimeout = b.ResponseHeader
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   b.Attempt,
	}
}

type dialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// writeDeadlineDialer wraps dial so that every write on the returned
// connections must complete within timeout.
func writeDeadlineDialer(dial dialContextFunc, timeout time.Duration) dialContextFunc {
	if timeout <= 0 {
		return dial
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &writeDeadlineConn{Conn: conn, timeout: timeout}, nil
	}
}

type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeDeadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
