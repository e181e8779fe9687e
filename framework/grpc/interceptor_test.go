package jwksgrpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/opstrace/go-jwks-fetcher/jwks"
)

const testURL = "https://auth.example.com/jwks"

type mockFetcher struct {
	calls  atomic.Int32
	result jwks.Result
	err    error
}

func (m *mockFetcher) Fetch(_ context.Context, jwksURL string) (jwks.Result, error) {
	m.calls.Add(1)
	if jwksURL != testURL {
		return jwks.Result{}, errors.New("unexpected URL " + jwksURL)
	}
	return m.result, m.err
}

// mockServerStream is a mock implementation of grpc.ServerStream
type mockServerStream struct {
	ctx context.Context
}

func (m *mockServerStream) SetHeader(metadata.MD) error  { return nil }
func (m *mockServerStream) SendHeader(metadata.MD) error { return nil }
func (m *mockServerStream) SetTrailer(metadata.MD)       {}
func (m *mockServerStream) Context() context.Context     { return m.ctx }
func (m *mockServerStream) SendMsg(any) error            { return nil }
func (m *mockServerStream) RecvMsg(any) error            { return nil }

func TestUnaryInterceptor(t *testing.T) {
	fresh := jwks.Result{KeySet: jwks.KeySet(`{"keys":[]}`), Source: jwks.SourceFresh, Attempts: 1}
	noFallback := &jwks.FetchError{Kind: jwks.KindFetchExhaustedNoFallback, URL: testURL, Err: errors.New("refused")}

	tests := []struct {
		name          string
		fetcher       *mockFetcher
		options       []Option
		method        string
		expectedCode  codes.Code
		expectResult  bool
		expectFetches int32
	}{
		{
			name:          "key set available",
			fetcher:       &mockFetcher{result: fresh},
			expectResult:  true,
			expectFetches: 1,
		},
		{
			name:          "no key set",
			fetcher:       &mockFetcher{err: noFallback},
			expectedCode:  codes.Unavailable,
			expectFetches: 1,
		},
		{
			name:          "excluded method",
			fetcher:       &mockFetcher{err: noFallback},
			method:        "/grpc.health.v1.Health/Check",
			options:       []Option{WithExcludedMethods([]string{"/grpc.health.v1.Health/Check"})},
			expectFetches: 0,
		},
		{
			name:    "custom error handler",
			fetcher: &mockFetcher{err: noFallback},
			options: []Option{WithErrorHandler(func(ctx context.Context, err error) error {
				return status.Error(codes.Internal, err.Error())
			})},
			expectedCode:  codes.Internal,
			expectFetches: 1,
		},
		{
			name:          "exclusion checker",
			fetcher:       &mockFetcher{result: fresh},
			method:        "/test.service/Public",
			options:       []Option{WithExclusionChecker(func(m string) bool { return m == "/test.service/Public" })},
			expectFetches: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := New(tt.fetcher, testURL, tt.options...).UnaryServerInterceptor()

			method := "/test.service/TestMethod"
			if tt.method != "" {
				method = tt.method
			}

			var handlerCalled bool
			var resultCtx context.Context
			handler := func(ctx context.Context, req any) (any, error) {
				handlerCalled = true
				resultCtx = ctx
				return "response", nil
			}

			resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: method}, handler)

			assert.Equal(t, tt.expectFetches, tt.fetcher.calls.Load())
			if tt.expectedCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.expectedCode, status.Code(err))
				assert.False(t, handlerCalled)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "response", resp)
			require.True(t, handlerCalled)

			result, err := RequireResultFromContext(resultCtx)
			if tt.expectResult {
				require.NoError(t, err)
				assert.Equal(t, jwks.SourceFresh, result.Source)
			} else {
				assert.ErrorIs(t, err, ErrMissingResult)
			}
		})
	}
}

func TestUnaryInterceptor_ErrorMessage(t *testing.T) {
	fetcher := &mockFetcher{err: &jwks.FetchError{Kind: jwks.KindDecodeFailedNoFallback}}
	interceptor := New(fetcher, testURL).UnaryServerInterceptor()

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"},
		func(context.Context, any) (any, error) { return nil, nil })

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "signing keys unavailable (decode_failed_no_fallback)", st.Message())
}

func TestStreamInterceptor(t *testing.T) {
	stale := jwks.Result{KeySet: jwks.KeySet(`{"keys":[]}`), Source: jwks.SourceStale, Attempts: 3}

	t.Run("It wraps the stream context", func(t *testing.T) {
		fetcher := &mockFetcher{result: stale}
		interceptor := New(fetcher, testURL).StreamServerInterceptor()

		var got jwks.Result
		err := interceptor(nil, &mockServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/test.service/Stream"},
			func(srv any, stream grpc.ServerStream) error {
				var err error
				got, err = RequireResultFromContext(stream.Context())
				return err
			})

		require.NoError(t, err)
		assert.Equal(t, jwks.SourceStale, got.Source)
	})

	t.Run("It rejects the stream without a key set", func(t *testing.T) {
		fetcher := &mockFetcher{err: &jwks.FetchError{Kind: jwks.KindFetchExhaustedNoFallback}}
		interceptor := New(fetcher, testURL).StreamServerInterceptor()

		called := false
		err := interceptor(nil, &mockServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/test.service/Stream"},
			func(any, grpc.ServerStream) error {
				called = true
				return nil
			})

		assert.Equal(t, codes.Unavailable, status.Code(err))
		assert.False(t, called)
	})

	t.Run("It honors caller cancellation through the fetcher", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		fetcher := fetcherFunc(func(ctx context.Context, _ string) (jwks.Result, error) {
			return jwks.Result{}, &jwks.FetchError{Kind: jwks.KindFetchExhaustedNoFallback, Err: ctx.Err()}
		})
		interceptor := New(fetcher, testURL).StreamServerInterceptor()

		err := interceptor(nil, &mockServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/test.service/Stream"},
			func(any, grpc.ServerStream) error { return nil })
		assert.Equal(t, codes.Unavailable, status.Code(err))
	})
}

type fetcherFunc func(ctx context.Context, jwksURL string) (jwks.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, jwksURL string) (jwks.Result, error) {
	return f(ctx, jwksURL)
}
