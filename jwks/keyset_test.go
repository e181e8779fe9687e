package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeySet(t *testing.T, kids ...string) []byte {
	t.Helper()

	set := jwk.NewSet()
	for _, kid := range kids {
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		key, err := jwk.FromRaw(&privateKey.PublicKey)
		require.NoError(t, err)
		require.NoError(t, key.Set(jwk.KeyIDKey, kid))
		require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
		require.NoError(t, set.AddKey(key))
	}

	body, err := json.Marshal(set)
	require.NoError(t, err)
	return body
}

func Test_decodeKeySet(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "key set", body: keySetOne},
		{name: "any JSON value", body: `{"unrelated":true}`},
		{name: "empty", body: "", wantErr: true},
		{name: "html", body: "<html></html>", wantErr: true},
		{name: "truncated", body: `{"keys":[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keySet, err := decodeKeySet([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecodeFailed)
				assert.Nil(t, keySet)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, keySet.String())
		})
	}
}

func Test_KeyProvider(t *testing.T) {
	ctx := context.Background()
	body := generateKeySet(t, "kid-1", "kid-2")

	t.Run("It resolves keys by ID", func(t *testing.T) {
		server, _ := setupTestServer(t, respond(http.StatusOK, string(body)))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		key, err := provider.LookupKeyID(ctx, "kid-2")
		require.NoError(t, err)
		assert.Equal(t, "kid-2", key.KeyID())
		assert.Equal(t, jwa.RSA, key.KeyType())
	})

	t.Run("It reports unknown key IDs", func(t *testing.T) {
		server, _ := setupTestServer(t, respond(http.StatusOK, string(body)))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		_, err := provider.LookupKeyID(ctx, "rotated-away")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("KeyFunc returns a jwk.Set", func(t *testing.T) {
		server, _ := setupTestServer(t, respond(http.StatusOK, string(body)))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		got, err := provider.KeyFunc(ctx)
		require.NoError(t, err)
		set, ok := got.(jwk.Set)
		require.True(t, ok)
		assert.Equal(t, 2, set.Len())
	})

	t.Run("It keeps resolving keys from the stale key set", func(t *testing.T) {
		server, _ := setupTestServer(t, sequence(
			respond(http.StatusOK, string(body)),
			respond(http.StatusServiceUnavailable, ""),
		))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		_, err := provider.LookupKeyID(ctx, "kid-1")
		require.NoError(t, err)

		key, err := provider.LookupKeyID(ctx, "kid-1")
		require.NoError(t, err)
		assert.Equal(t, "kid-1", key.KeyID())
	})

	t.Run("It passes fetch failures through", func(t *testing.T) {
		server, _ := setupTestServer(t, respond(http.StatusServiceUnavailable, ""))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		_, err := provider.KeyFunc(ctx)
		assert.ErrorIs(t, err, ErrFetchExhaustedNoFallback)
	})

	t.Run("It fails on JSON that is not a key set", func(t *testing.T) {
		server, _ := setupTestServer(t, respond(http.StatusOK, `[1,2,3]`))
		provider := NewKeyProvider(newTestFetcher(t), server.URL)

		_, err := provider.KeyFunc(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not parse JWKS")
	})
}
