package jwks

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrKeyNotFound is returned by KeyProvider.LookupKeyID when the current
// key set has no key with the requested identifier.
var ErrKeyNotFound = errors.New("jwks: key ID not found in key set")

// KeySet is a JSON-encoded JSON Web Key Set as served by the endpoint.
// The fetcher only checks that it is valid JSON. Values handed out by the
// fetcher are shared and must not be modified.
type KeySet []byte

func (k KeySet) String() string {
	return string(k)
}

func (k KeySet) clone() KeySet {
	if k == nil {
		return nil
	}
	return append(KeySet(nil), k...)
}

// Parse decodes the key set into a jwk.Set.
func (k KeySet) Parse() (jwk.Set, error) {
	return jwk.Parse(k)
}

// decodeKeySet checks that body is a JSON document.
func decodeKeySet(body []byte) (KeySet, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	// goccy accepts some malformed numbers such as 01; jwx parses with
	// encoding/json and would reject the stored set.
	if !stdjson.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrDecodeFailed)
	}
	return KeySet(body), nil
}

// KeyProvider exposes a Fetcher bound to one JWKS URL through the keyFunc
// signature that JWT validators expect.
type KeyProvider struct {
	fetcher *Fetcher
	url     string
}

// NewKeyProvider returns a KeyProvider resolving key sets from jwksURL.
func NewKeyProvider(fetcher *Fetcher, jwksURL string) *KeyProvider {
	return &KeyProvider{fetcher: fetcher, url: jwksURL}
}

// KeyFunc adheres to the keyFunc signature that validators require.
// While it returns an interface, as long as the error is nil the type
// will be jwk.Set.
func (p *KeyProvider) KeyFunc(ctx context.Context) (any, error) {
	return p.keySet(ctx)
}

// LookupKeyID returns the key identified by kid from the current key set.
func (p *KeyProvider) LookupKeyID(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := p.keySet(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (p *KeyProvider) keySet(ctx context.Context) (jwk.Set, error) {
	result, err := p.fetcher.Fetch(ctx, p.url)
	if err != nil {
		return nil, err
	}

	set, err := result.KeySet.Parse()
	if err != nil {
		return nil, fmt.Errorf("could not parse JWKS: %w", err)
	}
	return set, nil
}
