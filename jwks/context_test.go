package jwks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Context(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	want := Result{KeySet: KeySet(keySetOne), Source: SourceStale, Attempts: 3}
	got, ok := FromContext(NewContext(context.Background(), want))
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
