package taxonomy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAndKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(TransientNetwork, "platform.count_pending_work", cause)

	assert.True(t, Is(err, TransientNetwork))
	assert.False(t, Is(err, Permanent))
	assert.Equal(t, TransientNetwork, KindOf(err))
	require.ErrorIs(t, err, cause)
}

func TestKindOfNonTaxonomyError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Is(errors.New("plain"), Fatal))
}

func TestNewRetryableCarriesDelay(t *testing.T) {
	err := NewRetryable("platform.list_runners", errors.New("429"), 15*time.Second)
	assert.Equal(t, TransientNetwork, err.Kind)
	assert.Equal(t, 15*time.Second, err.RetryAfter)
}

func TestErrorMessageFormat(t *testing.T) {
	err := New(Permanent, "installer.install", errors.New("404 not found"))
	assert.Contains(t, err.Error(), "installer.install")
	assert.Contains(t, err.Error(), "permanent")
	assert.Contains(t, err.Error(), "404 not found")
}
