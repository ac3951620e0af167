package ierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("channel closed")
	err := New(ErrorCodeChannelClosed, cause)

	assert.Equal(t, "ChannelClosed: channel closed", err.Error())
	assert.Equal(t, "channel closed", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("open: %w", New(ErrorCodeChannelUnavailable, errors.New("hub shut down")))

		code, ok := CodeOf(err)

		assert.True(t, ok)
		assert.Equal(t, ErrorCodeChannelUnavailable, code)
	})

	t.Run("plain error", func(t *testing.T) {
		_, ok := CodeOf(errors.New("boom"))

		assert.False(t, ok)
	})
}
