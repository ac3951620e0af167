package broadcaster

import (
	"errors"

	"github.com/goevery/broadcastsync/internal/ierr"
)

var (
	ErrChannelUnavailable = errors.New("broadcast channel unavailable")
	ErrChannelClosed      = errors.New("broadcast channel closed")
)

func channelUnavailable() error {
	return ierr.New(ierr.ErrorCodeChannelUnavailable, ErrChannelUnavailable)
}

func channelClosed() error {
	return ierr.New(ierr.ErrorCodeChannelClosed, ErrChannelClosed)
}
