package handler

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/goevery/broadcastsync/internal/ierr"
)

const maxChannelIdLength = 128

// ChannelIdValidator accepts colon separated segments of word characters and
// dashes, for example "room:42" or "app:lobby-1".
type ChannelIdValidator struct {
	channelIdRegex *regexp.Regexp
}

func NewChannelIdValidator() *ChannelIdValidator {
	return &ChannelIdValidator{
		channelIdRegex: regexp.MustCompile(`^([\w-]+:?)*\w$`),
	}
}

func (v *ChannelIdValidator) Validate(channelId string) error {
	if channelId == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("channelId is required"))
	}

	if len(channelId) > maxChannelIdLength {
		return ierr.New(ierr.ErrorCodeInvalidArgument,
			fmt.Errorf("channelId longer than %d characters", maxChannelIdLength))
	}

	if !v.channelIdRegex.MatchString(channelId) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, fmt.Errorf("invalid channelId %q", channelId))
	}

	return nil
}
