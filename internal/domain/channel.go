package domain

import (
	"fmt"
	"strings"
)

// Channel identifies the platform a message arrived from.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelEmail     Channel = "email"
	ChannelReview    Channel = "review"
)

// Channels lists every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelInstagram, ChannelEmail, ChannelReview}
}

// ParseChannel maps a case-insensitive name to a Channel.
func ParseChannel(name string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(name)))
	switch ch {
	case ChannelWhatsApp, ChannelInstagram, ChannelEmail, ChannelReview:
		return ch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, name)
}

func (c Channel) String() string { return string(c) }
