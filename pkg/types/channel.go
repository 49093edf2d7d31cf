package types

// Channel is the transport a contact reached us on.
type Channel string

const (
	ChannelVoice    Channel = "voice"
	ChannelEmail    Channel = "email"
	ChannelChat     Channel = "chat"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelEmail, ChannelChat, ChannelWhatsApp:
		return true
	}
	return false
}

// PhoneBased reports whether the channel identifies contacts by phone number.
func (c Channel) PhoneBased() bool {
	return c == ChannelVoice || c == ChannelWhatsApp
}

// Directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)
