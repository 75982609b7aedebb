package domain

// MessageBus routes command-channel messages between platform channels and
// the signal controller.
type MessageBus interface {
	Publish(msg InboundMessage) bool
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
