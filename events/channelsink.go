package events

// ChannelSink fans events out on a buffered channel. A consumer is
// expected to drain C synchronously between blocks; this sink does not
// itself guarantee ordering across goroutines reading concurrently, only
// that RuneUpdater sends events in-order onto the channel.
type ChannelSink struct {
	C chan interface{}
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan interface{}, buffer)}
}

func (s *ChannelSink) RuneEtched(e RuneEtched)           { s.C <- e }
func (s *ChannelSink) RuneMinted(e RuneMinted)           { s.C <- e }
func (s *ChannelSink) RuneTransferred(e RuneTransferred) { s.C <- e }
func (s *ChannelSink) RuneBurned(e RuneBurned)           { s.C <- e }
