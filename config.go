package tfrc

// A Config configures a TFRC flow.
type Config struct {
	// SmallPacket enables the RFC 4828 Small-Packet variant, meant for
	// flows whose packets are much smaller than one MSS (e.g. VoIP).
	SmallPacket bool

	// SegmentSize is the expected packet size in bytes. It seeds the
	// average packet size; the default is DefaultSegmentSize. In
	// Small-Packet mode rates are always computed for MSS-sized packets
	// and SegmentSize only seeds the header-tax average.
	SegmentSize ByteCount

	// InitialRate is the allowed sending rate before the first feedback
	// arrives. Zero means one segment per second.
	InitialRate Bandwidth

	// FeedbackSender receives the feedback reports the receiving side
	// wants delivered to the remote peer. It must be set if the flow
	// receives packets.
	FeedbackSender FeedbackSender

	// Tracer observes rate control events. Optional.
	Tracer *Tracer
}

// Clone clones the Config, so that modifying the original doesn't affect a
// flow created from it.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

// populateConfig fills in default values. It may be called with nil.
func populateConfig(config *Config) *Config {
	config = config.Clone()
	if config == nil {
		config = &Config{}
	}
	if config.SegmentSize == 0 {
		config.SegmentSize = DefaultSegmentSize
	}
	return config
}
