package streaming

// Resolution names a stream quality.
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

// NegotiationDefault is what negotiation answers for an unknown name.
const NegotiationDefault = Res720p

// ParseResolution reports whether name is one of the supported resolutions.
func ParseResolution(name string) (Resolution, bool) {
	switch r := Resolution(name); r {
	case Res480p, Res720p, Res1080p:
		return r, true
	}
	return "", false
}

// NegotiatedResolution normalizes a negotiation request: unknown names are
// answered with NegotiationDefault.
func NegotiatedResolution(name string) Resolution {
	if r, ok := ParseResolution(name); ok {
		return r
	}
	return NegotiationDefault
}

// StreamResolution normalizes the name a client opens a stream with. Unknown
// names stream at 1080p, matching PacketBudget.
func StreamResolution(name string) Resolution {
	if r, ok := ParseResolution(name); ok {
		return r
	}
	return Res1080p
}

// PacketBudget returns the number of packets a stream of the named
// resolution carries: 480p 50, 720p 100, everything else 150.
func PacketBudget(name string) int {
	switch Resolution(name) {
	case Res480p:
		return 50
	case Res720p:
		return 100
	default:
		return 150
	}
}
