package streaming

import (
	"math/rand/v2"
	"sync"
)

// DefaultDeliveryRate is the probability that a UDP packet is handed to the
// socket; the rest model a lossy channel.
const DefaultDeliveryRate = 0.9

// LossModel decides, per UDP packet, whether it is sent or dropped.
type LossModel interface {
	Deliver() bool
}

// DeliveryFunc adapts a plain function to LossModel.
type DeliveryFunc func() bool

// Deliver implements LossModel.
func (f DeliveryFunc) Deliver() bool { return f() }

// NoLoss delivers every packet.
var NoLoss LossModel = DeliveryFunc(func() bool { return true })

// RandomLoss delivers each packet independently with a fixed probability.
type RandomLoss struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
}

// NewRandomLoss returns a loss model delivering with probability rate,
// clamped to [0, 1]. A zero seed draws from the runtime's random source.
func NewRandomLoss(rate float64, seed uint64) *RandomLoss {
	rate = min(max(rate, 0), 1)
	l := &RandomLoss{rate: rate}
	if seed != 0 {
		l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return l
}

// Deliver implements LossModel.
func (l *RandomLoss) Deliver() bool {
	if l.rng == nil {
		return rand.Float64() < l.rate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64() < l.rate
}
