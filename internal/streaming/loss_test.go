package streaming

import "testing"

func TestRandomLoss_rate(t *testing.T) {
	l := NewRandomLoss(DefaultDeliveryRate, 7)
	delivered := 0
	const n = 10000
	for range n {
		if l.Deliver() {
			delivered++
		}
	}
	if delivered < 8800 || delivered > 9200 {
		t.Errorf("delivered %d of %d, want about 90%%", delivered, n)
	}
}

func TestRandomLoss_clamps(t *testing.T) {
	never := NewRandomLoss(-1, 1)
	always := NewRandomLoss(2, 1)
	for range 100 {
		if never.Deliver() {
			t.Fatal("rate below 0 delivered a packet")
		}
		if !always.Deliver() {
			t.Fatal("rate above 1 dropped a packet")
		}
	}
}

func TestRandomLoss_seeded_is_repeatable(t *testing.T) {
	a := NewRandomLoss(0.5, 99)
	b := NewRandomLoss(0.5, 99)
	for i := range 200 {
		if a.Deliver() != b.Deliver() {
			t.Fatalf("draw %d differs for equal seeds", i)
		}
	}
}
