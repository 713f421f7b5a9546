package streaming

import "testing"

func TestSession_Remaining(t *testing.T) {
	for _, tc := range []struct {
		name   string
		budget int
		sent   int
		want   int
	}{
		{"fresh", 50, 0, 50},
		{"partway", 50, 20, 30},
		{"finished", 50, 50, 0},
		{"overrun", 100, 120, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := &Session{Budget: tc.budget, Sent: tc.sent}
			if got := s.Remaining(); got != tc.want {
				t.Errorf("Remaining() = %d, want %d", got, tc.want)
			}
		})
	}
}
