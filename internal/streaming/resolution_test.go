package streaming

import "testing"

func TestPacketBudget(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"480p", 50},
		{"720p", 100},
		{"1080p", 150},
		{"4K", 150},
		{"", 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PacketBudget(tt.name); got != tt.want {
				t.Errorf("PacketBudget(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestNegotiatedResolution(t *testing.T) {
	tests := map[string]Resolution{
		"480p":  Res480p,
		"720p":  Res720p,
		"1080p": Res1080p,
		"144p":  Res720p,
		"":      Res720p,
		"720P":  Res720p,
	}
	for in, want := range tests {
		if got := NegotiatedResolution(in); got != want {
			t.Errorf("NegotiatedResolution(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestStreamResolution_matches_budget(t *testing.T) {
	for _, name := range []string{"480p", "720p", "1080p", "144p", "8K"} {
		res := StreamResolution(name)
		if PacketBudget(string(res)) != PacketBudget(name) {
			t.Errorf("%q streams as %s but budgets differ", name, res)
		}
	}
}
