package coordinator

import (
	"testing"
)

func TestExtractName(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"my name is alice", "Alice", true},
		{"My name's Bob.", "Bob", true},
		{"Hi! I'm Mary Jane, nice to meet you", "Mary Jane", true},
		{"call me Jean-Luc please", "", false},
		{"call me Jean-Luc", "Jean-Luc", true},
		{"it's O'Brien", "O'Brien", true},
		{"name: Zoë", "Zoë", true},
		{"Alice", "Alice", true},
		{"  carlos  ", "Carlos", true},
		{"I'm fine thanks", "", false},
		{"I am not telling you", "", false},
		{"yes", "", false},
		{"what?", "", false},
		{"I would rather talk about the weather today", "", false},
		{"R2D2", "", false},
		{"", "", false},
		{"I'm from Spain", "", false},
		{"What's up", "", false},
		{"It's raining", "", false},
		{"Where is Bob", "", false},
		{"is it Bob?", "", false},
		{"who's asking", "", false},
		{"I'm in the kitchen", "", false},
		{"Anna Maria", "Anna Maria", true},
		{"anna maria lopez", "", false},
		{"Will", "Will", true},
		{"i'm Will, hi", "Will", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractName(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractName(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
