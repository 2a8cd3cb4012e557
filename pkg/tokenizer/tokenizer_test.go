package tokenizer

import "testing"

func TestCountTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"hello", 1},
		{"how are you doing today mate", 8},
		{"こんにちは", 5},
		{"hello 世界", 3},
	}
	for _, tt := range tests {
		if got := CountTokens(tt.text); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCompletionBudget(t *testing.T) {
	if got := CompletionBudget("how are you doing today mate"); got != 80 {
		t.Fatalf("CompletionBudget = %d, want 80", got)
	}
}
