package tokenutil

import "testing"

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Fatalf("empty text counted as %d tokens", got)
	}
	got := CountTokens("hello world")
	if got <= 0 {
		t.Fatalf("CountTokens(hello world) = %d", got)
	}
	if loadEncoding() != nil && got != 2 {
		t.Fatalf("cl100k_base should count 2 tokens for hello world, got %d", got)
	}
}

func TestCountMessagesAddsPerTurnOverhead(t *testing.T) {
	question := "Question: what is the molar mass of aspirin?"
	want := CountTokens(question) + CountTokens("Thought: look it up") + 2*messageOverhead
	if got := CountMessages([]string{question, "Thought: look it up"}); got != want {
		t.Fatalf("CountMessages = %d, want %d", got, want)
	}
	if got := CountMessages(nil); got != 0 {
		t.Fatalf("CountMessages(nil) = %d", got)
	}
}

func TestEstimateFast(t *testing.T) {
	cases := map[string]int{
		"a b c d":      4,
		"   \n\t  ":    0,
		"x":            1,
		"CC(=O)Oc1ccc": 3,
	}
	for text, want := range cases {
		if got := EstimateFast(text); got != want {
			t.Errorf("EstimateFast(%q) = %d, want %d", text, got, want)
		}
	}
}
