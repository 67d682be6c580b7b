package normalize

import (
	"strings"
	"testing"

	"github.com/contaquenaoservepranadax1-crypto/openai-nim-proxy/internal/config"
)

func defaultNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(config.DefaultLeadInPhrases)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestClean(t *testing.T) {
	n := defaultNormalizer(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no lead-in", "the plan: do the thing", "the plan: do the thing"},
		{"single lead-in", "Sure, the plan works", "the plan works"},
		{"chained lead-ins", "Sure, of course! Here's the plan: ...", "the plan: ..."},
		{"case insensitive", "OKAY! here IS the answer", "the answer"},
		{"happy to", "I'd be happy to explain.", "explain."},
		{"empty", "", ""},
		{"lead-in only", "Sure! ", ""},
		{"mid-text untouched", "The word sure, appears here", "The word sure, appears here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	n := defaultNormalizer(t)

	inputs := []string{
		"Sure, of course! Here's the plan: ...",
		"Certainly! Absolutely! Got it, done.",
		"plain text",
		"",
	}
	for _, input := range inputs {
		once := n.Clean(input)
		twice := n.Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent on %q: %q -> %q", input, once, twice)
		}
	}
}

func TestClean_NilNormalizer(t *testing.T) {
	var n *Normalizer
	if got := n.Clean("Sure, hello"); got != "Sure, hello" {
		t.Errorf("nil normalizer altered text: %q", got)
	}
}

func TestNew_BadPattern(t *testing.T) {
	if _, err := New([]string{`(unclosed`}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestStreamState_FlushesOnceAtThreshold(t *testing.T) {
	n := defaultNormalizer(t)
	s := NewStreamState(n, 16)

	out, emit := s.Push("Sure, ")
	if emit || out != "" {
		t.Fatalf("expected accumulation, got emit=%v out=%q", emit, out)
	}
	if !s.Accumulating() {
		t.Fatal("state flipped before threshold")
	}

	out, emit = s.Push("here's the answer")
	if !emit {
		t.Fatal("expected flush at threshold")
	}
	if out != "the answer" {
		t.Errorf("flushed %q, want %q", out, "the answer")
	}
	if s.Accumulating() {
		t.Fatal("state still accumulating after flush")
	}
}

func TestStreamState_PassthroughNeverAlters(t *testing.T) {
	n := defaultNormalizer(t)
	s := NewStreamState(n, 4)

	if _, emit := s.Push("12345"); !emit {
		t.Fatal("expected flush")
	}

	// Later fragments match the catalog but must pass through untouched.
	for _, frag := range []string{"Sure, ", "of course! ", "Here's more"} {
		out, emit := s.Push(frag)
		if !emit || out != frag {
			t.Errorf("passthrough altered %q -> (%q, %v)", frag, out, emit)
		}
	}
}

func TestStreamState_FinalFlushBelowThreshold(t *testing.T) {
	n := defaultNormalizer(t)
	s := NewStreamState(n, 1000)

	s.Push("Sure, ")
	s.Push("ok")

	out, emit := s.FlushFinal()
	if !emit {
		t.Fatal("expected final flush of held text")
	}
	if out != "ok" {
		t.Errorf("final flush = %q, want %q", out, "ok")
	}

	// A second flush has nothing left.
	if _, emit := s.FlushFinal(); emit {
		t.Error("second FlushFinal emitted again")
	}
}

func TestStreamState_EmptyStream(t *testing.T) {
	s := NewStreamState(defaultNormalizer(t), 64)
	if out, emit := s.FlushFinal(); emit || out != "" {
		t.Errorf("empty stream flushed (%q, %v)", out, emit)
	}
}

func TestStreamState_TransitionIsForwardOnly(t *testing.T) {
	s := NewStreamState(defaultNormalizer(t), 4)
	s.Push(strings.Repeat("x", 10))
	if s.Accumulating() {
		t.Fatal("expected passthrough")
	}
	s.Push("more")
	s.FlushFinal()
	if s.Accumulating() {
		t.Fatal("state moved backwards to accumulating")
	}
}
