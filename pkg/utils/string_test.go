package utils

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("Truncate = %q, want %q", got, "hello")
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Fatalf("Truncate = %q, want %q", got, "hello...")
	}
	if got := Truncate("你好世界你好世界", 5); got != "你好..." {
		t.Fatalf("Truncate = %q, want %q", got, "你好...")
	}
}

func TestStripPrefix(t *testing.T) {
	rest, ok := StripPrefix("/ping pong", []string{"!", "/"})
	if !ok || rest != "ping pong" {
		t.Fatalf("StripPrefix = %q, %v", rest, ok)
	}

	rest, ok = StripPrefix("ping", []string{"/"})
	if ok || rest != "ping" {
		t.Fatalf("expected no strip, got %q, %v", rest, ok)
	}

	// Only one prefix is removed even when the rest starts with another.
	rest, ok = StripPrefix("//ping", []string{"/"})
	if !ok || rest != "/ping" {
		t.Fatalf("StripPrefix = %q, %v, want %q", rest, ok, "/ping")
	}
}

func TestFirstWord(t *testing.T) {
	word, rest := FirstWord("  roll 2d20  ")
	if word != "roll" || rest != "2d20" {
		t.Fatalf("FirstWord = %q, %q", word, rest)
	}

	word, rest = FirstWord("ping")
	if word != "ping" || rest != "" {
		t.Fatalf("FirstWord = %q, %q", word, rest)
	}

	word, rest = FirstWord("")
	if word != "" || rest != "" {
		t.Fatalf("FirstWord on empty = %q, %q", word, rest)
	}
}
