package main

import (
	"testing"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Bohemian Rhapsody", "bohemian rhapsody"},
		{"strips punctuation", "Don't Stop Me Now!", "dont stop me now"},
		{"collapses whitespace", "  hey   jude  ", "hey jude"},
		{"keeps digits", "99 Luftballons", "99 luftballons"},
		{"strips unicode symbols", "Beyoncé — Halo", "beyonc halo"},
		{"empty stays empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAnswer(tt.input); got != tt.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		guess  string
		target string
		want   float64
	}{
		{"exact match", "Hey Jude", "hey jude", 1.0},
		{"exact after stripping", "hey, jude!!", "Hey Jude", 1.0},
		{"guess contains target", "the song is hey jude", "Hey Jude", 0.8},
		{"target contains guess", "jude", "Hey Jude", 0.8},
		{"empty guess", "", "Hey Jude", 0},
		{"empty target", "whatever", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.guess, tt.target); got != tt.want {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.guess, tt.target, got, tt.want)
			}
		})
	}
}

func TestSimilarityEditDistanceBand(t *testing.T) {
	// "hey jide" vs "hey jude": distance 1 over length 8
	got := Similarity("hey jide", "hey jude")
	want := 1.0 - 1.0/8.0
	if got != want {
		t.Errorf("Similarity = %v, want %v", got, want)
	}

	// Completely different strings never go below zero
	if got := Similarity("a", "zzzzzzzzzzzzzzzz"); got < 0 {
		t.Errorf("Similarity went negative: %v", got)
	}
}

func TestEvaluateGuess(t *testing.T) {
	track := Track{Title: "Bohemian Rhapsody", Artist: "Queen"}

	tests := []struct {
		name    string
		guess   string
		correct bool
	}{
		{"exact title", "Bohemian Rhapsody", true},
		{"exact artist", "queen", true},
		{"small typo", "Bohemian Rapsody", true},
		{"title fragment", "bohemian", true},
		{"way off", "stairway to heaven", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			correct, sim := EvaluateGuess(tt.guess, track)
			if correct != tt.correct {
				t.Errorf("EvaluateGuess(%q) correct = %v (similarity %v), want %v", tt.guess, correct, sim, tt.correct)
			}
		})
	}
}

func TestIsWarm(t *testing.T) {
	tests := []struct {
		similarity float64
		want       bool
	}{
		{0.9, false}, // correct territory, not just warm
		{0.79, true},
		{0.5, true},
		{0.49, false},
		{0, false},
	}

	for _, tt := range tests {
		if got := IsWarm(tt.similarity); got != tt.want {
			t.Errorf("IsWarm(%v) = %v, want %v", tt.similarity, got, tt.want)
		}
	}
}
