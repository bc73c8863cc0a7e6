package main

import (
	"regexp"
	"strings"
)

// ===========================
// Constants & Variables
// ===========================

// Similarity at or above this accepts an open answer as correct. Bands
// below it only drive warmer/colder feedback.
const (
	AnswerAcceptThreshold = 0.8
	AnswerWarmThreshold   = 0.5
)

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9 ]+`)

// ===========================
// Answer Evaluator
// ===========================

// NormalizeAnswer lowercases and strips everything but letters, digits
// and spaces, collapsing runs of whitespace.
func NormalizeAnswer(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRegex.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores a guess against a target in [0, 1]: exact match
// after normalization is 1.0, containment either direction is 0.8,
// anything else falls back to edit distance over max length.
func Similarity(guess, target string) float64 {
	g := NormalizeAnswer(guess)
	t := NormalizeAnswer(target)

	if g == "" || t == "" {
		return 0
	}
	if g == t {
		return 1.0
	}
	if strings.Contains(g, t) || strings.Contains(t, g) {
		return 0.8
	}

	maxLen := Max(len(g), len(t))
	sim := 1.0 - float64(levenshtein(g, t))/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// EvaluateGuess judges an open answer against a track. A guess is
// correct when it is close enough to either the title or the artist.
func EvaluateGuess(guess string, track Track) (correct bool, similarity float64) {
	titleSim := Similarity(guess, track.Title)
	artistSim := Similarity(guess, track.Artist)

	best := titleSim
	if artistSim > best {
		best = artistSim
	}
	return best >= AnswerAcceptThreshold, best
}

// IsWarm reports whether a wrong guess is close enough to merit a
// "getting warmer" hint.
func IsWarm(similarity float64) bool {
	return similarity >= AnswerWarmThreshold && similarity < AnswerAcceptThreshold
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = Min(Min(curr[j-1]+1, prev[j]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
