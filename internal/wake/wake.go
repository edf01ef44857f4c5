// Package wake implements the WakeDetector component (C4): scores
// transcribed text against a configured wake-word set using exact,
// substring and fuzzy matching.
package wake

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// Detection is the pure result of scoring one piece of text.
type Detection struct {
	Detected    bool
	BestWord    string
	Score       float64
	MatchedText string
}

// Detector matches transcript text against a configured wake-word set.
// No false-positive learning: Sensitivity is a static parameter.
type Detector struct {
	words       []string
	sensitivity float64

	mu            sync.Mutex
	lastDetection time.Time
}

// New creates a Detector for the given wake words (compared case-insensitively).
func New(words []string, sensitivity float64) *Detector {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(strings.TrimSpace(w))
	}
	if sensitivity <= 0 {
		sensitivity = 0.8
	}
	return &Detector{words: lower, sensitivity: sensitivity}
}

// DetectInText is a pure function usable standalone in unit tests, and also
// the function driving the continuous mode fed by the ASR worker's output.
func (d *Detector) DetectInText(text string) Detection {
	lowerText := strings.ToLower(strings.TrimSpace(text))
	if lowerText == "" {
		return Detection{}
	}

	var best Detection
	for _, word := range d.words {
		score, matched := scoreWord(lowerText, word)
		if score > best.Score {
			best = Detection{BestWord: word, Score: score, MatchedText: matched}
		}
	}
	best.Detected = best.Score >= d.sensitivity

	if best.Detected {
		d.mu.Lock()
		d.lastDetection = time.Now()
		d.mu.Unlock()
	}
	return best
}

// LastDetection returns the timestamp of the most recent positive detection.
func (d *Detector) LastDetection() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDetection
}

// scoreWord computes max(exact, substring, fuzzy) for one wake word against
// the full lowercased text, per spec §4.4.
func scoreWord(text, word string) (float64, string) {
	if word == "" {
		return 0, ""
	}

	words := strings.Fields(text)
	for _, w := range words {
		if w == word {
			return 1.0, w
		}
	}

	if strings.Contains(text, word) {
		return 0.8, word
	}

	// Fuzzy: Jaro-Winkler similarity against each token, rescaled into the
	// 0.0-0.7 band, best token wins.
	best := 0.0
	bestToken := ""
	for _, w := range words {
		sim := matchr.JaroWinkler(w, word, true)
		scaled := sim * 0.7
		if scaled > best {
			best = scaled
			bestToken = w
		}
	}
	return best, bestToken
}
