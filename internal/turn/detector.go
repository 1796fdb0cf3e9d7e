// Package turn decides when the caller has finished speaking.
package turn

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// Settings bound how long the detector waits after the last final transcript
type Settings struct {
	// MinEndpointing is the pause required after a sentence that looks complete
	MinEndpointing time.Duration
	// MaxEndpointing ends the turn regardless of how the text looks
	MaxEndpointing time.Duration
}

// DefaultSettings returns the settings used on phone calls
func DefaultSettings() Settings {
	return Settings{
		MinEndpointing: 500 * time.Millisecond,
		MaxEndpointing: 6 * time.Second,
	}
}

// Words that leave an English sentence hanging
var continuationWords = map[string]bool{
	"and": true, "but": true, "or": true, "so": true, "because": true,
	"the": true, "a": true, "an": true, "to": true, "of": true,
	"with": true, "for": true, "in": true, "on": true, "at": true,
	"um": true, "uh": true, "like": true, "if": true, "then": true,
	"my": true, "your": true, "is": true, "was": true, "i'm": true,
}

// Detector accumulates final transcripts into a user turn. It is safe for
// concurrent use by the STT event loop and the session's ticker.
type Detector struct {
	settings Settings
	now      func() time.Time

	mu           sync.Mutex
	parts        []string
	lastFinal    time.Time
	utteranceEnd bool
	speechFinal  bool
}

// NewDetector creates a turn detector. Zero settings fall back to
// DefaultSettings.
func NewDetector(settings Settings) *Detector {
	defaults := DefaultSettings()
	if settings.MinEndpointing <= 0 {
		settings.MinEndpointing = defaults.MinEndpointing
	}
	if settings.MaxEndpointing <= 0 {
		settings.MaxEndpointing = defaults.MaxEndpointing
	}
	return &Detector{settings: settings, now: time.Now}
}

// AddTranscript appends a final transcript segment
func (d *Detector) AddTranscript(text string, speechFinal bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.parts = append(d.parts, text)
	d.lastFinal = d.now()
	d.utteranceEnd = false
	d.speechFinal = speechFinal
}

// UtteranceEnd notes that the recognizer saw a gap in speech
func (d *Detector) UtteranceEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.parts) > 0 {
		d.utteranceEnd = true
	}
}

func (d *Detector) reset() {
	d.parts = nil
	d.utteranceEnd = false
	d.speechFinal = false
}

// Poll returns the completed turn once the caller is judged to be done.
// The detector is cleared when a turn is returned.
func (d *Detector) Poll() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.parts) == 0 {
		return "", false
	}

	text := strings.Join(d.parts, " ")
	silence := d.now().Sub(d.lastFinal)

	done := silence >= d.settings.MaxEndpointing
	if !done && silence >= d.settings.MinEndpointing && !looksUnfinished(text) {
		done = d.utteranceEnd || d.speechFinal || endsSentence(text)
	}
	if !done {
		return "", false
	}

	d.reset()
	return text, true
}

func endsSentence(text string) bool {
	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

func looksUnfinished(text string) bool {
	if strings.HasSuffix(text, ",") || strings.HasSuffix(text, "...") {
		return true
	}
	if strings.HasSuffix(text, "?") {
		return false
	}
	fields := strings.Fields(text)
	last := strings.ToLower(strings.TrimRightFunc(fields[len(fields)-1], unicode.IsPunct))
	return continuationWords[last]
}
