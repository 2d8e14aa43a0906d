// Package detector guesses whether input text is Latin before it is sent to
// the Loquax service, which only understands Latin orthography.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// minWords is the shortest input worth checking; shorter texts always pass.
const minWords = 3

// candidates are the languages most often confused with Latin input.
var candidates = []lingua.Language{
	lingua.Latin,
	lingua.English,
	lingua.Italian,
	lingua.Spanish,
	lingua.French,
	lingua.Portuguese,
	lingua.German,
}

// Detector wraps a lingua detector. Building one is expensive; reuse it.
type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(candidates...).
		Build()

	return &Detector{detector: detector}
}

// Detect returns the most likely candidate language. Blank or ambiguous
// text reports false.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// IsLatin reports whether text looks like Latin together with lingua's
// confidence for Latin. Texts under minWords words pass with zero confidence.
func (d *Detector) IsLatin(text string) (bool, float64) {
	if len(strings.Fields(text)) < minWords {
		return true, 0
	}
	confidence := d.detector.ComputeLanguageConfidence(text, lingua.Latin)
	lang, ok := d.Detect(text)
	if !ok {
		// Ambiguous; let the service decide.
		return true, confidence
	}
	return lang == lingua.Latin, confidence
}
