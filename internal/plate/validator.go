package plate

import (
	"sort"
	"strings"

	"platescan/internal/domain"
)

// Words that appear on plates but are never the plate number.
var blacklist = map[string]struct{}{
	"BRASIL":   {},
	"BRAZIL":   {},
	"MERCOSUL": {},
	"MERCOSUR": {},
	"BR":       {},
}

// correctionPenalty is subtracted from a candidate's confidence per
// confusion-table substitution, so an exact read outranks a corrected one
// at equal engine confidence.
const correctionPenalty = 0.05

// Match is a pattern-conforming plate reading selected from the engine's
// candidates.
type Match struct {
	Text       string
	Pattern    string
	Confidence float64
	Corrected  bool
}

// Validator checks OCR candidates against a configured set of accepted
// plate grammars.
type Validator struct {
	patterns []Pattern
}

// NewValidator builds a validator over the given accepted patterns.
func NewValidator(patterns ...Pattern) *Validator {
	return &Validator{patterns: patterns}
}

// NewValidatorFromNames resolves pattern names (built-ins or L/D specs).
func NewValidatorFromNames(names []string) (*Validator, error) {
	patterns := make([]Pattern, 0, len(names))
	for _, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return NewValidator(patterns...), nil
}

// Normalize strips everything but alphanumerics and uppercases, matching
// how plates are printed.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return b.String()
}

// Validate checks a single candidate against the accepted grammars and
// returns the best match, or nil when the text fits none of them.
func (v *Validator) Validate(c domain.Candidate) *Match {
	text := Normalize(c.Text)
	if text == "" {
		return nil
	}
	if _, banned := blacklist[text]; banned {
		return nil
	}

	// Exact grammar match wins outright.
	for _, p := range v.patterns {
		if p.Matches(text) {
			return &Match{Text: text, Pattern: p.Name, Confidence: c.Confidence}
		}
	}

	// Otherwise try confusion-table corrections per pattern and keep the
	// cheapest one that conforms.
	var best *Match
	for _, p := range v.patterns {
		corrected, n := p.Correct(text)
		if n == 0 || !p.Matches(corrected) {
			continue
		}
		conf := c.Confidence - float64(n)*correctionPenalty
		if conf < 0 {
			conf = 0
		}
		if best == nil || conf > best.Confidence {
			best = &Match{Text: corrected, Pattern: p.Name, Confidence: conf, Corrected: true}
		}
	}
	return best
}

// Best validates every candidate and selects the winner: grammar validity
// first, then highest confidence. A high-confidence reading that fits no
// accepted pattern never beats a lower-confidence one that does.
func (v *Validator) Best(candidates []domain.Candidate) *Match {
	matches := make([]*Match, 0, len(candidates))
	for _, c := range candidates {
		if m := v.Validate(c); m != nil {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Corrected != matches[j].Corrected {
			return !matches[i].Corrected
		}
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches[0]
}
