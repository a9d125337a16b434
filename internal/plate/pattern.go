package plate

import (
	"fmt"
	"strings"
)

type posType byte

const (
	posLetter posType = 'L'
	posDigit  posType = 'D'
)

// Pattern is a fixed-length plate grammar: one expected character class per
// position. Patterns are described with 'L' (letter) and 'D' (digit), e.g.
// "LLLDDDD" for the pre-2018 Brazilian format ABC1234.
type Pattern struct {
	Name      string
	Example   string
	positions []posType
}

// ParsePattern builds a Pattern from an L/D position string.
func ParsePattern(name, spec string) (Pattern, error) {
	if spec == "" {
		return Pattern{}, fmt.Errorf("pattern %s: empty spec", name)
	}
	positions := make([]posType, len(spec))
	example := make([]byte, len(spec))
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case 'L':
			positions[i] = posLetter
			example[i] = byte('A' + i%26)
		case 'D':
			positions[i] = posDigit
			example[i] = byte('0' + i%10)
		default:
			return Pattern{}, fmt.Errorf("pattern %s: position %d: want L or D, got %q", name, i, spec[i])
		}
	}
	return Pattern{Name: name, Example: string(example), positions: positions}, nil
}

// MustParse is ParsePattern for the built-in patterns.
func MustParse(name, spec string) Pattern {
	p, err := ParsePattern(name, spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Built-in grammars. BROld is the pre-2018 Brazilian format (ABC1234),
// BRMercosul the 2018+ Mercosul format (ABC1D23).
var (
	BROld      = MustParse("BR_OLD", "LLLDDDD")
	BRMercosul = MustParse("BR_MERCOSUL", "LLLDLDD")
)

var builtins = map[string]Pattern{
	BROld.Name:      BROld,
	BRMercosul.Name: BRMercosul,
}

// Lookup resolves a named built-in pattern, or parses the name as an L/D
// spec so deployments can configure ad-hoc grammars.
func Lookup(name string) (Pattern, error) {
	if p, ok := builtins[name]; ok {
		return p, nil
	}
	if isSpec(name) {
		return ParsePattern(name, name)
	}
	return Pattern{}, fmt.Errorf("unknown plate pattern %q", name)
}

func isSpec(s string) bool {
	if s == "" {
		return false
	}
	return strings.Trim(s, "LD") == ""
}

// Len returns the number of positions in the pattern.
func (p Pattern) Len() int { return len(p.positions) }

// Matches reports whether normalized text conforms to the grammar exactly.
func (p Pattern) Matches(text string) bool {
	if len(text) != len(p.positions) {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch p.positions[i] {
		case posLetter:
			if c < 'A' || c > 'Z' {
				return false
			}
		case posDigit:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// OCR confusion tables: characters tesseract and friends habitually swap
// when the expected class is known.
var letterToDigit = map[byte]byte{
	'O': '0', 'Q': '0', 'D': '0',
	'I': '1', 'L': '1',
	'Z': '2',
	'S': '5',
	'G': '6',
	'B': '8',
}

var digitToLetter = map[byte]byte{
	'0': 'O',
	'1': 'I',
	'2': 'Z',
	'5': 'S',
	'6': 'G',
	'8': 'B',
}

// Correct rewrites confusable characters toward the grammar's expected
// class. It returns the corrected text and the number of substitutions; the
// result is only meaningful when it then Matches.
func (p Pattern) Correct(text string) (string, int) {
	if len(text) != len(p.positions) {
		return text, 0
	}
	chars := []byte(text)
	corrections := 0
	for i, c := range chars {
		switch p.positions[i] {
		case posLetter:
			if c >= '0' && c <= '9' {
				if repl, ok := digitToLetter[c]; ok {
					chars[i] = repl
					corrections++
				}
			}
		case posDigit:
			if c >= 'A' && c <= 'Z' {
				if repl, ok := letterToDigit[c]; ok {
					chars[i] = repl
					corrections++
				}
			}
		}
	}
	return string(chars), corrections
}
