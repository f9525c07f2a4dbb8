package enhance

import (
	"strings"
	"unicode"
)

// Improvement tag labels. Advisory only; computed by character-class
// comparison between original and enhanced text.
const (
	TagDiacritics  = "diacritics added"
	TagDigitLetter = "digit→letter substitutions corrected"
	TagPunctuation = "punctuation added"
	TagLineBreaks  = "line breaks normalized"
	TagContent     = "content corrected"
)

type charClasses struct {
	digits     int
	letters    int
	diacritics int
	puncts     int
	newlines   int
}

func classify(text string) charClasses {
	var c charClasses
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			c.digits++
		case unicode.IsLetter(r):
			c.letters++
			// Letters beyond ASCII are overwhelmingly diacritic forms
			// in the OCR languages this serves.
			if r > 127 {
				c.diacritics++
			}
		case unicode.IsPunct(r):
			c.puncts++
		case r == '\n':
			c.newlines++
		}
	}
	return c
}

// DetectImprovements compares the two texts at the character-class level
// and returns the applicable tags. Best effort; an empty list never
// signals an error.
func DetectImprovements(original, enhanced string) []string {
	if enhanced == "" || original == enhanced {
		return nil
	}

	o := classify(original)
	e := classify(enhanced)

	var tags []string
	if e.diacritics > o.diacritics {
		tags = append(tags, TagDiacritics)
	}
	if e.digits < o.digits && e.letters > o.letters {
		tags = append(tags, TagDigitLetter)
	}
	if e.puncts > o.puncts {
		tags = append(tags, TagPunctuation)
	}
	if e.newlines != o.newlines {
		tags = append(tags, TagLineBreaks)
	}
	if len(tags) == 0 && !strings.EqualFold(original, enhanced) {
		tags = append(tags, TagContent)
	}
	return tags
}
