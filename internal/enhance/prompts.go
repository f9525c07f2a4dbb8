package enhance

import (
	"fmt"
	"strings"
)

// Placeholder is the single substitution slot in a template body. The
// substitution is literal; the rendered text is never re-expanded.
const Placeholder = "{{TEXT}}"

// Template is one prompt: the preamble becomes the system turn, the body
// (containing exactly one Placeholder) becomes the user turn.
type Template struct {
	Preamble string
	Body     string
}

// Validate checks the single-placeholder invariant.
func (t Template) Validate() error {
	if n := strings.Count(t.Body, Placeholder); n != 1 {
		return fmt.Errorf("template body must contain exactly one %s placeholder, found %d", Placeholder, n)
	}
	return nil
}

// Render substitutes the original text into the placeholder. Literal
// replacement only.
func (t Template) Render(text string) string {
	return strings.Replace(t.Body, Placeholder, text, 1)
}

const basePreamble = `You are an OCR post-processing assistant. Improve the text you are given by:
1. Correcting spelling and OCR errors
2. Fixing formatting and spacing issues
3. Preserving the original structure and meaning
4. Maintaining all important information

IMPORTANT: Return ONLY the corrected text, without any explanations or comments.`

const baseBody = "Original OCR text:\n" + Placeholder + "\n\nCorrected text:"

// typeNotes are appended to the preamble per document type.
var typeNotes = map[DocumentType]string{
	DocCode:         "This appears to be code or technical documentation. Preserve code syntax, indentation, and technical terms exactly.",
	DocInvoice:      "This appears to be an invoice or receipt. Preserve numbers, dates, and financial information accurately.",
	DocForm:         "This appears to be a form. Preserve field labels and structure.",
	DocHandwritten:  "This text was recognized from handwriting. Expect heavier character confusion; reconstruct the most plausible reading.",
	DocMultilingual: "This text mixes languages. Keep each passage in its source language unless instructed otherwise.",
}

// viInstruction forces proper Vietnamese tone marks. OCR engines commonly
// strip diacritics; without this instruction models tend to leave the
// bare ASCII form alone.
const viInstruction = `
CRITICAL: If the text is in Vietnamese, you MUST add proper tone marks (dấu thanh):
- à, á, ả, ã, ạ for 'a' (and ă, â compounds with their tones)
- è, é, ẻ, ẽ, ẹ for 'e' (and ê compounds)
- ì, í, ỉ, ĩ, ị for 'i'
- ò, ó, ỏ, õ, ọ for 'o' (and ô, ơ compounds)
- ù, ú, ủ, ũ, ụ for 'u' (and ư compounds)
- ỳ, ý, ỷ, ỹ, ỵ for 'y'
- đ for 'd'
If the text is in another language, translate it to Vietnamese with proper tone marks.
Examples:
- "Truong Dai hoc" → "Trường Đại học"
- "Ha Noi" → "Hà Nội"
- "Viet Nam" → "Việt Nam"`

const enInstruction = "\nTranslate to English if the text is in another language."

// Catalog maps document types to templates, with caller overrides layered
// over the built-ins. Lookup never fails: a missing type falls back to
// general and reports it.
type Catalog struct {
	overrides map[DocumentType]Template
}

// NewCatalog creates a catalog with the given overrides. Each override is
// validated for the single-placeholder invariant.
func NewCatalog(overrides map[DocumentType]Template) (*Catalog, error) {
	for dt, tpl := range overrides {
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("override for %s: %w", dt, err)
		}
	}
	return &Catalog{overrides: overrides}, nil
}

// Lookup returns the template for a type plus whether the general
// fallback kicked in.
func (c *Catalog) Lookup(dt DocumentType) (Template, bool) {
	if c != nil && c.overrides != nil {
		if tpl, ok := c.overrides[dt]; ok {
			return tpl, false
		}
	}

	preamble := basePreamble
	fellBack := false
	if note, ok := typeNotes[dt]; ok {
		preamble = preamble + "\n\n" + note
	} else if dt != DocGeneral {
		fellBack = true
	}
	return Template{Preamble: preamble, Body: baseBody}, fellBack
}

// WithLanguage appends the target-language instruction to a template's
// preamble. Recognized targets are "vi" and "en"; anything else leaves
// the template untouched.
func (t Template) WithLanguage(lang string) Template {
	switch lang {
	case "vi":
		t.Preamble += "\n" + viInstruction
	case "en":
		t.Preamble += enInstruction
	}
	return t
}

// VisionPrompt is the single-turn prompt sent to vision-capable adapters
// alongside the page image.
func VisionPrompt(lang string) string {
	base := "Please extract and correct the text from this image, fixing any OCR errors."
	switch lang {
	case "vi":
		return base + `
CRITICAL: Ensure Vietnamese text has proper tone marks (dấu thanh):
- Use à, á, ả, ã, ạ, ă, ằ, ắ, ẳ, ẵ, ặ, â, ầ, ấ, ẩ, ẫ, ậ for 'a'
- Use è, é, ẻ, ẽ, ẹ, ê, ề, ế, ể, ễ, ệ for 'e'
- Use ò, ó, ỏ, õ, ọ, ô, ồ, ố, ổ, ỗ, ộ, ơ, ờ, ớ, ở, ỡ, ợ for 'o'
- Use ù, ú, ủ, ũ, ụ, ư, ừ, ứ, ử, ữ, ự for 'u'
- Use đ for 'd'
If text is in another language, translate to Vietnamese with proper tone marks.
Return ONLY the corrected text.`
	case "en":
		return base + " If text is in another language, translate to English. Return ONLY the corrected text."
	default:
		return base + " Return ONLY the corrected text."
	}
}
