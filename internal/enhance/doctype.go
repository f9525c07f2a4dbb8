package enhance

import (
	"regexp"
	"strings"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
)

// DocumentType is a closed enumeration. Every value has a prompt template
// in the catalog; adding a value means adding a template.
type DocumentType string

const (
	DocUnknown      DocumentType = "unknown"
	DocGeneral      DocumentType = "general"
	DocCode         DocumentType = "code"
	DocInvoice      DocumentType = "invoice"
	DocForm         DocumentType = "form"
	DocHandwritten  DocumentType = "handwritten"
	DocMultilingual DocumentType = "multilingual"
)

// KnownDocumentTypes lists every type the catalog must cover.
var KnownDocumentTypes = []DocumentType{
	DocGeneral, DocCode, DocInvoice, DocForm, DocHandwritten, DocMultilingual,
}

// ParseDocumentType normalizes a caller-supplied string. Anything
// unrecognized maps to unknown so classification can take over.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case DocGeneral:
		return DocGeneral
	case DocCode:
		return DocCode
	case DocInvoice:
		return DocInvoice
	case DocForm:
		return DocForm
	case DocHandwritten:
		return DocHandwritten
	case DocMultilingual:
		return DocMultilingual
	default:
		return DocUnknown
	}
}

// Hint maps a document type onto the adapter-level model hint.
func (t DocumentType) Hint() ai.DocumentHint {
	if t == DocCode {
		return ai.HintCode
	}
	return ai.HintNone
}

var (
	codeFenceRe   = regexp.MustCompile("(?s)```.*```|~~~")
	codeKeywordRe = regexp.MustCompile(`\b(func|def|class|import|return|public|private|const|var|if\s*\(|for\s*\(|#include|package)\b`)
	currencyRe    = regexp.MustCompile(`[$€£₫¥]|\bVND\b|\bUSD\b|\bEUR\b`)
	dateRe        = regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`)
	formFieldRe   = regexp.MustCompile(`(?m)^\s*[\p{L} ]{2,24}:\s*\S`)
)

// ClassifyDocument picks a type for text the caller tagged unknown. The
// heuristics are coarse on purpose: a wrong guess only changes the prompt
// flavor, never correctness.
func ClassifyDocument(text string) DocumentType {
	if codeFenceRe.MatchString(text) || len(codeKeywordRe.FindAllString(text, 3)) >= 2 {
		return DocCode
	}
	if currencyRe.MatchString(text) && dateRe.MatchString(text) {
		return DocInvoice
	}
	// Several short label:value lines suggest a form.
	if len(formFieldRe.FindAllString(text, 4)) >= 3 {
		return DocForm
	}
	return DocGeneral
}
