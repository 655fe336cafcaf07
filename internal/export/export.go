// Package export turns typed extraction results into downloadable files:
// pretty-printed JSON or a spreadsheet whose column layout follows the result
// variant.
package export

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/late7/ai-doc-reader/internal/model"
)

// Filename derives a download filename from a workspace or company name:
// non-alphanumeric runs collapse to underscores.
func Filename(name, ext string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	base := strings.Trim(b.String(), "_")
	if base == "" {
		base = "analysis"
	}
	return base + "." + ext
}

// WriteJSON writes the result payload as pretty-printed JSON with 2-space
// indentation.
func WriteJSON(w io.Writer, result model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result.Payload()); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// WriteAnswersJSON writes question answers as pretty-printed JSON.
func WriteAnswersJSON(w io.Writer, answers []model.QuestionAnswer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(answers); err != nil {
		return eris.Wrap(err, "export: encode answers json")
	}
	return nil
}
