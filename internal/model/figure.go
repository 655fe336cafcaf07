package model

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Figure is a single analyzable figure in the registry: a named financial
// metric with a natural-language instruction describing how to extract it.
// ID doubles as the JSON object key the LLM is asked to fill in.
type Figure struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Order       int    `json:"order" yaml:"order"`
}

// Enabled filters a figure list down to the enabled entries, preserving order.
func EnabledFigures(figures []Figure) []Figure {
	var out []Figure
	for _, f := range figures {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// deaccent strips combining marks after NFD decomposition, so names like
// "Liikevaihto (€)" or "Résultat" produce clean ASCII slugs.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DeriveFigureID derives a JSON-key-safe slug from a display name: lowercase,
// non-alphanumeric runs collapsed to single underscores, leading and trailing
// underscores trimmed. Returns an error when nothing slug-worthy remains.
func DeriveFigureID(name string) (string, error) {
	s, _, err := transform.String(deaccent, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	id := strings.Trim(b.String(), "_")
	if id == "" {
		return "", eris.Errorf("model: cannot derive figure id from name %q", name)
	}
	return id, nil
}
