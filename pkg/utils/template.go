package utils

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	spintaxPattern     = regexp.MustCompile(`\{([^{}]*\|[^{}]*)\}`)
)

// FieldKey folds a placeholder or field name so that case, diacritics,
// whitespace and underscores do not matter: "Nombre_Completo" and
// "nombre completo" share a key.
func FieldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' {
			return -1
		}
		return unicode.ToLower(r)
	}, folded)
}

// Template renders message bodies. Intn picks spintax options; nil uses
// math/rand.
type Template struct {
	Intn func(n int) int
}

// Render substitutes {{field}} placeholders from fields, then resolves
// {a|b|c} groups, innermost first. Unknown placeholders render empty.
func (t Template) Render(body string, fields map[string]string) string {
	folded := make(map[string]string, len(fields))
	for k, v := range fields {
		folded[FieldKey(k)] = v
	}

	out := placeholderPattern.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return folded[FieldKey(name)]
	})

	intn := t.Intn
	if intn == nil {
		intn = rand.IntN
	}
	for spintaxPattern.MatchString(out) {
		out = spintaxPattern.ReplaceAllStringFunc(out, func(m string) string {
			options := strings.Split(m[1:len(m)-1], "|")
			return options[intn(len(options))]
		})
	}
	return out
}
