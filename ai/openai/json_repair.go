package openai

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bareNumber    = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// repairJSON attempts to fix common JSON formatting issues in judge responses:
// a bare number instead of an object, keys missing their opening quote
// (`{score": 7}`), and trailing commas.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	if bareNumber.MatchString(s) {
		return `{"score":` + s + `}`
	}
	s = quoteKeys(s)
	return trailingComma.ReplaceAllString(s, "$1")
}

// quoteKeys adds the missing opening quote to keys that directly follow
// { or , and end with `":`.
func quoteKeys(s string) string {
	in := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(in); i++ {
		b.WriteRune(in[i])
		if in[i] != '{' && in[i] != ',' {
			continue
		}

		j := i + 1
		for j < len(in) && (in[j] == ' ' || in[j] == '\n' || in[j] == '\t') {
			j++
		}
		k := j
		for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
			k++
		}
		if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
			b.WriteString(string(in[i+1 : j]))
			b.WriteString(strconv.Quote(string(in[j:k])))
			b.WriteRune(':')
			i = k + 1
		}
	}
	return b.String()
}
