package lexical

import "strings"

const punctuation = ".,!?;:'\"-()[]{}<>*_`#/\\|"

// Tokenize splits text on whitespace, lowercases and trims punctuation.
// Tokens that are punctuation only are dropped.
func Tokenize(text string) []string {
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, punctuation))
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}

	return tokens
}
