package features

import "strings"

// Tokenize splits pre-formatted document text on whitespace
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// NGrams produces every 1..gramSize word window of text as a feature.
//
// All unigrams come first in document order, then all bigrams, and so on.
// Repeated words and phrases are kept so that their multiplicity carries
// weight during scoring. A gramSize below 1 is treated as 1.
func NGrams(text string, gramSize int) []string {
	return FromTokens(Tokenize(text), gramSize)
}

// FromTokens is NGrams over an already tokenized document
func FromTokens(tokens []string, gramSize int) []string {
	if gramSize < 1 {
		gramSize = 1
	}
	if len(tokens) == 0 {
		return []string{}
	}

	out := make([]string, 0, capacity(len(tokens), gramSize))
	out = append(out, tokens...)

	var b strings.Builder
	for k := 2; k <= gramSize && k <= len(tokens); k++ {
		for i := 0; i+k <= len(tokens); i++ {
			b.Reset()
			for j := i; j < i+k; j++ {
				if j > i {
					b.WriteByte(' ')
				}
				b.WriteString(tokens[j])
			}
			out = append(out, b.String())
		}
	}

	return out
}

// Counts collapses a feature list into term frequencies, returning the
// distinct features in first-occurrence order alongside their counts.
func Counts(features []string) ([]string, map[string]int) {
	tf := make(map[string]int, len(features))
	order := make([]string, 0, len(features))
	for _, f := range features {
		if _, seen := tf[f]; !seen {
			order = append(order, f)
		}
		tf[f]++
	}
	return order, tf
}

func capacity(n, g int) int {
	total := 0
	for k := 1; k <= g && k <= n; k++ {
		total += n - k + 1
	}
	return total
}
