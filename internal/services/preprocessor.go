package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenRegex   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// TextNormalizer canonicalises free-form catalog text (keywords, equipment and
// category names) so that comparisons are insensitive to case and Unicode form.
type TextNormalizer struct {
	folder    cases.Caser
	stopWords map[string]bool
}

func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{
		folder:    cases.Fold(),
		stopWords: initializeStopWords(),
	}
}

// Name normalises a set member such as "Resistance Bands " to "resistance bands".
func (n *TextNormalizer) Name(raw string) string {
	cleaned := norm.NFKC.String(raw)
	cleaned = n.folder.String(cleaned)
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// NameSet normalises a list into a set, dropping empty members.
func (n *TextNormalizer) NameSet(raw []string) map[string]struct{} {
	set := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if name := n.Name(r); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// TermFrequencies splits keywords into tokens and counts them. Stop words and
// tokens shorter than two characters are dropped.
func (n *TextNormalizer) TermFrequencies(keywords []string) map[string]float64 {
	tf := make(map[string]float64)
	for _, kw := range keywords {
		for _, token := range strings.Fields(nonTokenRegex.ReplaceAllString(n.Name(kw), " ")) {
			if len([]rune(token)) < 2 || n.stopWords[token] {
				continue
			}
			tf[token]++
		}
	}
	return tf
}

func initializeStopWords() map[string]bool {
	stopWords := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "will", "with", "this", "but", "or", "into", "your",
	}

	stopWordMap := make(map[string]bool)
	for _, word := range stopWords {
		stopWordMap[word] = true
	}
	return stopWordMap
}
