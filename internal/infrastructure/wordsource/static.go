package wordsource

import (
	"bufio"
	"context"
	_ "embed"
	"math/rand/v2"
	"strings"

	"github.com/hilthontt/impostor/internal/domain"
)

//go:embed words.txt
var embeddedWords string

type staticSource struct {
	words []string
}

// NewStaticSource picks uniformly from words, or from the embedded list when words is empty.
func NewStaticSource(words ...string) domain.WordSource {
	if len(words) == 0 {
		words = parseWords(embeddedWords)
	}
	return &staticSource{words: words}
}

func (s *staticSource) FetchWord(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.words[rand.IntN(len(s.words))], nil
}

func parseWords(text string) []string {
	var words []string

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, word)
	}

	return words
}
