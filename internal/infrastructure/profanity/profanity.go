package profanity

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	defaultFilter *ProfanityFilter
	defaultErr    error
	once          sync.Once
)

//go:embed words.json
var jsonData embed.FS

func LoadBannedWords() ([]string, error) {
	data, err := jsonData.ReadFile("words.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded word list: %w", err)
	}

	var bannedWords []string
	if err := json.Unmarshal(data, &bannedWords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal word list: %w", err)
	}
	return bannedWords, nil
}

type ProfanityFilter struct {
	regex *regexp.Regexp
}

// NewProfanityFilter returns the shared filter built from the embedded word list.
func NewProfanityFilter() (*ProfanityFilter, error) {
	once.Do(func() {
		words, err := LoadBannedWords()
		if err != nil {
			defaultErr = err
			return
		}
		defaultFilter = NewFilter(words...)
	})

	return defaultFilter, defaultErr
}

// NewFilter builds a filter over the given words.
func NewFilter(words ...string) *ProfanityFilter {
	return &ProfanityFilter{regex: buildMasterRegex(words)}
}

func (pf *ProfanityFilter) ContainsProfanity(text string) bool {
	if pf == nil || pf.regex == nil || text == "" {
		return false
	}

	return pf.regex.MatchString(normalizeText(text))
}

var (
	leetReplacer = strings.NewReplacer(
		"@", "a", "4", "a",
		"3", "e",
		"1", "i", "!", "i", "|", "i",
		"0", "o",
		"$", "s", "5", "s",
		"7", "t", "+", "t",
		"ph", "f",
	)
	separators = regexp.MustCompile(`[\s_.\-*/\\]+`)
)

func normalizeText(text string) string {
	s := strings.ToLower(text)
	s = strings.Map(func(r rune) rune {
		switch r {
		case 'á', 'à', 'â', 'ä', 'ã', 'å':
			return 'a'
		case 'é', 'è', 'ê', 'ë':
			return 'e'
		case 'í', 'ì', 'î', 'ï':
			return 'i'
		case 'ó', 'ò', 'ô', 'ö', 'õ':
			return 'o'
		case 'ú', 'ù', 'û', 'ü':
			return 'u'
		default:
			return r
		}
	}, s)

	s = leetReplacer.Replace(s)
	return separators.ReplaceAllString(s, " ")
}

func buildMasterRegex(words []string) *regexp.Regexp {
	patterns := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}

		// every letter may repeat and be split by a single separator: f.u.u.c k
		var b strings.Builder
		for i, r := range word {
			if i > 0 {
				b.WriteString(` ?`)
			}
			b.WriteString(regexp.QuoteMeta(string(r)))
			b.WriteString(`+`)
		}
		patterns = append(patterns, b.String())
	}

	if len(patterns) == 0 {
		return nil
	}

	return regexp.MustCompile(`(?:^|[^\p{L}])(?:` + strings.Join(patterns, "|") + `)(?:$|[^\p{L}])`)
}
