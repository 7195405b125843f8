package wordsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hilthontt/impostor/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 64 << 10

type httpSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource fetches words from an API that answers with a JSON array of strings.
func NewHTTPSource(url string, timeout time.Duration) domain.WordSource {
	return &httpSource{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *httpSource) FetchWord(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build word request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch word: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("word api returned status %d", resp.StatusCode)
	}

	var words []string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&words); err != nil {
		return "", fmt.Errorf("failed to decode word response: %w", err)
	}

	if len(words) == 0 || strings.TrimSpace(words[0]) == "" {
		return "", fmt.Errorf("word api returned no words")
	}

	return strings.TrimSpace(words[0]), nil
}
