package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/hilthontt/impostor/internal/domain"
)

// Alphabet leaves out characters that are easy to misread: 0, O, 1, I and L.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

type generator struct {
	alphabet string
	length   int
}

func NewGenerator() domain.CodeGenerator {
	return &generator{alphabet: Alphabet, length: domain.RoomCodeLength}
}

func (g *generator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))
	code := make([]byte, g.length)

	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code[i] = g.alphabet[n.Int64()]
	}

	return string(code), nil
}
