package roomcode_test

import (
	"strings"
	"testing"

	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/roomcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := roomcode.NewGenerator()
	seen := make(map[string]struct{})

	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, code, domain.RoomCodeLength)

		for _, c := range code {
			assert.True(t, strings.ContainsRune(roomcode.Alphabet, c), "unexpected character %q", c)
		}
		seen[code] = struct{}{}
	}

	assert.Greater(t, len(seen), 190)
}
