package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func encode(text string, n int) (ids, mask, types []int64) {
	ids, mask, types = make([]int64, n), make([]int64, n), make([]int64, n)
	HashTokenizer{}.Encode(text, ids, mask, types)
	return ids, mask, types
}

func TestHashTokenizer_Encode(t *testing.T) {
	ids, mask, types := encode("Hello, world", 6)
	assert.Equal(t, int64(clsToken), ids[0])
	assert.Equal(t, int64(sepToken), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0}, mask)
	assert.Equal(t, make([]int64, 6), types)
	assert.GreaterOrEqual(t, ids[1], int64(firstWordID))
	assert.NotEqual(t, ids[1], ids[2])
}

func TestHashTokenizer_Truncates(t *testing.T) {
	ids, mask, _ := encode("one two three four five", 4)
	assert.Equal(t, int64(sepToken), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1}, mask)
}

func TestHashTokenizer_CaseInsensitive(t *testing.T) {
	a, _, _ := encode("Sky", 4)
	b, _, _ := encode("sky", 4)
	assert.Equal(t, a, b)
}

func TestHashTokenizer_TooShort(t *testing.T) {
	ids, _, _ := encode("anything", 1)
	assert.Equal(t, []int64{0}, ids)
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"the", "sky", "is", "blue", "42"}, words("  The sky/is BLUE (42)! "))
	assert.Empty(t, words(" ... "))
}
