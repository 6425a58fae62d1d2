package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids.
const (
	clsToken = 101
	sepToken = 102
	// firstWordID keeps hashed ids clear of the special and unused low range of a BERT vocabulary.
	firstWordID = 1000
)

// Tokenizer fills the inputs of a BERT-style model for one text. The slices share one length,
// the model's sequence length, and arrive zeroed.
type Tokenizer interface {
	Encode(text string, inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps lowercased words onto hashed vocabulary ids. It does not reproduce a
// model's real vocabulary, so it suits models trained on it or smoke tests only.
type HashTokenizer struct {
	VocabSize int
}

// Encode writes [CLS] word... [SEP], truncating words that do not fit.
func (t HashTokenizer) Encode(text string, inputIDs, attentionMask, tokenTypeIDs []int64) {
	n := len(inputIDs)
	if n < 2 {
		return
	}
	vocab := t.VocabSize
	if vocab <= firstWordID {
		vocab = 30522
	}
	inputIDs[0], attentionMask[0] = clsToken, 1
	pos := 1
	for _, w := range words(text) {
		if pos == n-1 {
			break
		}
		inputIDs[pos] = int64(firstWordID + hashWord(w)%uint32(vocab-firstWordID))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos], attentionMask[pos] = sepToken, 1
}

// words splits lowercased text on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashWord(w string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return h.Sum32()
}
