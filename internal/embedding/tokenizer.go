package embedding

// Tokenizer produces the three BERT-style input tensors: input_ids,
// attention_mask, and token_type_ids.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer hashes whitespace-split words into token IDs. It stands in
// for a real WordPiece vocabulary; adequate for models that tolerate
// approximate tokenization, and for tests.
type SimpleTokenizer struct{}

// Tokenize emits [CLS] word-hashes... [SEP], zero-padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, word := range splitWords(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(hashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// splitWords splits on spaces, tabs, and newlines. All-blank input yields nil.
func splitWords(text string) []string {
	var words []string
	start := -1
	for i, r := range text {
		switch r {
		case ' ', '\n', '\t':
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

// hashString is a deterministic non-negative string hash, shared with the
// mock embedder.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
