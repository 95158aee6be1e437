package embedding

import "testing"

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if attn[0] != 1 {
		t.Error("attention[0] should be 1")
	}
}

func TestSplitWords(t *testing.T) {
	words := splitWords("  a  b  c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if splitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString_Deterministic(t *testing.T) {
	if hashString("abc") != hashString("abc") {
		t.Error("hash should be deterministic")
	}
	if hashString("abc") < 0 {
		t.Error("hash should be non-negative")
	}
}
