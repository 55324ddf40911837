// Package tokenizer implements the CLIP byte-level BPE text tokenizer (C4):
// it turns a search query into the fixed-length input_ids/attention_mask
// pair the text encoder expects, using the vocabulary and merge table shipped
// in the downloaded tokenizer.json.
package tokenizer

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

const (
	BOSTokenID = 49406
	EOSTokenID = 49407
	PADTokenID = 0
	MaxLength  = 77
)

// Output is a tokenized query ready to feed the text encoder.
type Output struct {
	InputIDs      [MaxLength]int64
	AttentionMask [MaxLength]int64
}

// splitPattern mirrors the GPT-2/CLIP word-splitting regex: contractions,
// runs of letters, runs of digits, or a single non-space non-word symbol.
var splitPattern = regexp.MustCompile(`(?i)'s|'t|'re|'ve|'m|'ll|'d|[a-zA-Z]+|[0-9]+|[^\s\w]`)

// Tokenizer holds a loaded vocabulary and merge table. It is safe for
// concurrent use once Load has completed.
type Tokenizer struct {
	mu     sync.RWMutex
	loaded bool
	vocab  map[string]int64
	merges map[string]int

	byteEncoder map[byte]rune
}

// New returns a Tokenizer that must be populated with Load before use.
func New() *Tokenizer {
	return &Tokenizer{byteEncoder: buildByteEncoder()}
}

type tokenizerFile struct {
	Model struct {
		Vocab  map[string]int64 `json:"vocab"`
		Merges []string         `json:"merges"`
	} `json:"model"`
}

// Load parses tokenizer.json (as shipped by the configured Hugging Face
// repository) into the vocabulary and BPE merge-rank tables.
func (t *Tokenizer) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to read tokenizer file", err)
	}

	var tf tokenizerFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to parse tokenizer file", err)
	}

	merges := make(map[string]int, len(tf.Model.Merges))
	for i, m := range tf.Model.Merges {
		merges[m] = i
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.vocab = tf.Model.Vocab
	t.merges = merges
	t.loaded = true
	return nil
}

// IsLoaded reports whether Load has completed successfully.
func (t *Tokenizer) IsLoaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Tokenize lowercases and BPE-encodes text, returning a fixed-length
// [BOS, ...content (truncated to 75 tokens)..., EOS, PAD...] sequence.
func (t *Tokenizer) Tokenize(text string) (Output, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded {
		return Output{}, apperror.New(apperror.KindNotReady, "tokenizer not loaded")
	}

	text = strings.ToLower(strings.TrimSpace(text))

	var ids []int64
	for _, word := range splitPattern.FindAllString(text, -1) {
		chars := t.wordToSymbols(word)
		for _, sym := range t.applyBPE(chars) {
			if id, ok := t.vocab[sym]; ok {
				ids = append(ids, id)
			}
		}
	}

	var out Output
	out.InputIDs[0] = BOSTokenID
	out.AttentionMask[0] = 1

	maxContentLen := MaxLength - 2
	contentLen := len(ids)
	if contentLen > maxContentLen {
		contentLen = maxContentLen
	}
	for i := 0; i < contentLen; i++ {
		out.InputIDs[i+1] = ids[i]
		out.AttentionMask[i+1] = 1
	}
	out.InputIDs[contentLen+1] = EOSTokenID
	out.AttentionMask[contentLen+1] = 1

	return out, nil
}

// wordToSymbols maps word's UTF-8 bytes through the byte-to-unicode table,
// splits into one symbol per mapped rune, and appends the end-of-word marker
// to the last symbol.
func (t *Tokenizer) wordToSymbols(word string) []string {
	symbols := make([]string, 0, len(word))
	for _, b := range []byte(word) {
		symbols = append(symbols, string(t.byteEncoder[b]))
	}
	if len(symbols) > 0 {
		symbols[len(symbols)-1] += "</w>"
	}
	return symbols
}

// applyBPE repeatedly merges the highest-priority adjacent pair until no
// known merge applies, matching the reference greedy BPE loop.
func (t *Tokenizer) applyBPE(symbols []string) []string {
	if len(symbols) <= 1 {
		return symbols
	}

	tokens := append([]string{}, symbols...)
	for {
		bestRank := int(^uint(0) >> 1)
		bestIdx := -1
		for i := 0; i < len(tokens)-1; i++ {
			pair := tokens[i] + " " + tokens[i+1]
			if rank, ok := t.merges[pair]; ok && rank < bestRank {
				bestRank = rank
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		merged := tokens[bestIdx] + tokens[bestIdx+1]
		tokens = append(tokens[:bestIdx], append([]string{merged}, tokens[bestIdx+2:]...)...)
	}
	return tokens
}

// buildByteEncoder maps byte values 0-255 to printable Unicode runes, the
// GPT-2/CLIP convention for representing arbitrary bytes as vocabulary
// symbols without ever emitting an unprintable or whitespace character.
func buildByteEncoder() map[byte]rune {
	printable := make(map[int]bool)
	var bs []int
	for i := '!'; i <= '~'; i++ {
		bs = append(bs, int(i))
		printable[int(i)] = true
	}
	for i := 161; i <= 172; i++ {
		bs = append(bs, i)
		printable[i] = true
	}
	for i := 174; i <= 255; i++ {
		bs = append(bs, i)
		printable[i] = true
	}

	encoder := make(map[byte]rune, 256)
	n := 0
	for b := 0; b < 256; b++ {
		if !printable[b] {
			bs = append(bs, b)
			encoder[byte(b)] = rune(256 + n)
			n++
		}
	}
	for _, b := range bs {
		if _, ok := encoder[byte(b)]; !ok {
			encoder[byte(b)] = rune(b)
		}
	}
	return encoder
}
