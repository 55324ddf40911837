package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")
	contents := `{"model":{"vocab":{"cat</w>":500,"c":1,"a":2,"t</w>":3},"merges":["c a","ca t</w>"]}}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestTokenizeBeforeLoadIsNotReady(t *testing.T) {
	tok := New()
	_, err := tok.Tokenize("cat")
	assert.Error(t, err)
}

func TestLoadAndTokenizeMergesGreedily(t *testing.T) {
	tok := New()
	require.NoError(t, tok.Load(writeFixture(t)))
	assert.True(t, tok.IsLoaded())

	out, err := tok.Tokenize("cat")
	require.NoError(t, err)

	assert.Equal(t, int64(BOSTokenID), out.InputIDs[0])
	assert.Equal(t, int64(1), out.AttentionMask[0])
	assert.Equal(t, int64(500), out.InputIDs[1])
	assert.Equal(t, int64(1), out.AttentionMask[1])
	assert.Equal(t, int64(EOSTokenID), out.InputIDs[2])
	assert.Equal(t, int64(1), out.AttentionMask[2])

	for i := 3; i < MaxLength; i++ {
		assert.Equal(t, int64(PADTokenID), out.InputIDs[i])
		assert.Equal(t, int64(0), out.AttentionMask[i])
	}
}

func TestTokenizeEmptyStringIsJustBosEos(t *testing.T) {
	tok := New()
	require.NoError(t, tok.Load(writeFixture(t)))

	out, err := tok.Tokenize("")
	require.NoError(t, err)
	assert.Equal(t, int64(BOSTokenID), out.InputIDs[0])
	assert.Equal(t, int64(EOSTokenID), out.InputIDs[1])
	assert.Equal(t, int64(0), out.AttentionMask[2])
}

func TestTokenizeTruncatesLongInput(t *testing.T) {
	tok := New()
	require.NoError(t, tok.Load(writeFixture(t)))

	long := ""
	for i := 0; i < 200; i++ {
		long += "cat "
	}
	out, err := tok.Tokenize(long)
	require.NoError(t, err)

	assert.Equal(t, int64(BOSTokenID), out.InputIDs[0])
	assert.Equal(t, int64(EOSTokenID), out.InputIDs[MaxLength-1])
	for i := 1; i < MaxLength-1; i++ {
		assert.NotEqual(t, int64(PADTokenID), out.InputIDs[i])
	}
}
