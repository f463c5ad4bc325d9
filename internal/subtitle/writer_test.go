package subtitle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSRT_RoundTrip(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out.srt")
	src := &File{
		Format: "SRT",
		Lines: []Line{
			{Index: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "Hello", TranslatedText: "Halo"},
			{Index: 2, StartTime: 3 * time.Second, EndTime: 4 * time.Second, Text: "No translation yet"},
		},
	}

	require.NoError(t, NewWriter().Write(out, src))

	reread, err := NewReader(out).Read()
	require.NoError(t, err)
	require.Len(t, reread.Lines, 2)
	assert.Equal(t, "Halo", reread.Lines[0].Text)
	// Untranslated lines fall back to the original text.
	assert.Equal(t, "No translation yet", reread.Lines[1].Text)
}

func TestWriteASS_PreservesHeaderAndPrefix(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "in.ass", sampleASS)
	file, err := NewReader(path).Read()
	require.NoError(t, err)

	file.Lines[0].TranslatedText = "Halo."

	out := filepath.Join(t.TempDir(), "out.ass")
	require.NoError(t, NewWriter().Write(out, file))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "[Script Info]")
	assert.Contains(t, content, "Dialogue: 0,0:00:01.00,0:00:03.50,Default,,0,0,0,,Halo.")
	assert.Contains(t, content, `Dialogue: 0,0:00:04.00,0:00:06.00,Signs,,0,0,0,,{\pos(640,120)}STATION`)
}
