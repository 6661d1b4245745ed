package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/loomci/internal/secrets"
)

func TestWriter_SplitsLines(t *testing.T) {
	t.Parallel()

	buf := &Buffer{}
	w := NewWriter(buf, "build", "compile", "stdout", nil)

	fmt.Fprint(w, "first\nsec")
	fmt.Fprint(w, "ond\n")
	w.Flush()

	lines := buf.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, "first", lines[0].Text)
	require.Equal(t, "second", lines[1].Text)
	require.Equal(t, "build", lines[0].Job)
	require.Equal(t, "stdout", lines[0].Stream)
}

func TestWriter_FlushEmitsPartialLine(t *testing.T) {
	t.Parallel()

	buf := &Buffer{}
	w := NewWriter(buf, "build", "compile", "stderr", nil)

	fmt.Fprint(w, "no trailing newline")
	require.Empty(t, buf.Lines())

	w.Flush()
	require.Len(t, buf.Lines(), 1)
	require.Equal(t, "no trailing newline", buf.Lines()[0].Text)
}

func TestWriter_RedactsSecrets(t *testing.T) {
	t.Parallel()

	store := secrets.FromMap(map[string]string{"TOKEN": "hunter2"})
	buf := &Buffer{}
	w := NewWriter(buf, "deploy", "push", "stdout", store.Redact)

	fmt.Fprintln(w, "authenticating with hunter2")

	out := buf.String()
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, "authenticating with ***")
}

func TestFileSink_WritesJSONRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := NewFileSink(dir, "run-42")
	require.NoError(t, err)

	sink.Append(Line{Job: "a", Step: "s", Stream: "stdout", Text: "hello"})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "run-42.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"job":"a"`)
	require.Contains(t, string(data), `"text":"hello"`)
}

func TestFanout(t *testing.T) {
	t.Parallel()

	a, b := &Buffer{}, &Buffer{}
	f := Fanout{a, b}

	f.Append(Line{Text: "x"})

	require.Len(t, a.Lines(), 1)
	require.Len(t, b.Lines(), 1)
}
