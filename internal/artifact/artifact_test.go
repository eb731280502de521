package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowsSplitsLinesAndCommas(t *testing.T) {
	rows, err := Rows([]byte("a,b\nc,d"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestRowsNormalizesCRLF(t *testing.T) {
	rows, err := Rows([]byte("Age,M,F\r\n0-4,10,11\r\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Age", "M", "F"}, {"0-4", "10", "11"}}, rows)
}

func TestRowsNaiveSplitOnQuotedComma(t *testing.T) {
	rows, err := Rows([]byte(`"x,y",z`))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{`"x`, `y"`, "z"}}, rows)
}

func TestRowsEmptyPayload(t *testing.T) {
	rows, err := Rows(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRowsRejectsInvalidUTF8(t *testing.T) {
	_, err := Rows([]byte{0xff, 0xfe, ','})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestWriterPath(t *testing.T) {
	w := NewWriter("data")
	assert.Equal(t, filepath.Join("data", "Spain", "1950.csv"), w.Path("Spain", 1950))
}

func TestWriterWriteAndOverwrite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Spain"), 0o755))
	w := NewWriter(root)

	path, n, err := w.Write("Spain", 1950, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Spain", "1950.csv"), path)
	assert.Equal(t, len("a,b\r\nc,d\r\ne,f\r\n"), n)

	path, _, err = w.Write("Spain", 1950, [][]string{{"a", "b"}})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\r\n", string(content))
}

func TestWriterMissingCountryDir(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, _, err := w.Write("Atlantis", 1950, [][]string{{"a"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRowsSplitsOnBareCR(t *testing.T) {
	rows, err := Rows([]byte("a,b\rc,d"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestRowsMixedTerminators(t *testing.T) {
	rows, err := Rows([]byte("a\r\nb\rc\nd\r"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}, {"d"}}, rows)
}

func TestRowsKeepsBlankLinesInside(t *testing.T) {
	rows, err := Rows([]byte("a,b\n\nc,d\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {""}, {"c", "d"}}, rows)
}

func TestRowsLongLine(t *testing.T) {
	long := strings.Repeat("x", 5<<20)
	rows, err := Rows([]byte("h\n" + long + ",y"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1][0], 5<<20)
	assert.Equal(t, "y", rows[1][1])
}

func TestScanLinesWaitsForLF(t *testing.T) {
	advance, token, err := scanLines([]byte("a\r"), false)
	require.NoError(t, err)
	assert.Zero(t, advance)
	assert.Nil(t, token)

	advance, token, err = scanLines([]byte("a\r"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, advance)
	assert.Equal(t, "a", string(token))
}

func TestEncodeRow(t *testing.T) {
	cases := map[string]struct {
		row  []string
		want string
	}{
		"plain":         {row: []string{"a", "b"}, want: "a,b"},
		"leading space": {row: []string{"Age", " M", " F"}, want: "Age, M, F"},
		"empty fields":  {row: []string{"a", "", "b"}, want: "a,,b"},
		"single empty":  {row: []string{""}, want: `""`},
		"quote":         {row: []string{`"x`, `y"`}, want: `"""x","y"""`},
		"comma":         {row: []string{"a,b"}, want: `"a,b"`},
		"line break":    {row: []string{"a\nb"}, want: "\"a\nb\""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, EncodeRow(tc.row))
		})
	}
}

func TestWriterRoundTripsPlainPayload(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Spain"), 0o755))
	w := NewWriter(root)

	rows, err := Rows([]byte("Age, M, F\n0-4, 10, 11"))
	require.NoError(t, err)
	path, _, err := w.Write("Spain", 1950, rows)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Age, M, F\r\n0-4, 10, 11\r\n", string(content))
}

func TestWriterBareCRAndBlankLine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Spain"), 0o755))
	w := NewWriter(root)

	rows, err := Rows([]byte("a,b\rc,d\n\ne,f"))
	require.NoError(t, err)
	path, _, err := w.Write("Spain", 1951, rows)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\r\nc,d\r\n\"\"\r\ne,f\r\n", string(content))
}
