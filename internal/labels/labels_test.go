package labels

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsIndexAlignment(t *testing.T) {
	input := "\ufeff  cat \n\ndog\r\n  \nbird"
	table, err := Parse(strings.NewReader(input), English)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "", "dog", "", "bird"}, table.Labels())
	assert.Equal(t, 5, table.Len())
}

func TestParse_NormalizesToNFC(t *testing.T) {
	// a followed by a combining ring above
	table, err := Parse(strings.NewReader("ba\u030at\n"), Norwegian)
	require.NoError(t, err)
	assert.Equal(t, "båt", table.Resolve(0))
}

func TestResolve(t *testing.T) {
	en := NewTable(English, []string{"person", "bicycle"})
	no := NewTable(Norwegian, []string{"person", "sykkel"})

	assert.Equal(t, "bicycle", Resolve(1, en))
	assert.Equal(t, "sykkel", Resolve(1, no))
	assert.Equal(t, "unknown", Resolve(9999, en))
	assert.Equal(t, "ukjent", Resolve(9999, no))
	assert.Equal(t, "unknown", Resolve(-1, en))
	assert.Equal(t, "unknown", Resolve(0, nil))
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]Language{"en": English, "EN": English, "no": Norwegian, "nb": Norwegian, "norsk": Norwegian} {
		got, err := ParseLanguage(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLanguage("sv")
	require.Error(t, err)
}

func TestCOCO(t *testing.T) {
	en := COCO(English)
	no := COCO(Norwegian)
	require.Equal(t, 80, en.Len())
	require.Equal(t, 80, no.Len())

	assert.Equal(t, "person", en.Resolve(0))
	assert.Equal(t, "dog", en.Resolve(16))
	assert.Equal(t, "hund", no.Resolve(16))
	assert.Equal(t, "toothbrush", en.Resolve(79))
	assert.Equal(t, "tannbørste", no.Resolve(79))
	for i, label := range no.Labels() {
		assert.NotEmpty(t, label, "index %d", i)
	}
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "hund", Translate("dog"))
	assert.Equal(t, "hund", Translate("Dog"))
	assert.Equal(t, "eple", Translate("APPLE"))
	assert.Equal(t, "(Granny Smith)", Translate("Granny Smith"))
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "labels"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels", "labels_in1k.txt"), []byte("tench\ngoldfish\ndog\n"), 0o600))

	set, err := LoadSet(dir)
	require.NoError(t, err)

	assert.Equal(t, Pair{EN: "car", NO: "bil"}, set.Detector(2))
	assert.Equal(t, Pair{EN: "unknown", NO: "ukjent"}, set.Detector(80))

	// No Norwegian ImageNet file: dictionary fallback.
	assert.Equal(t, Pair{EN: "dog", NO: "hund"}, set.Classifier(2))
	assert.Equal(t, Pair{EN: "goldfish", NO: "(goldfish)"}, set.Classifier(1))
	assert.Equal(t, Pair{EN: "unknown", NO: "ukjent"}, set.Classifier(1000))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels", "labels_in1k_norsk.txt"), []byte("suter\ngullfisk\nhund\n"), 0o600))
	set, err = LoadSet(dir)
	require.NoError(t, err)
	assert.Equal(t, Pair{EN: "goldfish", NO: "gullfisk"}, set.Classifier(1))
	assert.Equal(t, Pair{EN: "unknown", NO: "ukjent"}, set.Classifier(3))
}

func TestLoadSet_MissingClassifierLabels(t *testing.T) {
	set, err := LoadSet(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, set.ClassifierEN.Len())
	assert.Equal(t, Pair{EN: "unknown", NO: "ukjent"}, set.Classifier(0))
}

func TestLoadTable_Missing(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "none.txt"), English)
	require.Error(t, err)
}
