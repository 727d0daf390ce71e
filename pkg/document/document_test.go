package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
)

func TestTextExtractor(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
		err      error
	}{
		{"Single page", "hello world", []string{"hello world"}, nil},
		{"Three pages", "one\ftwo\fthree", []string{"one", "two", "three"}, nil},
		{"Trailing form feed", "one\ftwo\f", []string{"one", "two"}, nil},
		{"Blank middle page", "one\f\fthree", []string{"one", "", "three"}, nil},
		{"Only a form feed", "\f", []string{""}, nil},
		{"Empty", "", nil, ErrNoPages},
		{"Invalid UTF-8", "\xff\xfe", nil, ErrInvalidText},
	}

	e := &TextExtractor{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pages, err := e.Extract([]byte(tc.input))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, pages)
		})
	}
}

func TestDetect(t *testing.T) {
	assert.Equal(t, "pdf", Detect("report.bin", []byte("%PDF-1.7\n...")).Name())
	assert.Equal(t, "pdf", Detect("report.PDF", []byte("garbage")).Name())
	assert.Equal(t, "text", Detect("notes.txt", []byte("hello")).Name())
	assert.Equal(t, "text", Detect("", nil).Name())
}

func TestPDFExtractor_Malformed(t *testing.T) {
	pages, err := (&PDFExtractor{}).Extract([]byte("%PDF-1.4 this is not really a pdf"))
	require.Error(t, err)
	require.Nil(t, pages)

	_, err = (&PDFExtractor{}).Extract(nil)
	require.ErrorIs(t, err, ErrNoPages)
}

func TestExtractPages(t *testing.T) {
	pages, err := ExtractPages("doc.txt", []byte("a\fb"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, pages)

	_, err = ExtractPages("doc.txt", nil)
	require.ErrorIs(t, err, ErrNoPages)
	require.Contains(t, err.Error(), "text extraction failed")
}

func TestHashPages(t *testing.T) {
	h := merkle.DefaultHasher()
	leaves := HashPages(h, []string{"data1", "data2"})

	require.Len(t, leaves, 2)
	assert.Equal(t, h.DigestLeaf([]byte("data1")), leaves[0])
	assert.Equal(t, h.DigestLeaf([]byte("data2")), leaves[1])

	root, err := merkle.Build(h, leaves)
	require.NoError(t, err)
	assert.Equal(t, h.DigestPair(leaves[0], leaves[1]), root.Hash)
}
