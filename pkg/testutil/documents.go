package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Layr-Labs/pageproof-go/pkg/document"
)

// GeneratePages returns numPages distinct page texts.
func GeneratePages(numPages int) []string {
	pages := make([]string, numPages)
	for i := range pages {
		pages[i] = fmt.Sprintf("Page %d\n\nThis is the body of page %d of a generated test document.", i+1, i+1)
	}
	return pages
}

// JoinPages renders pages as a form-feed separated text document.
func JoinPages(pages []string) string {
	return strings.Join(pages, document.PageBreak)
}

// WriteTextDocument writes pages as a text document under dir and returns its path.
func WriteTextDocument(t *testing.T, dir, name string, pages []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(JoinPages(pages)), 0o600); err != nil {
		t.Fatalf("Failed to write test document: %v", err)
	}
	return path
}
