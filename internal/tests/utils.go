package tests

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetProjectRootPath walks up from the working directory to the directory
// holding go.mod.
func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	p := wd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	panic(fmt.Sprintf("could not find project root above %s", wd))
}

// ReadTestDocument returns the bytes of a fixture under internal/testData.
func ReadTestDocument(projectRoot, name string) ([]byte, error) {
	filePath := filepath.Join(projectRoot, "internal", "testData", name)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
