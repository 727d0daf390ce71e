package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// MarshalDocument serializes Document metadata to JSON bytes.
func MarshalDocument(doc *types.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cannot marshal nil Document")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Document to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDocument deserializes Document metadata from JSON bytes.
func UnmarshalDocument(data []byte) (*types.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Document: %w", err)
	}

	return &doc, nil
}

// CopyDocument returns a shallow copy of doc; Document holds no reference fields.
func CopyDocument(doc *types.Document) *types.Document {
	if doc == nil {
		return nil
	}
	cp := *doc
	return &cp
}
