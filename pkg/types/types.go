package types

import (
	"time"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
)

// Document is the persisted metadata of an ingested document. The ordered
// leaf hashes are stored alongside it by the persistence layer.
type Document struct {
	ID            string               `json:"document_id"`
	Filename      string               `json:"filename"`
	RootHash      merkle.Digest        `json:"root_hash"`
	PageCount     int                  `json:"n_pages"`
	HashAlgorithm merkle.HashAlgorithm `json:"hash_algorithm"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Algorithm returns the document's hash algorithm, falling back to the
// default for records written before the field existed.
func (d *Document) Algorithm() merkle.HashAlgorithm {
	if d.HashAlgorithm == "" {
		return merkle.DefaultHashAlgorithm
	}
	return d.HashAlgorithm
}

// UploadResponse is returned by POST /documents
type UploadResponse struct {
	DocumentID    string               `json:"document_id"`
	RootHash      merkle.Digest        `json:"root_hash"`
	NPages        int                  `json:"n_pages"`
	HashAlgorithm merkle.HashAlgorithm `json:"hash_algorithm"`
}

// ProofResponse is returned by GET /documents/{id}/proof/{page}
type ProofResponse struct {
	DocumentID    string               `json:"document_id"`
	PageHash      merkle.Digest        `json:"page_hash"`
	RootHash      merkle.Digest        `json:"root_hash"`
	Proof         merkle.Proof         `json:"proof"`
	PageIndex     int                  `json:"page_index"`
	HashAlgorithm merkle.HashAlgorithm `json:"hash_algorithm"`
}

// VerifyRequest is the body of POST /verify. A ProofResponse can be posted
// as-is.
type VerifyRequest struct {
	RootHash      string               `json:"root_hash"`
	PageHash      string               `json:"page_hash"`
	Proof         merkle.Proof         `json:"proof"`
	HashAlgorithm merkle.HashAlgorithm `json:"hash_algorithm,omitempty"`
}

// VerifyResponse is returned by POST /verify
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// ListDocumentsResponse is returned by GET /documents
type ListDocumentsResponse struct {
	Documents []*Document `json:"documents"`
}
