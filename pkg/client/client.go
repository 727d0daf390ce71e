// Package client talks to a pageproof server and verifies proofs offline.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/document"
	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

const defaultTimeout = 60 * time.Second

// StatusError carries a non-2xx server response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  200 * time.Millisecond,
	MaxBackoff:      2 * time.Second,
	BackoffMultiple: 2.0,
}

// ClientConfig holds the configuration for the pageproof client
type ClientConfig struct {
	ServerURL  string
	Logger     *zap.Logger
	HTTPClient *http.Client // Optional, a client with a 60s timeout is used if nil
	Retry      *RetryConfig // Optional, DefaultRetryConfig is used if nil
}

// Client provides a reusable library interface for pageproof operations
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a new client instance with dependency injection
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(config.ServerURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server URL %q", config.ServerURL)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errors.Errorf("server URL %q must use http or https", config.ServerURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	retryConfig := DefaultRetryConfig
	if config.Retry != nil {
		retryConfig = *config.Retry
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		retryConfig: retryConfig,
		logger:      config.Logger,
	}, nil
}

// UploadDocument sends a document as the multipart "file" field and returns
// the root the server computed for it.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*types.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create multipart form")
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, errors.Wrap(err, "failed to read document")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish multipart form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp types.UploadResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to upload %s", filename)
	}

	c.logger.Sugar().Infow("Document uploaded",
		"document_id", resp.DocumentID,
		"root_hash", resp.RootHash,
		"pages", resp.NPages,
	)
	return &resp, nil
}

// UploadFile uploads the file at path
func (c *Client) UploadFile(ctx context.Context, path string) (*types.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open document")
	}
	defer func() { _ = f.Close() }()

	return c.UploadDocument(ctx, filepath.Base(path), f)
}

// GetDocument fetches a document's metadata
func (c *Client) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var doc types.Document
	if err := c.do(req, http.StatusOK, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to get document %s", id)
	}
	return &doc, nil
}

// ListDocuments fetches every stored document
func (c *Client) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}

	var resp types.ListDocumentsResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	return resp.Documents, nil
}

// DeleteDocument removes a document from the server
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.do(req, http.StatusNoContent, nil), "failed to delete document %s", id)
}

// GenerateProof fetches the inclusion proof of a page
func (c *Client) GenerateProof(ctx context.Context, id string, pageIndex int) (*types.ProofResponse, error) {
	path := "/documents/" + url.PathEscape(id) + "/proof/" + strconv.Itoa(pageIndex)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp types.ProofResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get proof for page %d of %s", pageIndex, id)
	}

	c.logger.Sugar().Debugw("Proof received",
		"document_id", id,
		"page_index", pageIndex,
		"proof_length", len(resp.Proof),
	)
	return &resp, nil
}

// VerifyRemote asks the server to verify a proof
func (c *Client) VerifyRemote(ctx context.Context, verifyReq *types.VerifyRequest) (bool, error) {
	payload, err := json.Marshal(verifyReq)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode verify request")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/verify", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp types.VerifyResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return false, errors.Wrap(err, "failed to verify proof")
	}
	return resp.Valid, nil
}

// VerifyLocal checks a proof without contacting any server. It fails only
// when the requested hash algorithm is unknown.
func VerifyLocal(req *types.VerifyRequest) (bool, error) {
	if req == nil {
		return false, errors.New("verify request cannot be nil")
	}
	h, err := merkle.NewHasher(req.HashAlgorithm)
	if err != nil {
		return false, errors.Wrap(err, "cannot verify locally")
	}
	return merkle.VerifyProof(h,
		merkle.NormalizeDigest(req.RootHash),
		merkle.NormalizeDigest(req.PageHash),
		req.Proof,
	), nil
}

// VerifyRequestFromProof turns a proof response into a verify request.
func VerifyRequestFromProof(p *types.ProofResponse) *types.VerifyRequest {
	return &types.VerifyRequest{
		RootHash:      p.RootHash.String(),
		PageHash:      p.PageHash.String(),
		Proof:         p.Proof,
		HashAlgorithm: p.HashAlgorithm,
	}
}

// ComputeRoot extracts and hashes a document locally, producing the same root
// the server would compute for it.
func ComputeRoot(filename string, data []byte, algorithm merkle.HashAlgorithm) (merkle.Digest, []merkle.Digest, error) {
	h, err := merkle.NewHasher(algorithm)
	if err != nil {
		return "", nil, err
	}
	pages, err := document.ExtractPages(filename, data)
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to extract pages of %s", filename)
	}
	leaves := document.HashPages(h, pages)
	root, err := merkle.Build(h, leaves)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to build merkle tree")
	}
	return root.Hash, leaves, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s %s request", method, path)
	}
	return req, nil
}

// do executes req and decodes a JSON body into out when out is non-nil.
func (c *Client) do(req *http.Request, expectedStatus int, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusNotFound {
			return errors.Wrap(ErrNotFound, statusErr.Error())
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// send executes req with retries. Uploads create a new document each time, so
// they are only retried when the server rejected them unprocessed (429).
// Every other request is idempotent and is also retried on transport errors
// and gateway failures.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	idempotent := req.Method != http.MethodPost || req.URL.Path != c.baseURL.Path+"/documents"

	var lastErr error
	backoff := c.retryConfig.InitialBackoff
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := c.httpClient.Do(req)
		final := attempt == c.retryConfig.MaxAttempts-1
		switch {
		case err != nil:
			if !idempotent || final || req.Context().Err() != nil {
				return nil, errors.Wrap(err, "request failed")
			}
			lastErr = err
		case shouldRetry(resp.StatusCode, idempotent) && !final:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = errors.Errorf("server returned %d", resp.StatusCode)
		default:
			return resp, nil
		}

		c.logger.Sugar().Debugw("Retrying request",
			"method", req.Method,
			"path", req.URL.Path,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-req.Context().Done():
			return nil, errors.Wrap(req.Context().Err(), "request canceled while waiting to retry")
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
		if backoff > c.retryConfig.MaxBackoff {
			backoff = c.retryConfig.MaxBackoff
		}
	}
	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", c.retryConfig.MaxAttempts)
}

// rewind resets the request body before a retry.
func (c *Client) rewind(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return errors.Wrap(err, "failed to rewind request body")
	}
	req.Body = body
	return nil
}

func shouldRetry(statusCode int, idempotent bool) bool {
	switch statusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return idempotent
	default:
		return false
	}
}
