// Package store provides the document persistence layer. Documents are
// schemaless JSON records addressed by slash-separated paths, e.g.
// projects/{projectId}/jobs/{jobId}. Two implementations exist: a
// Postgres-backed store for production and an in-memory store for tests,
// selected by injection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrDuplicatePath = errors.New("document already exists at path")
	ErrInvalidPath   = errors.New("invalid document path")
)

// Operator is a query comparison operator.
type Operator string

const (
	OpEqual            Operator = "=="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpNotEqual         Operator = "!="
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
)

// IsValidOperator reports whether op is a supported query operator.
func IsValidOperator(op Operator) bool {
	switch op {
	case OpEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpNotEqual, OpArrayContains, OpArrayContainsAny, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

// Condition filters a query on a single top-level document field.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// UpdateFunc transforms a document inside a transactional read-modify-write.
// It receives the current document and returns the full replacement.
type UpdateFunc func(current map[string]any) (map[string]any, error)

// DocumentStore is the persistence interface all platform state goes
// through.
type DocumentStore interface {
	Ping(ctx context.Context) error

	// CreateDocument writes a new document at path and returns the final
	// path segment as its id. Fails with ErrDuplicatePath if a document
	// already exists there.
	CreateDocument(ctx context.Context, path string, data map[string]any) (string, error)

	// GetDocument returns the document at path or ErrNotFound.
	GetDocument(ctx context.Context, path string) (map[string]any, error)

	// SetDocument writes the full document at path, creating or replacing.
	SetDocument(ctx context.Context, path string, data map[string]any) error

	// UpdateDocument merges partial into the existing document at path.
	UpdateDocument(ctx context.Context, path string, partial map[string]any) error

	// DeleteDocument removes the document at path. Deleting a missing
	// document returns ErrNotFound.
	DeleteDocument(ctx context.Context, path string) error

	// QueryDocuments returns all documents in the collection matching every
	// condition.
	QueryDocuments(ctx context.Context, collectionPath string, conditions []Condition) ([]map[string]any, error)

	// UpdateDocumentTxn runs fn against the current document under a
	// serialized read-modify-write, so two concurrent updates to the same
	// path cannot both proceed from the same stale state.
	UpdateDocumentTxn(ctx context.Context, path string, fn UpdateFunc) error
}

// --- document paths ---

func JobPath(projectID string, jobID uuid.UUID) string {
	return fmt.Sprintf("projects/%s/jobs/%s", projectID, jobID)
}

func JobCollection(projectID string) string {
	return fmt.Sprintf("projects/%s/jobs", projectID)
}

func WebhookPath(id uuid.UUID) string {
	return fmt.Sprintf("webhooks/%s", id)
}

const WebhookCollection = "webhooks"

func RetentionPath(customerID uuid.UUID) string {
	return fmt.Sprintf("retention/%s", customerID)
}

func APIKeyPath(id uuid.UUID) string {
	return fmt.Sprintf("apikeys/%s", id)
}

const APIKeyCollection = "apikeys"

func CustomerPath(id uuid.UUID) string {
	return fmt.Sprintf("customers/%s", id)
}

// SplitPath separates a document path into its collection and id. A path
// must have at least two segments and no empty ones.
func SplitPath(path string) (collection, id string, err error) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return path[:idx], path[idx+1:], nil
}

// Encode converts a struct into a document map via its JSON form.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return doc, nil
}

// Decode converts a document map back into a struct via its JSON form.
func Decode(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}
