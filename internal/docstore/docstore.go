// Package docstore abstracts the document database behind a small
// collection-of-documents surface: single-document reads and upserts are
// strongly consistent, multi-document operations are not transactional and
// there is no atomic array append. Higher layers hand-roll ordering and
// partial-failure recovery on top of this contract.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Document is one schemaless record, keyed by (collection, id).
type Document map[string]any

// Filter matches documents whose field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from a collection. Only equality filters are
// supported, which is all the dashboard needs.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Unsubscribe stops snapshot delivery. It is idempotent and safe to call
// multiple times.
type Unsubscribe func()

// Store is the document database surface used by all higher layers.
type Store interface {
	// Get returns the document at (collection, id) or common.ErrorNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set upserts the whole document.
	Set(ctx context.Context, collection, id string, doc Document) error

	// Update merges fields into an existing document. Returns
	// common.ErrorNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Query returns the documents of a collection matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Subscribe delivers the full document on every observed change,
	// starting with the current snapshot when the document exists.
	// Delivery is last-snapshot-wins: changes that race with an in-flight
	// delivery may be coalesced.
	Subscribe(collection, id string, onSnapshot func(Document), onError func(error)) Unsubscribe
}

// Marshal converts a typed record into a Document via its JSON form.
func Marshal(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Unmarshal converts a Document back into a typed record.
func Unmarshal(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}
