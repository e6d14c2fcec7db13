package graph

import (
	"context"
	"fmt"
	"strings"
)

// Collection names shared by every store backend
const (
	NodeCollection = "Nodes"
	EdgeCollection = "Edges"
)

// CollectionType distinguishes plain document collections from edge collections
type CollectionType string

const (
	CollectionTypeDocument CollectionType = "document"
	CollectionTypeEdge     CollectionType = "edge"
)

// Reserved document attributes
const (
	AttrKey  = "_key"
	AttrID   = "_id"
	AttrFrom = "_from"
	AttrTo   = "_to"
)

// NodeDocument is a vertex keyed by the caller-supplied external id
type NodeDocument struct {
	Key        string         `json:"_key"`
	Properties map[string]any `json:"properties"`
}

// EdgeDocument is a directed association between two node references.
// From and To have the form "Nodes/<key>"; the referenced nodes need not exist.
type EdgeDocument struct {
	From       string         `json:"_from"`
	To         string         `json:"_to"`
	Properties map[string]any `json:"properties"`
}

// Stats holds document counts per collection
type Stats struct {
	Nodes int64 `json:"nodes"`
	Edges int64 `json:"edges"`
}

// Store is the write side used by the bulk loader.
// InsertNode returns *errors.ErrDuplicateKey when the key is already taken.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, kind CollectionType) error
	InsertNode(ctx context.Context, doc NodeDocument) error
	InsertEdge(ctx context.Context, doc EdgeDocument) error
}

// Querier runs read-only graph queries for the chat front ends
type Querier interface {
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// DocumentID builds the "<collection>/<key>" reference string
func DocumentID(collection, key string) string {
	return collection + "/" + key
}

// SplitDocumentID is the inverse of DocumentID
func SplitDocumentID(id string) (collection, key string, ok bool) {
	collection, key, ok = strings.Cut(id, "/")
	if !ok || collection == "" || key == "" {
		return "", "", false
	}
	return collection, key, true
}

// DescribeSchema renders collection counts and edge labels in use as prompt text
func DescribeSchema(stats *Stats, labels []string) string {
	var b strings.Builder
	if stats != nil {
		fmt.Fprintf(&b, "%s: %d documents, %s: %d documents.", NodeCollection, stats.Nodes, EdgeCollection, stats.Edges)
	}
	if len(labels) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("Edge labels in use: " + strings.Join(labels, ", ") + ".")
	}
	return b.String()
}
