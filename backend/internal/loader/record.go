package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"spoke-graph/backend/internal/graph"
)

// Record type discriminators
const (
	TypeNode         = "node"
	TypeRelationship = "relationship"
)

// Edge fields consumed for routing and not copied onto the edge
var edgeRoutingFields = map[string]struct{}{
	"type":  {},
	"id":    {},
	"start": {},
	"end":   {},
}

var (
	errNotObject = errors.New("line is not a JSON object")
	errNoID      = errors.New("record has no usable id")
)

// recordKind is the outcome of classifying one input line
type recordKind int

const (
	kindIgnored recordKind = iota
	kindNode
	kindEdge
)

type parsedRecord struct {
	kind recordKind
	node graph.NodeDocument
	edge graph.EdgeDocument
}

// parseLine decodes one line and builds the document it describes.
// Lines whose type is neither "node" nor "relationship" come back as kindIgnored.
func parseLine(line []byte) (parsedRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return parsedRecord{}, err
	}
	if raw == nil {
		return parsedRecord{}, errNotObject
	}
	if dec.More() {
		return parsedRecord{}, fmt.Errorf("trailing data after JSON object")
	}

	typ, _ := raw["type"].(string)
	switch typ {
	case TypeNode:
		key, err := stringifyID(raw["id"])
		if err != nil {
			return parsedRecord{}, err
		}
		return parsedRecord{
			kind: kindNode,
			node: graph.NodeDocument{Key: key, Properties: normalizeMap(raw)},
		}, nil

	case TypeRelationship:
		startKey, err := nestedID(raw, "start")
		if err != nil {
			return parsedRecord{}, err
		}
		endKey, err := nestedID(raw, "end")
		if err != nil {
			return parsedRecord{}, err
		}

		props := make(map[string]any, len(raw))
		for k, v := range raw {
			if _, routing := edgeRoutingFields[k]; routing {
				continue
			}
			props[k] = normalize(v)
		}

		return parsedRecord{
			kind: kindEdge,
			edge: graph.EdgeDocument{
				From:       graph.DocumentID(graph.NodeCollection, startKey),
				To:         graph.DocumentID(graph.NodeCollection, endKey),
				Properties: props,
			},
		}, nil
	}

	return parsedRecord{kind: kindIgnored}, nil
}

func nestedID(raw map[string]any, field string) (string, error) {
	endpoint, ok := raw[field].(map[string]any)
	if !ok {
		return "", fmt.Errorf("relationship %s is missing or not an object", field)
	}
	key, err := stringifyID(endpoint["id"])
	if err != nil {
		return "", fmt.Errorf("relationship %s: %w", field, err)
	}
	return key, nil
}

// stringifyID renders a scalar id as a primary key. Numbers keep their literal text.
func stringifyID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", errNoID
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	case bool:
		return strconv.FormatBool(id), nil
	}
	return "", errNoID
}

// normalize replaces json.Number with int64 or float64, recursively
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
