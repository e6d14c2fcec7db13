package graph

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// flattenProperties converts a decoded JSON object into a Neo4j-storable property map.
// Nested objects are flattened with "_" joined keys (properties.name -> properties_name),
// homogeneous scalar lists become typed lists, anything else is stored as a JSON string.
func flattenProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	flattenInto(out, "", props)
	return out
}

func flattenInto(out map[string]any, prefix string, props map[string]any) {
	for k, v := range props {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch val := v.(type) {
		case nil:
			continue
		case map[string]any:
			flattenInto(out, key, val)
		case []any:
			out[key] = storableList(val)
		case string, bool, int64, float64:
			out[key] = val
		case int:
			out[key] = int64(val)
		default:
			out[key] = jsonString(val)
		}
	}
}

func storableList(list []any) any {
	if len(list) == 0 {
		return []string{}
	}
	switch list[0].(type) {
	case string:
		res := make([]string, 0, len(list))
		for _, v := range list {
			s, ok := v.(string)
			if !ok {
				return jsonString(list)
			}
			res = append(res, s)
		}
		return res
	case int64:
		res := make([]int64, 0, len(list))
		for _, v := range list {
			i, ok := v.(int64)
			if !ok {
				return jsonString(list)
			}
			res = append(res, i)
		}
		return res
	case float64:
		res := make([]float64, 0, len(list))
		for _, v := range list {
			f, ok := v.(float64)
			if !ok {
				return jsonString(list)
			}
			res = append(res, f)
		}
		return res
	case bool:
		res := make([]bool, 0, len(list))
		for _, v := range list {
			b, ok := v.(bool)
			if !ok {
				return jsonString(list)
			}
			res = append(res, b)
		}
		return res
	}
	return jsonString(list)
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// plainValue converts driver values (nodes, relationships, paths, temporals)
// into JSON-friendly structures for the chat layer.
func plainValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return nodeMap(val)
	case neo4j.Relationship:
		return relationshipMap(val)
	case neo4j.Path:
		nodes := make([]any, 0, len(val.Nodes))
		for _, n := range val.Nodes {
			nodes = append(nodes, nodeMap(n))
		}
		rels := make([]any, 0, len(val.Relationships))
		for _, r := range val.Relationships {
			rels = append(rels, relationshipMap(r))
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, plainValue(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case neo4j.Date:
		return val.Time().Format("2006-01-02")
	case neo4j.LocalDateTime:
		return val.Time().Format("2006-01-02T15:04:05.999999999")
	default:
		return val
	}
}

func nodeMap(n neo4j.Node) map[string]any {
	out := make(map[string]any, len(n.Props)+1)
	for k, v := range n.Props {
		out[k] = plainValue(v)
	}
	labels := append([]string(nil), n.Labels...)
	sort.Strings(labels)
	out["_labels"] = labels
	return out
}

func relationshipMap(r neo4j.Relationship) map[string]any {
	out := make(map[string]any, len(r.Props)+1)
	for k, v := range r.Props {
		out[k] = plainValue(v)
	}
	out["_type"] = r.Type
	return out
}

func recordToMap(record *neo4j.Record) map[string]any {
	row := make(map[string]any, len(record.Keys))
	for i, key := range record.Keys {
		row[key] = plainValue(record.Values[i])
	}
	return row
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}
