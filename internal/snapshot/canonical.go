package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON produces the deterministic encoding that is hashed into
// snapshot_rev: keys sorted lexicographically, no insignificant whitespace,
// no HTML escaping, and the meta block reduced to schema_version.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	ordered := orderedMap{
		{"items", buildOrderedItems(s.Items)},
		{"meta", orderedMap{{"schema_version", s.Meta.SchemaVersion}}},
		{"product", buildOrderedProduct(&s.Product)},
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(ordered); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeSnapshotRev computes the sha256 hash of canonical JSON bytes.
// Returns "sha256:<hex>" format.
func ComputeSnapshotRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// PrettyJSON renders the snapshot for humans, meta included.
func PrettyJSON(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// orderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type orderedMap []keyValue

type keyValue struct {
	Key   string
	Value interface{}
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := marshalNoEscape(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := marshalNoEscape(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Fields in lexicographic order, optional ones only when set.
func buildOrderedProduct(p *ProductEntry) orderedMap {
	result := orderedMap{
		{"etag", p.ETag},
		{"id", p.ID},
		{"name", p.Name},
	}
	if p.OwnerActor != "" {
		result = append(result, keyValue{"owner_actor", p.OwnerActor})
	}
	result = append(result,
		keyValue{"slug", p.Slug},
		keyValue{"uuid", p.UUID},
	)
	if len(p.WebhookURLs) > 0 {
		result = append(result, keyValue{"webhook_urls", p.WebhookURLs})
	}
	return result
}

func buildOrderedItems(items map[string]ItemEntry) orderedMap {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make(orderedMap, 0, len(keys))
	for _, k := range keys {
		it := items[k]
		result = append(result, keyValue{k, buildOrderedItem(&it)})
	}
	return result
}

func buildOrderedItem(it *ItemEntry) orderedMap {
	result := orderedMap{
		{"created_at", it.CreatedAt},
		{"created_by", it.CreatedBy},
	}
	if it.Description != "" {
		result = append(result, keyValue{"description", it.Description})
	}
	result = append(result, keyValue{"etag", it.ETag}, keyValue{"id", it.ID})
	if it.ImagePath != "" {
		result = append(result, keyValue{"image_path", it.ImagePath})
	}
	result = append(result,
		keyValue{"kind", it.Kind},
		keyValue{"name", it.Name},
		keyValue{"position", it.Position},
	)
	if it.Priority != "" {
		result = append(result, keyValue{"priority", it.Priority})
	}
	if it.Route != "" {
		result = append(result, keyValue{"route", it.Route})
	}
	result = append(result,
		keyValue{"status", it.Status},
		keyValue{"updated_at", it.UpdatedAt},
		keyValue{"updated_by", it.UpdatedBy},
	)
	return result
}
