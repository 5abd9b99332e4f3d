// Package extract normalizes opaque tool-result payloads into text, images
// and side-channel metadata.
//
// Tool backends disagree about shape: some return plain strings, some return
// JSON-encoded strings, some nest content blocks inside wrapper objects, and
// images arrive in three incompatible encodings. This package flattens all of
// them into one canonical result. Extraction never fails: shapes it does not
// recognize degrade to literal text.
package extract

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fwojciec/relay"
)

// maxDepth bounds the recursive unwrapping of JSON-in-JSON payloads. Real
// backends double-encode at most twice; five levels covers that with margin
// while guaranteeing termination on adversarial input. Values nested deeper
// are rendered as literal text.
const maxDepth = 5

// Keys recognized as session identifiers when found inside a metadata
// object. Lifted into Result.Metadata so callers can propagate them without
// knowing the backend's shape.
var sessionKeys = map[string]struct{}{
	"sessionId":  {},
	"session_id": {},
	"sandboxId":  {},
	"browserId":  {},
}

// Result is the normalized form of one payload.
type Result struct {
	Text     string
	Images   []relay.ImageBlock
	Metadata map[string]string
}

// JSON normalizes a raw JSON payload.
func JSON(raw json.RawMessage) Result {
	if len(raw) == 0 {
		return Result{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not valid JSON: treat the bytes as literal text.
		return Result{Text: string(raw)}
	}
	return Value(v)
}

// Value normalizes an already-decoded payload value.
func Value(v any) Result {
	var b builder
	b.walk(v, 0)
	return b.result()
}

// builder accumulates text fragments, images and metadata during the
// recursive walk.
type builder struct {
	parts  []string
	images []relay.ImageBlock
	meta   map[string]string
}

func (b *builder) result() Result {
	r := Result{
		Text:     strings.Join(b.parts, "\n"),
		Images:   b.images,
		Metadata: b.meta,
	}
	return r
}

func (b *builder) addText(s string) {
	if s != "" {
		b.parts = append(b.parts, s)
	}
}

func (b *builder) addMeta(key, value string) {
	if b.meta == nil {
		b.meta = make(map[string]string)
	}
	b.meta[key] = value
}

func (b *builder) walk(v any, depth int) {
	if depth > maxDepth {
		b.addText(stringify(v))
		return
	}

	switch val := v.(type) {
	case nil:
		return
	case string:
		b.walkString(val, depth)
	case []any:
		for _, item := range val {
			b.walk(item, depth+1)
		}
	case map[string]any:
		b.walkMap(val, depth)
	case float64, bool, json.Number:
		b.addText(stringify(val))
	case []byte:
		b.addText(string(val))
	default:
		b.addText(stringify(val))
	}
}

// walkString unwraps JSON-encoded strings. Backends that serialize their
// structured response into a string get one more decode pass; anything that
// does not parse is literal text.
func (b *builder) walkString(s string, depth int) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			b.walk(v, depth+1)
			return
		}
	}
	b.addText(s)
}

func (b *builder) walkMap(m map[string]any, depth int) {
	// Image-bearing maps first: once recognized, the map contributes an
	// image block plus a short textual summary, nothing else.
	if img, ok := parseImage(m); ok {
		b.images = append(b.images, img)
		b.addText(fmt.Sprintf("[%s image, %d bytes]", img.Format, len(img.Data)))
		return
	}
	if isImageMarker(m) {
		// Image available but not embedded: contributes no image block.
		if desc, ok := m["description"].(string); ok {
			b.addText(desc)
		}
		return
	}

	// Transparent wrappers. The wrapper object itself is discarded.
	// An image wrapper unwraps regardless of sibling keys as long as the
	// inner value is a recognizable image.
	if inner, ok := m["image"].(map[string]any); ok {
		if img, ok := parseImage(inner); ok {
			b.images = append(b.images, img)
			b.addText(fmt.Sprintf("[%s image, %d bytes]", img.Format, len(img.Data)))
			b.liftMetadata(m)
			return
		}
	}
	if inner, ok := m["image"]; ok && len(m) == 1 {
		b.walk(inner, depth+1)
		return
	}
	if text, ok := m["text"]; ok {
		b.walk(text, depth+1)
		b.liftMetadata(m)
		return
	}
	if content, ok := m["content"]; ok {
		b.walk(content, depth+1)
		b.liftMetadata(m)
		return
	}
	if inner, ok := m["json"]; ok {
		b.walk(inner, depth+1)
		b.liftMetadata(m)
		return
	}

	b.liftMetadata(m)
	if rest := withoutMetadata(m); len(rest) > 0 {
		b.addText(stringify(rest))
	}
}

// liftMetadata pulls known session-identifier keys out of a nested metadata
// object into the side channel.
func (b *builder) liftMetadata(m map[string]any) {
	meta, ok := m["metadata"].(map[string]any)
	if !ok {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, known := sessionKeys[k]; !known {
			continue
		}
		if s, ok := meta[k].(string); ok {
			b.addMeta(k, s)
		}
	}
}

func withoutMetadata(m map[string]any) map[string]any {
	if _, ok := m["metadata"]; !ok {
		return m
	}
	rest := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != "metadata" {
			rest[k] = v
		}
	}
	return rest
}

// parseImage recognizes the three image encodings tool backends use:
//
//	{"format": "png", "bytes": "<base64>"}            inline base64
//	{"format": "png", "bytes": <raw []byte>}          raw binary (in-process)
//	{"format": "png", "source": {"bytes": ...}}       nested blob wrapper
//
// All three normalize to one ImageBlock with decoded binary data.
func parseImage(m map[string]any) (relay.ImageBlock, bool) {
	format, ok := m["format"].(string)
	if !ok || format == "" {
		return relay.ImageBlock{}, false
	}
	format = strings.TrimPrefix(format, "image/")

	raw, ok := m["bytes"]
	if !ok {
		source, sok := m["source"].(map[string]any)
		if !sok {
			return relay.ImageBlock{}, false
		}
		raw, ok = source["bytes"]
		if !ok {
			return relay.ImageBlock{}, false
		}
	}

	data, ok := decodeImageBytes(raw)
	if !ok {
		return relay.ImageBlock{}, false
	}
	return relay.ImageBlock{Format: format, Data: data}, true
}

func decodeImageBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		if decoded, err := base64.StdEncoding.DecodeString(b); err == nil {
			return decoded, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// isImageMarker recognizes the lightweight "image available but not
// embedded" shape: a format plus a description and no byte payload.
func isImageMarker(m map[string]any) bool {
	if _, ok := m["description"]; !ok {
		return false
	}
	if _, ok := m["format"]; !ok {
		return false
	}
	if _, ok := m["bytes"]; ok {
		return false
	}
	if _, ok := m["source"]; ok {
		return false
	}
	return true
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
