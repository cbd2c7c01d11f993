package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalParams converts statement parameters to JSON TEXT for storage.
func marshalParams(params []any) (string, error) {
	if params == nil {
		params = []any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalParams parses stored parameters. Integral numbers come back as
// int64 so they bind exactly as they were compiled.
func unmarshalParams(data string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			out[i] = v
			continue
		}
		if iv, err := n.Int64(); err == nil {
			out[i] = iv
			continue
		}
		fv, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		out[i] = fv
	}
	return out, nil
}
