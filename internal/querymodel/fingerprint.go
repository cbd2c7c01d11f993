package querymodel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/chainql/internal/expr"
)

// DomainQueryModel separates model fingerprints from other hashes.
// The version suffix allows the rendering to change later.
const DomainQueryModel = "chainql/querymodel/v1"

// Describe returns a JSON-friendly description of the model: clauses in
// order, result operators, and the output shape. Nested models are
// described inline.
func Describe(qm *QueryModel) map[string]any {
	clauses := make([]any, 0, len(qm.BodyClauses)+2)
	for _, c := range qm.Clauses() {
		clauses = append(clauses, map[string]any{
			"kind": clauseKind(c),
			"text": c.String(),
		})
	}
	ops := make([]any, len(qm.ResultOperators))
	for i, op := range qm.ResultOperators {
		ops[i] = op.String()
	}
	out := map[string]any{
		"clauses":          clauses,
		"result_operators": ops,
		"text":             qm.String(),
	}
	if info, err := qm.OutputDataInfo(); err == nil {
		out["output"] = info.String()
	}
	var subs []any
	qm.ForEachExpression(func(n expr.Node) {
		expr.Inspect(n, func(n expr.Node) bool {
			if sq, ok := n.(*SubQuery); ok {
				subs = append(subs, Describe(sq.Model))
			}
			return true
		})
	})
	if len(subs) > 0 {
		out["subqueries"] = subs
	}
	return out
}

func clauseKind(c Clause) string {
	switch c.(type) {
	case *MainFromClause:
		return "main_from"
	case *AdditionalFromClause:
		return "additional_from"
	case *WhereClause:
		return "where"
	case *OrderByClause:
		return "order_by"
	case *LetClause:
		return "let"
	case *SelectClause:
		return "select"
	}
	return fmt.Sprintf("%T", c)
}

// Fingerprint returns a stable hash of the model's structure. Two parses of
// the same AST have the same fingerprint even though their clause
// identities differ.
func Fingerprint(qm *QueryModel) (string, error) {
	data, err := MarshalCanonical(Describe(qm))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQueryModel, data), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalCanonical produces canonical JSON for hashing: object keys sorted
// by UTF-16 code units, strings NFC normalized, no HTML escaping. Supported
// values are strings, ints, bools, []any and map[string]any.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case string:
		return writeCanonicalString(buf, val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

func compareUTF16(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	return slices.Compare(ua, ub)
}
