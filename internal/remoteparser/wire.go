package remoteparser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mailorder/internal"
)

// FlagKey is the reserved response key carrying the special-request flag.
// A catalog product literally named "flag" cannot travel over this contract.
const FlagKey = "flag"

type Request struct {
	Products []string `json:"products"`
	Text     string   `json:"text"`
}

// Response is a flat JSON object mapping product names to raw quantities,
// plus FlagKey set to 0 or 1. Key order is significant and preserved.
type Response struct {
	Items []internal.LineItem
	Flag  *bool
}

// NewResponse builds the wire form of a parse result with an explicit flag.
func NewResponse(items []internal.LineItem, flag bool) Response {
	return Response{Items: items, Flag: &flag}
}

func (r Response) ParseResult() internal.ParseResult {
	return internal.ParseResult{Items: r.Items, Flag: r.Flag}
}

func (r Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(key string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		return nil
	}

	for _, item := range r.Items {
		if item.ProductName == FlagKey {
			return nil, fmt.Errorf("product name %q collides with the flag key", FlagKey)
		}
		if err := writeKey(item.ProductName); err != nil {
			return nil, err
		}
		v, err := json.Marshal(item.QuantityRaw)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	if r.Flag != nil {
		if err := writeKey(FlagKey); err != nil {
			return nil, err
		}
		if *r.Flag {
			buf.WriteByte('1')
		} else {
			buf.WriteByte('0')
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object in document order. A repeated product key
// keeps its first position and its last value. Quantities may be strings or
// numbers; the flag may be a number or a boolean.
func (r *Response) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("parser response is not a JSON object")
	}

	out := Response{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}

		if key == FlagKey {
			flag, err := decodeFlag(value)
			if err != nil {
				return err
			}
			out.Flag = &flag
			continue
		}

		raw, err := decodeQuantity(value)
		if err != nil {
			return fmt.Errorf("product %q: %w", key, err)
		}
		if at, seen := index[key]; seen {
			out.Items[at].QuantityRaw = raw
			continue
		}
		index[key] = len(out.Items)
		out.Items = append(out.Items, internal.LineItem{ProductName: key, QuantityRaw: raw})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

func decodeFlag(value any) (bool, error) {
	switch v := value.(type) {
	case json.Number:
		return v.String() != "0", nil
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected flag value %v", value)
	}
}

func decodeQuantity(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unexpected quantity value %v", value)
	}
}
