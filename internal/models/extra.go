package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// Extra holds JSON members a record does not own. They are written back
// verbatim so documents produced by newer versions survive a rewrite.
type Extra map[string]json.RawMessage

func fieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		names[name] = struct{}{}
	}
	return names
}

func unmarshalWithExtra(data []byte, v any, known map[string]struct{}) (Extra, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	var extra Extra
	for key, raw := range members {
		if _, ok := known[key]; ok {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[key] = raw
	}
	return extra, nil
}

// marshalWithExtra appends extra members after the struct's own fields.
func marshalWithExtra(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	first := len(bytes.TrimSpace(data)) == 2
	for _, key := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if raw := extra[key]; len(raw) > 0 {
			buf.Write(raw)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
