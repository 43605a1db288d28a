package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Document is the subset of a Postman collection the runner understands.
type Document struct {
	Items []Item `json:"item"`
}

// Item is one named request template.
type Item struct {
	Name    string   `json:"name"`
	Request *Request `json:"request"`
}

// Request is the wire form of an item's request. URL is raw because the
// format allows both a plain string and a structured object.
type Request struct {
	Method string          `json:"method"`
	URL    json.RawMessage `json:"url"`
	Header []Header        `json:"header"`
	Body   *Body           `json:"body"`
}

// Header is one key/value pair from the template.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Body carries a raw payload when Mode is "raw".
type Body struct {
	Mode string `json:"mode"`
	Raw  string `json:"raw"`
}

type urlParts struct {
	Raw      string       `json:"raw"`
	Protocol string       `json:"protocol"`
	Host     []string     `json:"host"`
	Path     []string     `json:"path"`
	Query    []queryParam `json:"query"`
}

type queryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LoadDocument reads and parses a collection file.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse collection %s: %w", path, err)
	}
	return &doc, nil
}

// Environment is the flat variable mapping driving {{name}} substitution.
type Environment map[string]string

// LoadEnvironment reads a Postman environment document. A missing file is
// not an error: the run simply proceeds without substitution. A file that
// exists but does not parse is an error.
func LoadEnvironment(path string) (Environment, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read environment: %w", err)
	}
	env, err := ParseEnvironment(raw)
	if err != nil {
		return nil, fmt.Errorf("parse environment %s: %w", path, err)
	}
	return env, nil
}

type envValue struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Enabled *bool           `json:"enabled"` // pointer to allow nil, nil means enabled
}

// ParseEnvironment accepts both shapes of environment document: one with a
// values list of {key, value, enabled} entries, and a flat object that is
// itself the mapping. Values are flattened to strings.
func ParseEnvironment(raw []byte) (Environment, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}

	if values, ok := keys["values"]; ok && isArray(values) {
		var entries []envValue
		if err := json.Unmarshal(values, &entries); err != nil {
			return nil, err
		}
		env := make(Environment, len(entries))
		for _, e := range entries {
			if e.Enabled != nil && !*e.Enabled {
				continue
			}
			env[e.Key] = stringifyRaw(e.Value)
		}
		return env, nil
	}

	env := make(Environment, len(keys))
	for k, v := range keys {
		env[k] = stringifyRaw(v)
	}
	return env, nil
}

// Substitute replaces every {{name}} occurrence with its mapped value.
// Unknown placeholders stay verbatim. Keys apply in sorted order so the
// result is deterministic.
func (e Environment) Substitute(text string) string {
	if len(e) == 0 || text == "" {
		return text
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := text
	for _, k := range keys {
		out = strings.ReplaceAll(out, "{{"+k+"}}", e[k])
	}
	return out
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// stringifyRaw flattens a JSON value to its template replacement: strings
// stay as-is, numbers keep their literal form, null becomes empty.
func stringifyRaw(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
