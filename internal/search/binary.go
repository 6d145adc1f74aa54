// Package search looks up records in sorted JSONL shard data. Every line is
// a JSON object whose first field is "key"; lines are sorted by key.
package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotFound indicates the key is not present in the shard.
var ErrNotFound = errors.New("search: key not found")

// Search binary-searches data for key and decodes the matching line into a T.
func Search[T any](data []byte, key string) (*T, error) {
	lines := nonEmptyLines(data)
	i, found := slices.BinarySearchFunc(lines, key, func(line []byte, k string) int {
		return strings.Compare(ExtractKey(line), k)
	})
	if !found {
		return nil, ErrNotFound
	}

	record := new(T)
	if err := json.Unmarshal(lines[i], record); err != nil {
		return nil, fmt.Errorf("parsing record %q: %w", key, err)
	}
	return record, nil
}

// Verify checks that every line carries a key and that keys strictly
// increase, calling check, when non-nil, on each key. It returns the
// number of records seen before the first failure.
func Verify(data []byte, check func(key string) error) (int, error) {
	lines := nonEmptyLines(data)
	var prev string
	for n, line := range lines {
		key := ExtractKey(line)
		switch {
		case key == "":
			return n, fmt.Errorf("line %d: missing key", n+1)
		case n > 0 && key <= prev:
			return n, fmt.Errorf("line %d: key %q not after %q", n+1, key, prev)
		}
		if check != nil {
			if err := check(key); err != nil {
				return n, fmt.Errorf("line %d: %w", n+1, err)
			}
		}
		prev = key
	}
	return len(lines), nil
}

func nonEmptyLines(data []byte) [][]byte {
	lines := bytes.Split(data, []byte{'\n'})
	return slices.DeleteFunc(lines, func(l []byte) bool { return len(l) == 0 })
}

// ExtractKey returns the "key" field of a JSON line without decoding it.
// Keys are FENs, which never contain quotes or escapes.
func ExtractKey(line []byte) string {
	_, rest, ok := bytes.Cut(line, []byte(`"key":"`))
	if !ok {
		return ""
	}
	key, _, ok := bytes.Cut(rest, []byte{'"'})
	if !ok {
		return ""
	}
	return string(key)
}
