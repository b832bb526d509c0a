package store

import (
	"encoding/json"
	"sort"
)

// Notes maps a note title to its body. It is the only structure ever
// encrypted into the vault, and it is always rewritten in full.
type Notes map[string]string

// Titles returns the note titles in sorted order.
func (n Notes) Titles() []string {
	titles := make([]string, 0, len(n))
	for t := range n {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Clone returns an independent copy of n.
func (n Notes) Clone() Notes {
	out := make(Notes, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

func encodeNotes(n Notes) ([]byte, error) {
	if n == nil {
		n = Notes{}
	}
	return json.Marshal(n)
}

// decodeNotes accepts only a JSON object of string values.
func decodeNotes(data []byte) (Notes, error) {
	var n Notes
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errNullNotes
	}
	return n, nil
}
