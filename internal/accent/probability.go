package accent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Entry is one label's share of the probability mass, in percent.
type Entry struct {
	Label      string
	Percentage float64
}

// Probabilities is a ranked distribution over accent labels. It encodes as a
// JSON object whose keys keep the ranking order.
type Probabilities []Entry

// rank sorts entries descending by percentage. The sort is stable, so equal
// percentages keep candidate declaration order.
func rank(entries []Entry) Probabilities {
	out := make(Probabilities, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percentage > out[j].Percentage
	})
	return out
}

// Get returns the percentage for label.
func (p Probabilities) Get(label string) (float64, bool) {
	for _, e := range p {
		if e.Label == label {
			return e.Percentage, true
		}
	}
	return 0, false
}

// Top returns the highest-ranked entry.
func (p Probabilities) Top() (Entry, bool) {
	if len(p) == 0 {
		return Entry{}, false
	}
	return p[0], true
}

func (p Probabilities) Sum() float64 {
	var sum float64
	for _, e := range p {
		sum += e.Percentage
	}
	return sum
}

func (p Probabilities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Percentage)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while keeping its key order.
func (p *Probabilities) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("probabilities: expected object, got %v", tok)
	}
	out := Probabilities{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("probabilities: expected key, got %v", tok)
		}
		var pct float64
		if err := dec.Decode(&pct); err != nil {
			return fmt.Errorf("probabilities: value for %q: %w", label, err)
		}
		out = append(out, Entry{Label: label, Percentage: pct})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
