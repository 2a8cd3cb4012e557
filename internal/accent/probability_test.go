package accent

import (
	"encoding/json"
	"testing"
)

func TestProbabilitiesJSONKeepsRanking(t *testing.T) {
	p := rank([]Entry{
		{"American", 10},
		{"British", 55.5},
		{"Australian", 24.5},
		{"Indian", 10},
	})

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"British":55.5,"Australian":24.5,"American":10,"Indian":10}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}

	var back Probabilities
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for i := range p {
		if back[i] != p[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, back[i], p[i])
		}
	}
}

func TestProbabilitiesInsideStruct(t *testing.T) {
	res := Result{Probabilities: Probabilities{{"Indian", 60}, {"British", 40}}, Fallback: true}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"probabilities":{"Indian":60,"British":40},"fallback":true}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}

func TestProbabilitiesUnmarshalRejectsArrays(t *testing.T) {
	var p Probabilities
	if err := json.Unmarshal([]byte(`[1,2]`), &p); err == nil {
		t.Fatal("expected error for non-object input")
	}
}

func TestProbabilitiesLookup(t *testing.T) {
	var empty Probabilities
	if _, ok := empty.Top(); ok {
		t.Fatal("Top on empty distribution should report false")
	}
	p := Probabilities{{"British", 70}, {"American", 30}}
	if v, ok := p.Get("American"); !ok || v != 30 {
		t.Fatalf("Get(American) = %v, %v", v, ok)
	}
	if _, ok := p.Get("Martian"); ok {
		t.Fatal("Get should miss unknown labels")
	}
}
