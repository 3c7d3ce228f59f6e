package feed

import (
	"encoding/json"
	"testing"
)

func TestScopeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Scope
		want bool
	}{
		{"global matches global", Global(), Global(), true},
		{"global rejects scoped", Global(), ScopeOf(7), false},
		{"scoped rejects global", ScopeOf(7), Global(), false},
		{"same id matches", ScopeOf(7), ScopeOf(7), true},
		{"different ids reject", ScopeOf(7), ScopeOf(8), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Fatalf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", Global(), false},
		{"global", Global(), false},
		{"null", Global(), false},
		{"42", ScopeOf(42), false},
		{"-1", ScopeOf(-1), false},
		{"abc", Scope{}, true},
		{"4.2", Scope{}, true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseScope(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseScope(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseScope(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScopeJSONNullSymmetry(t *testing.T) {
	b, err := json.Marshal(Global())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "null" {
		t.Fatalf("global scope marshals to %s, want null", b)
	}

	b, err = json.Marshal(ScopeOf(99))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "99" {
		t.Fatalf("scoped key marshals to %s, want 99", b)
	}

	var s Scope
	if err := json.Unmarshal([]byte("null"), &s); err != nil {
		t.Fatal(err)
	}
	if !s.IsGlobal() {
		t.Fatal("null should decode to the global scope")
	}
	if err := json.Unmarshal([]byte("37"), &s); err != nil {
		t.Fatal(err)
	}
	if !s.Equal(ScopeOf(37)) {
		t.Fatalf("got %v, want scope 37", s)
	}
	if err := json.Unmarshal([]byte(`"x"`), &s); err == nil {
		t.Fatal("non-numeric scope should fail to decode")
	}
}

func TestRowJSONOmitsGlobalScopeAsNull(t *testing.T) {
	r := Row{ID: "a", Scope: Global(), Content: "hi", Sender: "s"}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if string(m["scope"]) != "null" {
		t.Fatalf("scope field = %s, want null", m["scope"])
	}
}
