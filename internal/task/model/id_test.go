package model

import "testing"

func TestNewID_Unique(t *testing.T) {
	a := NewID(KindExecute, "/p")
	b := NewID(KindExecute, "/p")
	if a == b {
		t.Error("two New IDs should differ")
	}
	if a.IsZero() {
		t.Error("New ID should not be zero")
	}
}

func TestID_ValueSemantics(t *testing.T) {
	a := NewID(KindExecute, "/work/app")
	copyOfA := ID{Kind: a.Kind, Project: a.Project, Seq: a.Seq}

	m := map[ID]int{a: 1}
	if m[copyOfA] != 1 {
		t.Error("IDs with equal content should be equal map keys")
	}
}

func TestParseID_RoundTrip(t *testing.T) {
	id := NewID(KindRefresh, "/work/with@sign")
	got, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID(%q) error: %v", id.String(), err)
	}
	if got != id {
		t.Errorf("ParseID(String()) = %v, want %v", got, id)
	}
}

func TestParseID_Invalid(t *testing.T) {
	for _, s := range []string{"", "execute", "execute:not-a-uuid@/p", ":x@/p", "execute:123"} {
		if _, err := ParseID(s); err == nil {
			t.Errorf("ParseID(%q) expected error", s)
		}
	}
}
