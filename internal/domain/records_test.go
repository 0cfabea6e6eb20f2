package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlatRecord_OrderAndJSON(t *testing.T) {
	r := NewFlatRecord()
	r.Add("ENTRY", "K00001  KO")
	r.Add("NAME", "E1.1.1.1")
	r.Add("ENTRY", "extra")

	if !reflect.DeepEqual(r.Tags(), []string{"ENTRY", "NAME"}) {
		t.Errorf("unexpected tag order %v", r.Tags())
	}
	if r.EntryID() != "K00001" {
		t.Errorf("expected entry id K00001, got %q", r.EntryID())
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"ENTRY":["K00001  KO","extra"],"NAME":["E1.1.1.1"]}` {
		t.Errorf("unexpected json %s", b)
	}
}

func TestMergeLists_LaterWins(t *testing.T) {
	merged := MergeLists(
		ListMapping{"a": "1", "b": "2"},
		ListMapping{"b": "3", "c": "4"},
	)

	want := ListMapping{"a": "1", "b": "3", "c": "4"}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("expected %v, got %v", want, merged)
	}
}

func TestMergeLinks_AppendsPerKey(t *testing.T) {
	a := NewLinkRelation()
	a.Add("x1", "y1")
	b := NewLinkRelation()
	b.Add("x2", "y1")

	merged := MergeLinks(a, b)

	if !reflect.DeepEqual(merged.Forward["y1"], []string{"x1", "x2"}) {
		t.Errorf("unexpected forward %v", merged.Forward)
	}
	if merged.Pairs() != 2 {
		t.Errorf("expected 2 pairs, got %d", merged.Pairs())
	}
}

func TestRawResponse_Empty(t *testing.T) {
	if !(&RawResponse{Body: " \n\t"}).Empty() {
		t.Error("whitespace body should be empty")
	}
	if (&RawResponse{Body: "x"}).Empty() {
		t.Error("non-blank body should not be empty")
	}
	var nilResp *RawResponse
	if !nilResp.Empty() {
		t.Error("nil response should be empty")
	}
}
