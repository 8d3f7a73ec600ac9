package catalog

import (
	"strings"
	"testing"
)

func TestDefault_OrderAndLookup(t *testing.T) {
	c := Default()
	ops := c.List()
	if len(ops) != 8 {
		t.Fatalf("expected 8 operations, got %d", len(ops))
	}
	if ops[0].ID != "upload_pdf" || ops[len(ops)-1].ID != "export_pdf" {
		t.Fatalf("catalog order not preserved: first=%q last=%q", ops[0].ID, ops[len(ops)-1].ID)
	}

	merge, ok := c.Get("merge_documents")
	if !ok || merge.CreditCost != 1 || !merge.RequiresUpload || !merge.RequiresSecondFile {
		t.Fatalf("merge_documents unexpected: %+v ok=%v", merge, ok)
	}
	if up, _ := c.Get("upload_pdf"); up.RequiresUpload {
		t.Fatalf("upload_pdf must not require an upload")
	}
}

func TestGet_NormalizesID(t *testing.T) {
	c := Default()
	if _, ok := c.Get("  Split_Pages "); !ok {
		t.Fatalf("expected case/space-insensitive lookup")
	}
	if _, ok := c.Get("compress"); ok {
		t.Fatalf("unknown id must not resolve")
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	c := Default()
	a := c.List()
	a[0].CreditCost = 99
	if b := c.List(); b[0].CreditCost != 0 {
		t.Fatalf("List must not expose internal state, got cost %d", b[0].CreditCost)
	}
}

func TestAccessors_CloneKeywords(t *testing.T) {
	c := Default()

	merge, _ := c.Get("merge_documents")
	merge.Keywords[0] = "tampered"
	c.List()[1].Keywords[0] = "tampered"
	c.Search("combine", 1)[0].Keywords[0] = "tampered"

	if got, _ := c.Get("merge_documents"); got.Keywords[0] != "combine" {
		t.Fatalf("keywords leaked through an accessor: %v", got.Keywords)
	}
	if got := c.Search("combine", 1); len(got) == 0 || got[0].ID != "merge_documents" {
		t.Fatalf("search index should be unaffected: %+v", got)
	}

	defs := []OperationDefinition{{ID: "a", Keywords: []string{"x"}}}
	own := MustNew(defs, nil)
	defs[0].Keywords[0] = "y"
	if got, _ := own.Get("a"); got.Keywords[0] != "x" {
		t.Fatalf("New must not alias caller keywords: %v", got.Keywords)
	}
}

func TestCost(t *testing.T) {
	c := Default()
	cases := []struct {
		id   string
		qty  int
		want int64
	}{
		{"split_pages", 1, 1},
		{"split_pages", 5, 5},
		{"split_pages", 0, 1},
		{"split_pages", -3, 1},
		{"upload_pdf", 10, 0},
	}
	for _, tc := range cases {
		got, ok := c.Cost(tc.id, tc.qty)
		if !ok || got != tc.want {
			t.Fatalf("Cost(%q,%d) = %d,%v; want %d", tc.id, tc.qty, got, ok, tc.want)
		}
	}
	if _, ok := c.Cost("nope", 1); ok {
		t.Fatalf("Cost for unknown op must report not found")
	}
}

func TestCost_Idempotent(t *testing.T) {
	c := Default()
	a, _ := c.Cost("watermark", 3)
	b, _ := c.Cost("watermark", 3)
	if a != b {
		t.Fatalf("Cost not stable: %d vs %d", a, b)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New([]OperationDefinition{{ID: " "}}, nil); err == nil {
		t.Fatalf("expected empty id error")
	}
	if _, err := New([]OperationDefinition{{ID: "a", CreditCost: -1}}, nil); err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected negative cost error, got %v", err)
	}
	if _, err := New([]OperationDefinition{{ID: "a"}, {ID: "A"}}, nil); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := New(nil, []CreditPack{{ID: "p", Credits: 0}}); err == nil {
		t.Fatalf("expected non-positive pack error")
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustNew should panic on invalid input")
		}
	}()
	MustNew([]OperationDefinition{{ID: ""}}, nil)
}

func TestPacks(t *testing.T) {
	c := Default()
	p, ok := c.Pack("PACK_MEDIUM")
	if !ok || p.Credits != 120 || p.PriceUSD != 10 {
		t.Fatalf("pack_medium unexpected: %+v ok=%v", p, ok)
	}
	if len(c.Packs()) != 3 {
		t.Fatalf("expected 3 packs")
	}
}

func TestSearch(t *testing.T) {
	c := Default()

	if got := c.Search("combine", 3); len(got) == 0 || got[0].ID != "merge_documents" {
		t.Fatalf("combine: %+v", got)
	}
	if got := c.Search("Download", 0); len(got) != 1 || got[0].ID != "export_pdf" {
		t.Fatalf("download: %+v", got)
	}
	if got := c.Search("stamp", 0); len(got) != 1 || got[0].ID != "watermark" {
		t.Fatalf("stamp: %+v", got)
	}
	if got := c.Search("ocr", 0); len(got) != 0 {
		t.Fatalf("unknown tool should not match: %+v", got)
	}
	if got := c.Search("pages", 2); len(got) != 2 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}
