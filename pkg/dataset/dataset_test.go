package dataset

import "testing"

func TestFromRecordsColumnOrder(t *testing.T) {
	d := FromRecords([]map[string]any{
		{"id": 1.0, "severity": "high"},
		{"id": 2.0, "cwe": "79"},
	})
	want := []string{"id", "severity", "cwe"}
	if len(d.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", d.Columns, want)
	}
	for i, c := range want {
		if d.Columns[i] != c {
			t.Errorf("column[%d] = %q, want %q", i, d.Columns[i], c)
		}
	}
}

func TestFromRecordsFillsMissingKeys(t *testing.T) {
	d := FromRecords([]map[string]any{
		{"id": 1.0, "severity": "high"},
		{"id": 2.0, "cwe": "79"},
	})
	for i, row := range d.Rows {
		for _, c := range d.Columns {
			if _, ok := row[c]; !ok {
				t.Errorf("row[%d] missing key %q", i, c)
			}
		}
	}
	if v, ok := d.Rows[0]["cwe"]; !ok || v != nil {
		t.Errorf("row[0][cwe] = %v, %v, want explicit nil", v, ok)
	}
	if v, ok := d.Rows[1]["severity"]; !ok || v != nil {
		t.Errorf("row[1][severity] = %v, %v, want explicit nil", v, ok)
	}
}

func TestCloneIsolatesRows(t *testing.T) {
	d := FromRecords([]map[string]any{{"id": 1.0}})
	c := d.Clone()
	c.Rows[0]["id"] = 99.0
	if d.Rows[0]["id"] != 1.0 {
		t.Fatalf("clone mutated original: %v", d.Rows[0])
	}
}

func TestNumber(t *testing.T) {
	if n, ok := Number("12.5"); !ok || n != 12.5 {
		t.Errorf("Number(%q) = %v, %v", "12.5", n, ok)
	}
	if _, ok := Number(nil); ok {
		t.Error("Number(nil) should not be ok")
	}
	if _, ok := Number("abc"); ok {
		t.Error("Number(abc) should not be ok")
	}
}

func TestCanonicalString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{5.0, "5"},
		{5.5, "5.5"},
		{nil, ""},
		{"x", "x"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := CanonicalString(c.in); got != c.want {
			t.Errorf("CanonicalString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	r := Flatten(Row{
		"id": 1.0,
		"project": map[string]any{
			"name": "app",
			"meta": map[string]any{"tier": "prod"},
		},
	})
	if r["project.name"] != "app" {
		t.Errorf("project.name = %v", r["project.name"])
	}
	if r["project.meta.tier"] != "prod" {
		t.Errorf("project.meta.tier = %v", r["project.meta.tier"])
	}
	if _, ok := r["project"]; ok {
		t.Error("nested key should be dropped after flatten")
	}
}

func TestExtract(t *testing.T) {
	r := Row{"project": map[string]any{"id": 7.0}}
	v, ok := Extract(r, "project.id")
	if !ok || v != 7.0 {
		t.Fatalf("Extract = %v, %v", v, ok)
	}
	if _, ok := Extract(r, "project.missing"); ok {
		t.Error("missing path should not be ok")
	}
}
