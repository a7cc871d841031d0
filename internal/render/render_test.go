package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"tsv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	err := Table(&buf, []string{"ID", "NAME"}, [][]string{
		{"org-1", "Acme"},
		{"p", "日本"},
	})
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	want := "ID     NAME\n" +
		"-----  ----\n" +
		"org-1  Acme\n" +
		"p      日本\n"
	if buf.String() != want {
		t.Errorf("table =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := Table(&buf, []string{"ID"}, nil); err != nil || buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestRenderYAMLUsesJSONNames(t *testing.T) {
	type item struct {
		NodeCount int `json:"node_count"`
	}
	var buf bytes.Buffer
	if err := NewRenderer(&buf, FormatYAML).Render(item{NodeCount: 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "node_count: 3" {
		t.Errorf("yaml = %q", buf.String())
	}
}

func TestRenderJSONKeepsHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderJSON(&buf, map[string]string{"q": "<a&b>"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"<a&b>"`) {
		t.Errorf("json = %s", buf.String())
	}
}
