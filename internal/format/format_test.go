package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: "{\n  \"name\": \"product\",\n  \"count\": 2\n}\n"},
		{format: "YAML", want: "name: product\ncount: 2\n"},
		{format: "", want: "{\n  \"name\": \"product\",\n  \"count\": 2\n}\n"},
	}
	for _, tc := range tests {
		f, err := ForName(tc.format)
		if err != nil {
			t.Fatalf("ForName(%q): %v", tc.format, err)
		}
		var buf bytes.Buffer
		if err := f.Write(&buf, sample{Name: "product", Count: 2}); err != nil {
			t.Fatalf("write %s: %v", tc.format, err)
		}
		if buf.String() != tc.want {
			t.Fatalf("%s output = %q, want %q", tc.format, buf.String(), tc.want)
		}
	}
}

func TestForNameUnknown(t *testing.T) {
	_, err := ForName("xml")
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}
