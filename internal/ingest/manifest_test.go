package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest(0)
	require.Equal(t, 5, m.Len())

	for i, slot := range m.Slots() {
		assert.Equal(t, DefaultSlotNames[i], slot.Name)
		assert.True(t, slot.Required)
		assert.Equal(t, []string{".xlsx"}, slot.Extensions)
		assert.Equal(t, DefaultMaxFileBytes, slot.MaxSizeBytes)
	}
}

func TestNewManifestValidation(t *testing.T) {
	tests := []struct {
		name  string
		slots []Slot
	}{
		{name: "empty", slots: nil},
		{name: "duplicate", slots: []Slot{
			{Name: "product", Extensions: []string{".xlsx"}},
			{Name: "product", Extensions: []string{".csv"}},
		}},
		{name: "bad name", slots: []Slot{{Name: "Product Sheet", Extensions: []string{".xlsx"}}}},
		{name: "no extensions", slots: []Slot{{Name: "product"}}},
		{name: "path in extension", slots: []Slot{{Name: "product", Extensions: []string{"../x"}}}},
		{name: "negative size", slots: []Slot{{Name: "product", Extensions: []string{".xlsx"}, MaxSizeBytes: -1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManifest(tc.slots)
			assert.Error(t, err)
		})
	}
}

func TestNewManifestNormalizesExtensions(t *testing.T) {
	m, err := NewManifest([]Slot{{Name: "product", Extensions: []string{"XLSX", ".xlsx", " .Csv "}}})
	require.NoError(t, err)

	slot, ok := m.Slot("product")
	require.True(t, ok)
	assert.Equal(t, []string{".xlsx", ".csv"}, slot.Extensions)
	assert.Equal(t, ".xlsx", slot.KeyExtension())
	assert.True(t, slot.Allows("report.CSV"))
	assert.False(t, slot.Allows("report.xls"))
}

func TestManifestIsImmutable(t *testing.T) {
	m := DefaultManifest(DefaultMaxFileBytes)
	slots := m.Slots()
	slots[0].Name = "changed"
	slots[0].Extensions[0] = ".csv"

	first := m.Slots()[0]
	assert.Equal(t, "product", first.Name)
	assert.Equal(t, []string{".xlsx"}, first.Extensions)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	content := `slots:
  - name: product
    required: true
    extensions: [".xlsx"]
  - name: notes
    extensions: ["txt"]
    max_size_bytes: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := LoadManifest(path, 2048)
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	product, _ := m.Slot("product")
	assert.True(t, product.Required)
	assert.Equal(t, int64(2048), product.MaxSizeBytes)

	notes, _ := m.Slot("notes")
	assert.False(t, notes.Required)
	assert.Equal(t, []string{".txt"}, notes.Extensions)
	assert.Equal(t, int64(1024), notes.MaxSizeBytes)

	out, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), "name: notes")
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(filepath.Join(dir, "missing.yaml"), 0)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("slots: [\n"), 0o644))
	_, err = LoadManifest(bad, 0)
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	slot := Slot{Name: "order_detail", Extensions: []string{".xlsx"}}
	tests := []struct {
		namespace string
		want      string
	}{
		{"", "order_detail.xlsx"},
		{"scf", "scf/order_detail.xlsx"},
		{"/scf/2024/", "scf/2024/order_detail.xlsx"},
		{"../../etc", "etc/order_detail.xlsx"},
		{`scf\uploads`, "scf/uploads/order_detail.xlsx"},
		{" ./ ", "order_detail.xlsx"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DeriveKey(tc.namespace, slot), "namespace %q", tc.namespace)
		assert.Equal(t, DeriveKey(tc.namespace, slot), DeriveKey(tc.namespace, slot))
	}
}

func TestSubmissionSlotsSorted(t *testing.T) {
	sub := NewSubmission()
	sub.Add("product", "a.xlsx", nil)
	sub.Add("customer", "b.xlsx", nil)
	sub.Add("product", "c.xlsx", []byte("x"))

	assert.Equal(t, []string{"customer", "product"}, sub.Slots())
	p, ok := sub.Part("product")
	require.True(t, ok)
	assert.Equal(t, "c.xlsx", p.Filename)
}
