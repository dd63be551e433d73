package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxFileBytes caps a single slot payload when neither the manifest
// nor the config sets a limit.
const DefaultMaxFileBytes int64 = 10 << 20 // 10 MiB

// DefaultSlotNames are the five spreadsheets the ingest page collects.
var DefaultSlotNames = []string{"product", "order_header", "order_detail", "customer", "customer_schedule"}

var slotNamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_-]*[a-z0-9])?$`)

// Slot is one named file a submission must or may contain.
type Slot struct {
	Name         string   `yaml:"name" json:"name"`
	Required     bool     `yaml:"required" json:"required"`
	Extensions   []string `yaml:"extensions" json:"extensions"`
	MaxSizeBytes int64    `yaml:"max_size_bytes" json:"max_size_bytes"`
}

// Allows reports whether filename carries one of the slot's extensions,
// compared case-insensitively.
func (s Slot) Allows(filename string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" {
		return false
	}
	for _, allowed := range s.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// KeyExtension is the extension used when deriving the slot's storage key.
func (s Slot) KeyExtension() string {
	if len(s.Extensions) == 0 {
		return ""
	}
	return s.Extensions[0]
}

// Manifest is an ordered, immutable set of slots with unique names.
type Manifest struct {
	slots []Slot
	index map[string]int
}

type manifestFile struct {
	Slots []Slot `yaml:"slots"`
}

// NewManifest validates and normalizes slots. Extensions are lower-cased and
// given a leading dot; a zero MaxSizeBytes becomes DefaultMaxFileBytes.
func NewManifest(slots []Slot) (*Manifest, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("manifest needs at least one slot")
	}
	m := &Manifest{
		slots: make([]Slot, 0, len(slots)),
		index: make(map[string]int, len(slots)),
	}
	for _, raw := range slots {
		slot, err := normalizeSlot(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := m.index[slot.Name]; dup {
			return nil, fmt.Errorf("duplicate slot %q", slot.Name)
		}
		m.index[slot.Name] = len(m.slots)
		m.slots = append(m.slots, slot)
	}
	return m, nil
}

// DefaultManifest returns the five required .xlsx slots, each capped at
// maxFileBytes.
func DefaultManifest(maxFileBytes int64) *Manifest {
	slots := make([]Slot, 0, len(DefaultSlotNames))
	for _, name := range DefaultSlotNames {
		slots = append(slots, Slot{
			Name:         name,
			Required:     true,
			Extensions:   []string{".xlsx"},
			MaxSizeBytes: maxFileBytes,
		})
	}
	m, err := NewManifest(slots)
	if err != nil {
		panic(fmt.Sprintf("default manifest: %v", err))
	}
	return m
}

// LoadManifest reads a YAML manifest of the form
//
//	slots:
//	  - name: product
//	    required: true
//	    extensions: [".xlsx"]
//	    max_size_bytes: 10485760
//
// Slots without max_size_bytes inherit defaultMaxFileBytes.
func LoadManifest(path string, defaultMaxFileBytes int64) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for i := range file.Slots {
		if file.Slots[i].MaxSizeBytes == 0 {
			file.Slots[i].MaxSizeBytes = defaultMaxFileBytes
		}
	}
	m, err := NewManifest(file.Slots)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Len returns the number of slots.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.slots)
}

// Slots returns a copy of the slots in manifest order.
func (m *Manifest) Slots() []Slot {
	if m == nil {
		return nil
	}
	out := make([]Slot, len(m.slots))
	for i, slot := range m.slots {
		slot.Extensions = append([]string(nil), slot.Extensions...)
		out[i] = slot
	}
	return out
}

// Slot looks up one slot by name.
func (m *Manifest) Slot(name string) (Slot, bool) {
	if m == nil {
		return Slot{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return Slot{}, false
	}
	slot := m.slots[i]
	slot.Extensions = append([]string(nil), slot.Extensions...)
	return slot, true
}

// MarshalYAML renders the manifest in the same shape LoadManifest reads.
func (m *Manifest) MarshalYAML() (any, error) {
	return manifestFile{Slots: m.Slots()}, nil
}

func normalizeSlot(slot Slot) (Slot, error) {
	slot.Name = strings.TrimSpace(slot.Name)
	if !slotNamePattern.MatchString(slot.Name) {
		return Slot{}, fmt.Errorf("invalid slot name %q", slot.Name)
	}
	if slot.MaxSizeBytes == 0 {
		slot.MaxSizeBytes = DefaultMaxFileBytes
	}
	if slot.MaxSizeBytes < 0 {
		return Slot{}, fmt.Errorf("slot %q: max_size_bytes must be positive", slot.Name)
	}

	exts := make([]string, 0, len(slot.Extensions))
	seen := make(map[string]struct{}, len(slot.Extensions))
	for _, raw := range slot.Extensions {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.ContainsAny(ext[1:], "./\\") {
			return Slot{}, fmt.Errorf("slot %q: invalid extension %q", slot.Name, raw)
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return Slot{}, fmt.Errorf("slot %q: at least one extension is required", slot.Name)
	}
	slot.Extensions = exts
	return slot, nil
}
