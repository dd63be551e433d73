package ingest

import "strings"

// DeriveKey returns the storage key for slot under namespace. The key only
// depends on its inputs, so every ingest into the same namespace overwrites
// the previous object for the slot. An empty namespace yields the bare file
// name ("product.xlsx").
func DeriveKey(namespace string, slot Slot) string {
	name := slot.Name + slot.KeyExtension()
	ns := NormalizeNamespace(namespace)
	if ns == "" {
		return name
	}
	return ns + "/" + name
}

// NormalizeNamespace drops empty, "." and ".." segments so a namespace can
// never address objects outside itself.
func NormalizeNamespace(namespace string) string {
	segments := strings.Split(strings.ReplaceAll(strings.TrimSpace(namespace), "\\", "/"), "/")
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}
