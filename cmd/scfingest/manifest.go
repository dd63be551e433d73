package main

import (
	"strings"

	"github.com/spf13/cobra"

	"scfingest/internal/config"
	"scfingest/internal/ingest"
)

func newManifestCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the slots the server accepts",
	}
	cmd.AddCommand(newManifestShowCmd(cfg, jsonOutput))
	cmd.AddCommand(newManifestCheckCmd(cfg))
	return cmd
}

func newManifestShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configured manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(cfg)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(manifestView(m, cfg.Namespace))
			}
			return writeYAML(m)
		},
	}
}

func newManifestCheckCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a manifest file without starting the server",
		Args:  requireExactlyArgs(1, "manifest file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ingest.LoadManifest(args[0], cfg.Upload.MaxFileBytes)
			if err != nil {
				return err
			}
			names := make([]string, 0, m.Len())
			for _, slot := range m.Slots() {
				names = append(names, slot.Name)
			}
			return writePlain("ok: %d slots (%s)\n", m.Len(), strings.Join(names, ", "))
		},
	}
}

// loadManifest returns the manifest file named in the config, or the default
// five-slot manifest.
func loadManifest(cfg *config.Config) (*ingest.Manifest, error) {
	if path := strings.TrimSpace(cfg.Upload.ManifestPath); path != "" {
		return ingest.LoadManifest(path, cfg.Upload.MaxFileBytes)
	}
	return ingest.DefaultManifest(cfg.Upload.MaxFileBytes), nil
}

type slotView struct {
	ingest.Slot
	StorageKey string `json:"storage_key"`
}

func manifestView(m *ingest.Manifest, namespace string) []slotView {
	slots := m.Slots()
	out := make([]slotView, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotView{Slot: slot, StorageKey: ingest.DeriveKey(namespace, slot)})
	}
	return out
}
