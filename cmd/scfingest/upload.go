package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scfingest/internal/api"
	"scfingest/internal/config"
)

const passwordEnvKey = "SCFINGEST_PASSWORD"

// credentials are resolved before any request is sent.
type credentials struct {
	username      string
	passwordStdin bool
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&c.passwordStdin, "password-stdin", false, "read password from stdin (default: $"+passwordEnvKey+")")
}

func (c *credentials) password() (string, error) {
	if c.passwordStdin {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if value := os.Getenv(passwordEnvKey); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("password required: use --password-stdin or set %s", passwordEnvKey)
}

// withSession signs in and runs fn with the authenticated client.
func withSession(cmd *cobra.Command, cfg *config.Config, creds *credentials, fn func(*api.Client) error) error {
	if strings.TrimSpace(creds.username) == "" {
		return fmt.Errorf("--username is required")
	}
	password, err := creds.password()
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.APIURL)
	if _, err := client.SignIn(cmd.Context(), creds.username, password); err != nil {
		return err
	}
	defer func() { _ = client.SignOut(cmd.Context()) }()
	return fn(client)
}

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		creds     credentials
		overrides []string
	)

	cmd := &cobra.Command{
		Use:   "upload [dir]",
		Short: "Upload one spreadsheet per slot from a directory",
		Long: "Upload signs in, fetches the server manifest and submits one file per slot.\n" +
			"A slot's file is <slot><ext> in dir for one of the slot's extensions;\n" +
			"--file slot=path picks a file explicitly.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			explicit, err := parseFileOverrides(overrides)
			if err != nil {
				return err
			}

			return withSession(cmd, cfg, &creds, func(client *api.Client) error {
				slots, err := client.Manifest(cmd.Context())
				if err != nil {
					return err
				}
				paths, err := resolveSlotFiles(dir, slots, explicit)
				if err != nil {
					return err
				}

				files := make([]api.UploadFile, 0, len(paths))
				for _, slot := range slots {
					path, ok := paths[slot.Name]
					if !ok {
						continue
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					files = append(files, api.UploadFile{Slot: slot.Name, Filename: filepath.Base(path), Content: f})
				}

				resp, _, err := client.Upload(cmd.Context(), files)
				if err != nil {
					return err
				}
				if *jsonOutput {
					if err := writeJSON(resp); err != nil {
						return err
					}
				} else {
					if err := writePlain("ingest %s: %s\n", resp.ID, resp.Overall); err != nil {
						return err
					}
					if err := writeParts(resp.Parts); err != nil {
						return err
					}
				}
				if resp.Overall != "all_stored" {
					return fmt.Errorf("upload %s", strings.ReplaceAll(resp.Overall, "_", " "))
				}
				return nil
			})
		},
	}

	creds.bind(cmd)
	cmd.Flags().StringArrayVar(&overrides, "file", nil, "slot=path file to upload for a slot (repeatable)")
	return cmd
}

func newHistoryCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		creds credentials
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ingests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, &creds, func(client *api.Client) error {
				ingests, err := client.ListIngests(cmd.Context(), limit, !all)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(ingests)
				}
				if len(ingests) == 0 {
					return writePlain("no ingests\n")
				}
				for _, in := range ingests {
					if err := writePlain("%s %s %s %s\n", formatTime(in.CreatedAt), in.ID, in.Username, in.Overall); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	creds.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of ingests")
	cmd.Flags().BoolVar(&all, "all", false, "include ingests by every user")
	return cmd
}

func newDownloadCmd(cfg *config.Config) *cobra.Command {
	var (
		creds  credentials
		output string
	)

	cmd := &cobra.Command{
		Use:   "download <slot>",
		Short: "Download the object currently stored for a slot",
		Args:  requireExactlyArgs(1, "slot is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, cfg, &creds, func(client *api.Client) error {
				if output == "" || output == "-" {
					return client.Download(cmd.Context(), args[0], outputWriter)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := client.Download(cmd.Context(), args[0], f); err != nil {
					_ = f.Close()
					_ = os.Remove(output)
					return err
				}
				return f.Close()
			})
		},
	}

	creds.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func parseFileOverrides(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, value := range values {
		slot, path, ok := strings.Cut(value, "=")
		slot = strings.TrimSpace(slot)
		path = strings.TrimSpace(path)
		if !ok || slot == "" || path == "" {
			return nil, fmt.Errorf("invalid --file %q (expected slot=path)", value)
		}
		if _, dup := out[slot]; dup {
			return nil, fmt.Errorf("duplicate --file for slot %q", slot)
		}
		out[slot] = path
	}
	return out, nil
}

// resolveSlotFiles maps each slot to a file path. Explicit overrides win;
// otherwise dir is searched case-insensitively for <slot><ext>. Slots with no
// match are left out so the server reports them.
func resolveSlotFiles(dir string, slots []api.SlotResponse, explicit map[string]string) (map[string]string, error) {
	known := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		known[slot.Name] = struct{}{}
	}
	unknown := make([]string, 0)
	for name := range explicit {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown slot(s): %s", strings.Join(unknown, ", "))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && len(explicit) > 0 {
			entries = nil
		} else {
			return nil, err
		}
	}
	byName := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		byName[strings.ToLower(entry.Name())] = entry.Name()
	}

	out := make(map[string]string, len(slots))
	for _, slot := range slots {
		if path, ok := explicit[slot.Name]; ok {
			out[slot.Name] = path
			continue
		}
		for _, ext := range slot.Extensions {
			if name, ok := byName[slot.Name+strings.ToLower(ext)]; ok {
				out[slot.Name] = filepath.Join(dir, name)
				break
			}
		}
	}
	return out, nil
}
