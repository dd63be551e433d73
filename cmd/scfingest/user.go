package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	internalauth "scfingest/internal/auth"
	"scfingest/internal/config"
	"scfingest/internal/store"
)

var stdin io.Reader = os.Stdin

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u store.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Disabled:  u.Disabled,
		CreatedAt: u.CreatedAt,
	}
}

func newUserCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the local database",
	}
	cmd.AddCommand(newUserAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newUserListCmd(cfg, jsonOutput))
	cmd.AddCommand(newUserSetDisabledCmd(cfg, jsonOutput, "disable", "Disable one account", true))
	cmd.AddCommand(newUserSetDisabledCmd(cfg, jsonOutput, "enable", "Enable one account", false))
	cmd.AddCommand(newUserDeleteCmd(cfg, jsonOutput))
	return cmd
}

func withStore(cfg *config.Config, fn func(*store.Store) error) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newUserAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		passwordStdin bool
		firstName     string
		lastName      string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create one account",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}

			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			first, err := internalauth.NormalizeName(firstName)
			if err != nil {
				return err
			}
			last, err := internalauth.NormalizeName(lastName)
			if err != nil {
				return err
			}

			passwordBytes, err := io.ReadAll(stdin)
			if err != nil {
				return err
			}
			hash, err := internalauth.HashPassword(strings.TrimSpace(string(passwordBytes)))
			if err != nil {
				return err
			}

			return withStore(cfg, func(st *store.Store) error {
				created, err := st.CreateUser(cmd.Context(), store.NewUser{
					Username:     username,
					PasswordHash: hash,
					FirstName:    first,
					LastName:     last,
				}, time.Now().UTC())
				if err != nil {
					if errors.Is(err, store.ErrUsernameTaken) {
						return fmt.Errorf("user %s already exists", username)
					}
					return err
				}

				if *jsonOutput {
					return writeJSON(newUserView(*created))
				}
				return writePlain("created user %s (%s)\n", created.Username, created.ID)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	return cmd
}

func newUserListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					views := make([]userView, 0, len(users))
					for _, u := range users {
						views = append(views, newUserView(u))
					}
					return writeJSON(map[string]any{"count": len(views), "users": views})
				}
				if len(users) == 0 {
					return writePlain("no users\n")
				}
				if err := writePlain("USERNAME\tNAME\tSTATUS\tCREATED\n"); err != nil {
					return err
				}
				for _, u := range users {
					status := "enabled"
					if u.Disabled {
						status = "disabled"
					}
					if err := writePlain("%s\t%s\t%s\t%s\n", u.Username, u.DisplayName(), status, formatTime(u.CreatedAt)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newUserSetDisabledCmd(cfg *config.Config, jsonOutput *bool, name, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}

			return withStore(cfg, func(st *store.Store) error {
				updated, err := st.SetUserDisabled(cmd.Context(), username, disabled, time.Now().UTC())
				if err != nil {
					return err
				}
				if updated == nil {
					return fmt.Errorf("user %s not found", username)
				}

				if *jsonOutput {
					return writeJSON(newUserView(*updated))
				}
				action := "enabled"
				if disabled {
					action = "disabled"
				}
				return writePlain("%s user %s\n", action, updated.Username)
			})
		},
	}
}

func newUserDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete one account and its sessions",
		Args:    requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}

			return withStore(cfg, func(st *store.Store) error {
				deleted, err := st.DeleteUser(cmd.Context(), username)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("user %s not found", username)
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"username": username, "deleted": true})
				}
				return writePlain("deleted user %s\n", username)
			})
		},
	}
}
