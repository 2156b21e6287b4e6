package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/generac"
	sqliteadapter "github.com/ericfisherdev/sungazer/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/sungazer/internal/config"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

func newCredentialsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage encrypted vendor credentials",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <vendor> <secret>",
			Short: "Store or replace a vendor credential",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				vendor, err := model.ParseVendor(args[0])
				if err != nil {
					return err
				}
				if err := validateSecret(vendor, args[1]); err != nil {
					return err
				}
				return withCredentialStore(cmd.Context(), c.cfg, func(store driven.CredentialStore) error {
					if err := store.Set(cmd.Context(), vendor, args[1]); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s credential %s\n", vendor, model.MaskSecret(args[1]))
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored credentials with masked secrets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCredentialStore(cmd.Context(), c.cfg, func(store driven.CredentialStore) error {
					creds, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					return printCredentials(cmd.OutOrStdout(), creds)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <vendor>",
			Short: "Remove a stored vendor credential",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				vendor, err := model.ParseVendor(args[0])
				if err != nil {
					return err
				}
				return withCredentialStore(cmd.Context(), c.cfg, func(store driven.CredentialStore) error {
					err := store.Delete(cmd.Context(), vendor)
					if errors.Is(err, driven.ErrCredentialNotFound) {
						return fmt.Errorf("no %s credential stored", vendor)
					}
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s credential\n", vendor)
					return err
				})
			},
		},
	)

	return cmd
}

// validateSecret rejects credentials the vendor's connector could never use.
func validateSecret(vendor model.Vendor, secret string) error {
	if secret == "" {
		return errors.New("secret must not be empty")
	}
	if vendor == model.VendorGenerac {
		if _, err := generac.ParseCredentials(secret); err != nil {
			return fmt.Errorf("invalid Generac credential bundle: %w", err)
		}
	}
	return nil
}

func withCredentialStore(ctx context.Context, cfg *config.Config, fn func(driven.CredentialStore) error) error {
	if !cfg.HasEncryptionKey() {
		return driven.ErrEncryptionKeyNotSet
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return fn(sqliteadapter.NewCredentialRepo(db, cfg.EncryptionKey))
}

func printCredentials(w io.Writer, creds []model.Credential) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tSECRET\tUPDATED")
	for _, c := range creds {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Vendor, c.Masked(), c.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
