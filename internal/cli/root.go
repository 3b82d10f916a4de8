// Package cli implements lendlyctl, the operator tool for inspecting and
// adjusting wallets and trust scores outside the HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lendly/backend/internal/auth"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/trust"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	Format      string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Accounts verifies students. Only operators can do this.
type Accounts interface {
	Verify(ctx context.Context, uid uuid.UUID) (*auth.VerifyResult, error)
}

type Exchanges interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Env is what a command operates on once connected.
type Env struct {
	Ledger    ledger.Service
	Trust     trust.Service
	Accounts  Accounts
	Exchanges Exchanges
	Users     Users
	Migrate   func(ctx context.Context) error
}

// Connector opens an Env. The returned func releases it.
type Connector func(ctx context.Context, opts *RootOptions) (*Env, func(), error)

// NewRootCommand creates the root command for lendlyctl.
func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "lendlyctl",
		Short:         "Operate the Lendly ledger and trust engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "db", "", "postgres URL (default $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	run := func(fn func(ctx context.Context, env *Env, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, _ []string) error {
			env, release, err := connect(c.Context(), opts)
			if err != nil {
				return err
			}
			defer release()
			return fn(c.Context(), env, c.OutOrStdout())
		}
	}

	cmd.AddCommand(newMigrateCommand(run))
	cmd.AddCommand(newWalletCommand(opts, run))
	cmd.AddCommand(newTrustCommand(opts, run))
	cmd.AddCommand(newAwardCommand(opts, run))
	cmd.AddCommand(newVerifyCommand(opts, run))
	cmd.AddCommand(newStreakCommand(opts, run))
	cmd.AddCommand(newReferralCommand(opts, run))

	return cmd
}

type runFunc func(fn func(ctx context.Context, env *Env, out io.Writer) error) func(*cobra.Command, []string) error

func parseUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
