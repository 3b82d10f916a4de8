package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/trust"
)

var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrNotParty         = errors.New("user is not a party to the exchange")
)

func newMigrateCommand(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and River job tables",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, env *Env, out io.Writer) error {
			if err := env.Migrate(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(out, "migrations applied")
			return err
		}),
	}
}

func newWalletCommand(opts *RootOptions, run runFunc) *cobra.Command {
	var history int

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a wallet and its recent transactions",
		Args:  cobra.ExactArgs(1),
	}
	show.Flags().IntVar(&history, "history", 10, "number of transactions to include")
	show.RunE = func(c *cobra.Command, args []string) error {
		uid, err := parseUID(args[0])
		if err != nil {
			return err
		}
		return run(func(ctx context.Context, env *Env, out io.Writer) error {
			w, err := env.Ledger.Wallet(ctx, uid)
			if err != nil {
				return err
			}
			txs, err := env.Ledger.History(ctx, uid, history)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(out, map[string]any{"wallet": w, "transactions": txs})
			}
			fmt.Fprintf(out, "balance %d  earned %d  spent %d  transactions %d\n", w.Balance, w.TotalEarned, w.TotalSpent, w.TransactionCount)
			for _, t := range txs {
				fmt.Fprintf(out, "%s  %+6d  %s\n", t.CreatedAt.Format("2006-01-02 15:04"), t.Signed(), t.Reason)
			}
			return nil
		})(c, args)
	}

	cmd := &cobra.Command{Use: "wallet", Short: "Inspect wallets"}
	cmd.AddCommand(show)
	return cmd
}

func newTrustCommand(opts *RootOptions, run runFunc) *cobra.Command {
	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a trust score, tier and history",
		Args:  cobra.ExactArgs(1),
	}
	show.RunE = func(c *cobra.Command, args []string) error {
		uid, err := parseUID(args[0])
		if err != nil {
			return err
		}
		return run(func(ctx context.Context, env *Env, out io.Writer) error {
			sum, err := env.Trust.Summary(ctx, uid, 20)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(out, sum)
			}
			fmt.Fprintf(out, "score %d  tier %s (%s)\n", sum.Score, sum.Tier.Name, sum.Tier.Badge)
			for _, h := range sum.History {
				fmt.Fprintf(out, "%s  %+4d  %3d -> %3d  %s\n", h.CreatedAt.Format("2006-01-02 15:04"), h.Change, h.PreviousScore, h.NewScore, h.Reason)
			}
			return nil
		})(c, args)
	}

	var won bool
	dispute := &cobra.Command{
		Use:   "dispute <exchange-id> <user-id>",
		Short: "Record a resolved dispute against a party",
		Long: `Apply the dispute penalty to the user on the losing or winning side of a
resolved exchange dispute. The user must be the requester or the item owner.
Repeating the command for the same exchange and user is a no-op.`,
		Args: cobra.ExactArgs(2),
	}
	dispute.Flags().BoolVar(&won, "won", false, "the user won the dispute")
	dispute.RunE = func(c *cobra.Command, args []string) error {
		return adjustParty(c, args, opts, run, "dispute already recorded", func(exchangeID, uid uuid.UUID) trust.Adjustment {
			return trust.Dispute(exchangeID, uid, won)
		})
	}

	fail := &cobra.Command{
		Use:   "fail <exchange-id> <user-id>",
		Short: "Record a failed transaction against a party",
		Args:  cobra.ExactArgs(2),
	}
	fail.RunE = func(c *cobra.Command, args []string) error {
		return adjustParty(c, args, opts, run, "failure already recorded", trust.FailedTransaction)
	}

	cmd := &cobra.Command{Use: "trust", Short: "Inspect and adjust trust scores"}
	cmd.AddCommand(show, dispute, fail)
	return cmd
}

// adjustParty applies an exchange-scoped adjustment to args[1] after checking
// that the user took part in exchange args[0].
func adjustParty(c *cobra.Command, args []string, opts *RootOptions, run runFunc, repeated string, build func(exchangeID, uid uuid.UUID) trust.Adjustment) error {
	exchangeID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid exchange id %q: %w", args[0], err)
	}
	uid, err := parseUID(args[1])
	if err != nil {
		return err
	}
	return run(func(ctx context.Context, env *Env, out io.Writer) error {
		ex, err := env.Exchanges.GetByID(ctx, exchangeID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrExchangeNotFound, exchangeID)
		}
		if err != nil {
			return err
		}
		if !ex.IsParty(uid) {
			return fmt.Errorf("%w: %s", ErrNotParty, uid)
		}
		res, err := env.Trust.Adjust(ctx, uid, build(exchangeID, uid))
		if errors.Is(err, trust.ErrAlreadyApplied) {
			_, err = fmt.Fprintln(out, repeated)
			return err
		}
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return printJSON(out, res)
		}
		_, err = fmt.Fprintf(out, "score %d -> %d (%+d), tier %s\n", res.Previous, res.Score, res.Change, res.Tier.Name)
		return err
	})(c, args)
}

func newAwardCommand(opts *RootOptions, run runFunc) *cobra.Command {
	var reason, key string

	cmd := &cobra.Command{
		Use:   "award <user-id> <amount>",
		Short: "Credit coins to a wallet",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&reason, "reason", "Manual adjustment", "ledger entry reason")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key; a repeated key is rejected")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		uid, err := parseUID(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		return run(func(ctx context.Context, env *Env, out io.Writer) error {
			res, err := env.Ledger.Award(ctx, ledger.Request{
				UID:            uid,
				Amount:         amount,
				Reason:         reason,
				Metadata:       map[string]any{"source": "lendlyctl"},
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(out, res.Wallet)
			}
			_, err = fmt.Fprintf(out, "credited %d, balance %d\n", res.Applied, res.Wallet.Balance)
			return err
		})(c, args)
	}
	return cmd
}
