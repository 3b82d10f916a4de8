package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/trust"
)

var ErrSelfReferral = errors.New("a user cannot refer themselves")

func newVerifyCommand(opts *RootOptions, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id>",
		Short: "Mark a student as verified",
		Long: `Mark a user as a verified student once their campus identity has been
checked. The trust score moves up toward the verified floor and the wallet is
credited with the verification reward. Verifying a user twice is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, env *Env, out io.Writer) error {
				res, err := env.Accounts.Verify(ctx, uid)
				if errors.Is(err, trust.ErrAlreadyVerified) {
					_, err = fmt.Fprintln(out, "user already verified")
					return err
				}
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(out, res)
				}
				_, err = fmt.Fprintf(out, "verified: score %d, tier %s, credited %d\n", res.Score, res.Tier.Name, res.Awarded)
				return err
			})(c, args)
		},
	}
}

func newStreakCommand(opts *RootOptions, run runFunc) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "streak <user-id> <days>",
		Short: "Credit the daily streak reward",
		Long: `Credit the reward for a login streak of the given length. A user earns at
most one streak reward per day.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&date, "date", "", "day of the streak as YYYY-MM-DD (default today, UTC)")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		uid, err := parseUID(args[0])
		if err != nil {
			return err
		}
		days, err := strconv.Atoi(args[1])
		if err != nil || days < 1 {
			return fmt.Errorf("invalid streak length %q", args[1])
		}
		day := time.Now().UTC()
		if date != "" {
			if day, err = time.Parse(time.DateOnly, date); err != nil {
				return fmt.Errorf("invalid date %q: %w", date, err)
			}
		}
		return run(func(ctx context.Context, env *Env, out io.Writer) error {
			if err := requireUser(ctx, env, uid); err != nil {
				return err
			}
			res, err := env.Ledger.Award(ctx, ledger.StreakAward(uid, days, day))
			if errors.Is(err, ledger.ErrAlreadyApplied) {
				_, err = fmt.Fprintf(out, "streak already rewarded for %s\n", day.Format(time.DateOnly))
				return err
			}
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

func newReferralCommand(opts *RootOptions, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "referral <referrer-id> <referred-id>",
		Short: "Credit the referral reward",
		Long: `Credit the referrer once the referred student has joined. Each referred
user can be claimed only once.`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			referrer, err := parseUID(args[0])
			if err != nil {
				return err
			}
			referred, err := parseUID(args[1])
			if err != nil {
				return err
			}
			if referrer == referred {
				return ErrSelfReferral
			}
			return run(func(ctx context.Context, env *Env, out io.Writer) error {
				for _, id := range []uuid.UUID{referrer, referred} {
					if err := requireUser(ctx, env, id); err != nil {
						return err
					}
				}
				res, err := env.Ledger.Award(ctx, ledger.ReferralAward(referrer, referred))
				if errors.Is(err, ledger.ErrAlreadyApplied) {
					_, err = fmt.Fprintln(out, "referral already rewarded")
					return err
				}
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(out, res.Wallet)
				}
				_, err = fmt.Fprintf(out, "credited %d, balance %d\n", res.Applied, res.Wallet.Balance)
				return err
			})(c, args)
		},
	}
}

func requireUser(ctx context.Context, env *Env, uid uuid.UUID) error {
	_, err := env.Users.GetByID(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", trust.ErrUserNotFound, uid)
	}
	return err
}
