package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"roomies/internal/app/schedule"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/infra/bootstrap"
	"roomies/internal/infra/storage/s3"
)

// NewQuoteCommand prints the fee breakdown for a room.
func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "quote <room-id>",
		Short: "Show the fee breakdown for booking a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := seedIfSet(ctx, rt, fixtures); err != nil {
					return err
				}
				q, err := rt.Service.QuoteRoom(ctx, args[0])
				if err != nil {
					return err
				}
				return output(rootOpts, cmd.OutOrStdout(), q, func(w io.Writer) error {
					rows := [][2]string{
						{"Room", q.RoomID},
						{"Monthly rent", q.MonthlyRent.Display},
						{"Booking fee", q.BookingAmount.Display},
						{"Security deposit", q.SecurityDeposit.Display},
						{"Platform fee", q.PlatformFee.Display},
						{"Total due", q.TotalDue.Display},
						{"Free slots", fmt.Sprint(q.AvailableSlots)},
					}
					for _, r := range rows {
						if _, err := fmt.Fprintf(w, "%-18s%s\n", r[0], r[1]); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "seed rooms and tiers from this YAML file first")
	return cmd
}

type sweepResult struct {
	AsOf      time.Time `json:"as_of"`
	Completed int       `json:"completed"`
}

// NewSweepCommand completes every active booking whose contract has ended.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Complete active bookings whose contract period has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if batch <= 0 {
					return fmt.Errorf("invalid --batch %d: must be positive", batch)
				}
				sweeper := schedule.CompletionSweeper{
					UoW:       rt.UoW,
					Completer: rt.Service,
					Clock:     rt.Clock,
					BatchSize: batch,
					Logger:    rt.Logger,
				}
				total := 0
				for {
					n, err := sweeper.RunOnce(ctx)
					total += n
					if err != nil {
						return err
					}
					if n < batch {
						break
					}
				}
				res := sweepResult{AsOf: rt.Clock.Now().UTC(), Completed: total}
				return output(rootOpts, cmd.OutOrStdout(), res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "completed %d bookings as of %s\n", res.Completed, res.AsOf.Format(time.DateOnly))
					return err
				})
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "bookings completed per pass")
	return cmd
}

type migrateResult struct {
	Storage string `json:"storage"`
	Rooms   int    `json:"rooms_seeded"`
	Tiers   int    `json:"tiers_seeded"`
}

// NewMigrateCommand creates tables and indexes, then optionally seeds fixtures.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes for the configured storage",
		Long: `Create tables and indexes for the configured storage.

SQL stores are auto-migrated and get the one-open-booking partial index; Mongo gets its
unique, TTL and listing indexes. Both happen while the runtime starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res := migrateResult{Storage: rt.Config.Storage}
				if seed != "" {
					catalog, err := rt.Seed(ctx, seed)
					if err != nil {
						return err
					}
					res.Rooms, res.Tiers = len(catalog.Rooms), len(catalog.Tiers)
				}
				return output(rootOpts, cmd.OutOrStdout(), res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s storage ready, seeded %d rooms and %d tiers\n", res.Storage, res.Rooms, res.Tiers)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "fixtures YAML file to load after migrating")
	return cmd
}

// NewStatementCommand prints the settlement statement of one booking.
func NewStatementCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statement <booking-id>",
		Short: "Print the settlement statement of a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				view, err := rt.Service.Settlement(ctx, args[0], actor.NewSystem())
				if err != nil {
					return err
				}
				return output(rootOpts, cmd.OutOrStdout(), view, func(w io.Writer) error {
					return s3.RenderStatement(w, view)
				})
			})
		},
	}
}

func seedIfSet(ctx context.Context, rt *bootstrap.Runtime, path string) error {
	if path == "" {
		return nil
	}
	_, err := rt.Seed(ctx, path)
	return err
}
