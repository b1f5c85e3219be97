package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/slot-booking/internal/application"
	"github.com/example/slot-booking/internal/recurrence"
)

// operator is the principal maintenance commands act as.
var operator = application.Principal{UserID: "slotbook-cli", Company: "INTERNAL", Role: application.RoleAdmin}

type generateOptions struct {
	Date     string
	From     string
	To       string
	Weekdays []string
}

func newGenerateSlotsCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate-slots",
		Short: "Create the daily slot grid for a date or a date range",
		Long: `Create the 08:00-17:30 half-hour grid.

Existing slots are kept, so running the command twice creates nothing new.

Example:
  slotbook generate-slots --date 2024-05-01
  slotbook generate-slots --from 2024-05-01 --to 2024-05-31 --weekday mon --weekday wed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return withWiring(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, w *wiring) error {
				created, err := opts.generate(ctx, w.catalog)
				if err != nil {
					return err
				}

				dates := make([]string, 0, len(created))
				total := 0
				for date, n := range created {
					dates = append(dates, date)
					total += n
				}
				sort.Strings(dates)

				out := cmd.OutOrStdout()
				for _, date := range dates {
					fmt.Fprintf(out, "%s\t%d\n", date, created[date])
				}
				fmt.Fprintf(out, "created %d slots\n", total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "single date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.From, "from", "", "first date of a range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last date of a range (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.Weekdays, "weekday", nil, "restrict a range to these weekdays (repeatable)")

	return cmd
}

func (o *generateOptions) validate() error {
	hasDate := strings.TrimSpace(o.Date) != ""
	hasRange := strings.TrimSpace(o.From) != "" || strings.TrimSpace(o.To) != ""
	switch {
	case hasDate && hasRange:
		return errors.New("--date cannot be combined with --from/--to")
	case !hasDate && !hasRange:
		return errors.New("either --date or --from and --to is required")
	case hasDate && len(o.Weekdays) > 0:
		return errors.New("--weekday only applies to a range")
	}
	return nil
}

func (o *generateOptions) generate(ctx context.Context, catalog *application.CatalogService) (map[string]int, error) {
	if strings.TrimSpace(o.Date) != "" {
		n, err := catalog.GenerateSlots(ctx, application.GenerateSlotsParams{Principal: operator, Date: o.Date})
		if err != nil {
			return nil, describe(err)
		}
		return map[string]int{o.Date: n}, nil
	}

	weekdays := make([]time.Weekday, 0, len(o.Weekdays))
	for _, name := range o.Weekdays {
		day, err := recurrence.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		weekdays = append(weekdays, day)
	}

	created, err := catalog.GenerateSlotsRange(ctx, application.GenerateSlotsRangeParams{
		Principal: operator,
		From:      o.From,
		To:        o.To,
		Weekdays:  weekdays,
	})
	if err != nil {
		return nil, describe(err)
	}
	return created, nil
}

func newSeedCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo accounts that are not registered yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWiring(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, w *wiring) error {
				created, err := w.identity.SeedUsers(ctx, application.DemoUsers)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users\n", created)
				return nil
			})
		},
	}
}

func newAuditCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check stored reservations against slot capacity",
		Long: `Scan every reservation and report over-booked slots, reservations
whose slot no longer exists and reservations whose date differs from the slot.

The command exits with status 3 when violations are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWiring(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(ctx context.Context, w *wiring) error {
				violations, err := w.reservations.AuditCapacity(ctx)
				if err != nil {
					return describe(err)
				}

				out := cmd.OutOrStdout()
				if len(violations) == 0 {
					fmt.Fprintln(out, "no violations")
					return nil
				}
				for _, v := range violations {
					fmt.Fprintf(out, "%s\tslot=%s\treservation=%s\t%s\n", v.Kind, v.SlotID, v.ReservationID, v.Detail)
				}
				return &exitError{code: exitViolations}
			})
		},
	}
}

// describe flattens validation details into the error text.
func describe(err error) error {
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || !vErr.HasErrors() {
		return err
	}
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: %s", err, strings.Join(fields, "; "))
}
