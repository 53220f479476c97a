package commands

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/query"
	"github.com/opensource-finance/quotawatch/internal/store"
)

// openEnd bounds a --from query with no --to.
var openEnd = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func newFlaggedCommand(a *app) *cobra.Command {
	var entityID, from, to, where string

	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "Print an entity's flagged expenses as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(from, to, where)
			if err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.Load(cmd.Context(), entityID)
			if err != nil {
				return err
			}
			records, err = q.Apply(records)
			if err != nil {
				return err
			}
			return store.WriteFlagged(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&entityID, "entity", "", "entity id")
	cmd.Flags().StringVar(&from, "from", "", "first document date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last document date YYYY-MM-DD")
	cmd.Flags().StringVar(&where, "where", "", "CEL filter, e.g. 'fraud_score >= 5 && flags.flag_weekend'")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func buildQuery(from, to, where string) (query.Query, error) {
	var q query.Query

	if from != "" || to != "" {
		var rng domain.DateRange
		if from != "" {
			start, err := period.ParseDate(from)
			if err != nil {
				return q, err
			}
			rng.Start = start
		}
		if to != "" {
			end, err := period.ParseDate(to)
			if err != nil {
				return q, err
			}
			rng.End = end
		} else {
			rng.End = openEnd
		}
		if rng.End.Before(rng.Start) {
			return q, fmt.Errorf("%w: --to %s is before --from %s", domain.ErrInvalidInput, to, from)
		}
		q.Range = &rng
	}

	if where != "" {
		f, err := query.Compile(where)
		if err != nil {
			return q, err
		}
		q.Filter = f
	}
	return q, nil
}

func newPlanCommand(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the entity and year pairs the downloader must supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := refDate(date)
			if err != nil {
				return err
			}

			entities, err := a.source().Entities(cmd.Context())
			if err != nil {
				return err
			}
			years := period.HistoryYears(ref, a.cfg.Audit.HistoryMonths)

			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write([]string{"entity_id", "year"}); err != nil {
				return err
			}
			for _, e := range entities {
				for _, y := range years {
					if err := w.Write([]string{e.ID, strconv.Itoa(y)}); err != nil {
						return err
					}
				}
			}
			w.Flush()
			return w.Error()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")

	return cmd
}
