package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
)

func newRunCommand(a *app) *cobra.Command {
	var date string
	var limit int
	var periods []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Audit every entity, then generate each period's report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := refDate(date)
			if err != nil {
				return err
			}
			pers, err := parsePeriods(periods)
			if err != nil {
				return err
			}

			p, cleanup, err := a.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			return p.Run(cmd.Context(), ref, limit, pers)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&limit, "limit", 0, "audit only the first N entities")
	cmd.Flags().StringSliceVar(&periods, "period", nil, "periods to report (default daily,weekly,monthly)")

	return cmd
}

func newAuditCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Flag and score every entity's expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := a.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			run, results, err := p.Audit(cmd.Context(), limit)
			if run != nil {
				printRun(cmd.OutOrStdout(), run, results)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "audit only the first N entities")

	return cmd
}

func printRun(w io.Writer, run *domain.AuditRun, results []domain.AuditResult) {
	for _, res := range results {
		if res.Status == domain.AuditFailed {
			fmt.Fprintf(w, "%s\t%s\t%s\n", res.EntityID, res.Status, res.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d flagged\t%d critical\n", res.EntityID, res.Status, res.FlaggedRows, res.CriticalRows)
	}
	fmt.Fprintf(w, "run %s: %d entities, %d written, %d no_raw_data, %d no_valid_rows, %d no_flags, %d failed\n",
		run.ID, run.Entities, run.Written, run.NoRawData, run.NoValidRows, run.NoFlags, run.Failed)
}

func newReportCommand(a *app) *cobra.Command {
	var date, per string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the summary and critical tables for one period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := refDate(date)
			if err != nil {
				return err
			}
			p, err := period.Parse(per)
			if err != nil {
				return err
			}

			pl, cleanup, err := a.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			_, artifacts, err := pl.Report(cmd.Context(), ref, p)
			if errors.Is(err, domain.ErrEmptyAfterFilter) {
				fmt.Fprintf(cmd.OutOrStdout(), "no flagged expenses in the %s period of %s\n", p, ref.Format(domain.DateLayout))
				return nil
			}
			if err != nil {
				return err
			}
			for _, path := range artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&per, "period", "", "daily, weekly or monthly")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func newWorkbookCommand(a *app) *cobra.Command {
	var date, per string

	cmd := &cobra.Command{
		Use:   "workbook",
		Short: "Render a generated report as an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := refDate(date)
			if err != nil {
				return err
			}
			p, err := period.Parse(per)
			if err != nil {
				return err
			}

			pl, cleanup, err := a.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := pl.Workbook(cmd.Context(), ref, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&per, "period", "", "daily, weekly or monthly")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}
