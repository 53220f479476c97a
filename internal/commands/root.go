// Package commands implements the quotawatch command line.
package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/quotawatch/internal/audit"
	"github.com/opensource-finance/quotawatch/internal/bus"
	"github.com/opensource-finance/quotawatch/internal/config"
	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/logging"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/pipeline"
	"github.com/opensource-finance/quotawatch/internal/publish"
	"github.com/opensource-finance/quotawatch/internal/report"
	"github.com/opensource-finance/quotawatch/internal/rules"
	"github.com/opensource-finance/quotawatch/internal/scoring"
	"github.com/opensource-finance/quotawatch/internal/store"
)

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

const skipConfig = "skip-config"

// app is the state shared by every subcommand of one invocation.
type app struct {
	info       BuildInfo
	configPath string
	cfg        *domain.Config
	closeLog   func() error
}

// Execute runs the CLI until it finishes or the process is signalled.
func Execute(info BuildInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{info: info}
	defer a.close()
	return newRootCommand(a).ExecuteContext(ctx)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(info BuildInfo) *cobra.Command {
	return newRootCommand(&app{info: info})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "quotawatch",
		Short:   "Audit legislators' expense claims for suspicious patterns",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", a.info.Version, a.info.Commit, a.info.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+" if present)")

	rootCmd.AddCommand(
		newRunCommand(a),
		newAuditCommand(a),
		newReportCommand(a),
		newWorkbookCommand(a),
		newFlaggedCommand(a),
		newPlanCommand(a),
		newServeCommand(a),
		newVersionCommand(a),
	)

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.close()
	closeLog, err := logging.Setup(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.closeLog = closeLog
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

func (a *app) openStore() (domain.FlaggedStore, error) {
	st, err := store.New(a.cfg.Store, a.cfg.Paths.ProcessedDir())
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", a.cfg.Store.Driver, err)
	}
	return st, nil
}

func (a *app) source() *store.RawSource {
	return store.NewRawSource(a.cfg.Paths.RawDir())
}

// openPipeline wires every pipeline collaborator. The returned func
// releases them.
func (a *app) openPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	weights, err := a.cfg.Audit.FlagWeights()
	if err != nil {
		return nil, nil, err
	}

	st, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	b, err := bus.New(a.cfg.EventBus)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	sink, err := publish.NewGCSSink(ctx, a.cfg.Publish)
	if err != nil {
		b.Close()
		st.Close()
		return nil, nil, err
	}

	src := a.source()
	calc := scoring.NewCalculator(weights, a.cfg.Audit.CriticalThreshold)
	pcfg := pipeline.Config{
		Source:     src,
		Store:      st,
		Runner:     audit.NewRunner(src, st, rules.NewEngine(a.cfg.Audit.Workers), calc),
		Aggregator: report.NewAggregator(st, a.cfg.Paths.ReportsDir, a.cfg.Audit.CriticalThreshold),
		ReportsDir: a.cfg.Paths.ReportsDir,
		Bus:        b,
	}
	if sink != nil {
		pcfg.Sink = sink
	}

	cleanup := func() {
		if sink != nil {
			sink.Close()
		}
		b.Close()
		st.Close()
	}
	return pipeline.New(pcfg), cleanup, nil
}

// refDate parses --date, defaulting to today.
func refDate(s string) (time.Time, error) {
	if s == "" {
		return period.Date(time.Now()), nil
	}
	return period.ParseDate(s)
}

func parsePeriods(names []string) ([]period.Period, error) {
	if len(names) == 0 {
		return period.All(), nil
	}
	out := make([]period.Period, 0, len(names))
	for _, n := range names {
		p, err := period.Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
