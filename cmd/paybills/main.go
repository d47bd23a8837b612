package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/paybills/pkg/config"
	"github.com/yurifrl/paybills/pkg/executors"
	"github.com/yurifrl/paybills/pkg/plan"
	"github.com/yurifrl/paybills/pkg/report"
)

var (
	cliFilters filters
	cfgFile    string
	asCSV      bool
)

var rootCmd = &cobra.Command{
	Use:           "paybills",
	Short:         "Reconcile the bill payment workbook against the ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Reconcile without writing to the ledger (dry run)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd, false)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile and create missing payments in the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd, true)
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print the normalized payments of the workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// records never reads the ledger
		if err := cmd.Flags().Set("skip-ledger", "true"); err != nil {
			return err
		}
		cfg, logger, err := load(cmd)
		if err != nil {
			return err
		}
		exec := executors.New(logger, cfg, nil, nil)
		res, err := exec.Records(executors.RunFromConfig(cfg))
		if err != nil {
			return err
		}

		if asCSV {
			out, err := recordsCSV(res.Payments, &cliFilters)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		}
		pp.Println(res.Payments)
		if len(res.Skipped) > 0 {
			pp.Println(res.Skipped)
		}
		return nil
	},
}

var applyPlanCmd = &cobra.Command{
	Use:   "apply-plan <plan_file>",
	Short: "Execute every run of a YAML plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		cfg, logger, err := load(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Plan %s\n", args[0])
		p.Print()

		var failed []error
		for _, r := range p.Runs {
			run := executors.RunFromPlan(cfg, r)
			runCfg := *cfg
			runCfg.SkipLedger = run.SkipLedger
			exec, closeFn, err := executors.Setup(logger.With("run", r.Name), &runCfg)
			if err != nil {
				return err
			}

			var payload *report.Payload
			if r.DryRun {
				payload, err = exec.Plan(cmd.Context(), run)
			} else {
				payload, err = exec.Apply(cmd.Context(), run)
			}
			if cerr := closeFn(); cerr != nil {
				logger.Warn("failed to close journal", "error", cerr)
			}

			fmt.Printf("\n%s\n", r.Name)
			printSummary(payload)
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", r.Name, err))
			}
		}
		return errors.Join(failed...)
	},
}

// runOnce executes the run the flags and config describe.
func runOnce(cmd *cobra.Command, writeBack bool) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}
	exec, closeFn, err := executors.Setup(logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("failed to close journal", "error", err)
		}
	}()

	ctx := cmd.Context()
	var p *report.Payload
	if writeBack {
		p, err = exec.Apply(ctx, executors.RunFromConfig(cfg))
	} else {
		p, err = exec.Plan(ctx, executors.RunFromConfig(cfg))
	}
	printSummary(p)
	return err
}

func load(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "paybills",
	})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
	}
	return cfg, logger, nil
}

func printSummary(p *report.Payload) {
	if p == nil {
		return
	}
	addedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))    // green
	conflictStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))     // red
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))     // gray
	plannedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // blue

	for _, a := range p.PaymentsAdded {
		vendor := ""
		if a.Vendor != nil {
			vendor = *a.Vendor
		}
		fmt.Println(addedStyle.Render(fmt.Sprintf("+ %s | %-30s | %s | %s", a.Date, vendor, a.ID, a.Amount)))
	}
	for _, a := range p.PaymentsPlanned {
		vendor := ""
		if a.Vendor != nil {
			vendor = *a.Vendor
		}
		fmt.Println(plannedStyle.Render(fmt.Sprintf("~ %s | %-30s | %s | %s", a.Date, vendor, a.ID, a.Amount)))
	}
	for _, c := range p.Conflicts {
		fmt.Println(conflictStyle.Render(fmt.Sprintf("! %s | %s", c.RecordID, c.Reason)))
	}
	for _, s := range p.Skipped {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("- %s row=%d %s: %s", s.RecordID, s.Row, s.Stage, s.Reason)))
	}

	fmt.Printf("\nRun %s: %d matched, %d only in workbook, %d only in ledger, %d added\n",
		p.RunID, p.MatchedCount, p.ExternalOnlyCount, p.LedgerOnlyCount, p.AddedCount)
	if p.WriteBack.Error != "" {
		fmt.Println(errorStyle.Render("write-back failed: " + p.WriteBack.Error))
	}
	if p.Failed() {
		fmt.Println(errorStyle.Render("error: " + p.Error))
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().StringP("workbook", "w", "", "Payment workbook (.xlsx, .xls or .csv)")
	rootCmd.PersistentFlags().StringP("sheet", "s", "vendor", "Worksheet name, or vendor / nonvendor")
	rootCmd.PersistentFlags().StringP("output", "o", "report.json", "Report location (.json, .csv, .xlsx or gs://bucket/object)")
	rootCmd.PersistentFlags().Bool("skip-ledger", false, "Do not read or write the ledger")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().String("journal", "", "Submission journal (sqlite file)")
	rootCmd.PersistentFlags().String("ledger", "", "Ledger kind (ynab or memory)")
	rootCmd.PersistentFlags().String("budget", "", "YNAB budget ID")
	rootCmd.PersistentFlags().String("account", "", "YNAB account ID")

	// Flags specific to the records subcommand
	recordsCmd.Flags().BoolVar(&asCSV, "csv", false, "Print CSV instead of a dump")
	recordsCmd.Flags().StringVar(&cliFilters.startDate, "start", "", "Start date (YYYY-MM-DD)")
	recordsCmd.Flags().StringVar(&cliFilters.endDate, "end", "", "End date (YYYY-MM-DD)")
	recordsCmd.Flags().Float64Var(&cliFilters.minAmount, "min", 0, "Minimum amount")
	recordsCmd.Flags().Float64Var(&cliFilters.maxAmount, "max", 0, "Maximum amount")
	recordsCmd.Flags().StringVar(&cliFilters.vendor, "vendor", "", "Filter by vendor (case insensitive)")

	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(applyPlanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
