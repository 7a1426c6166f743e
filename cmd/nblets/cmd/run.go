package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/timespan"
)

var (
	runValue   string
	runStart   string
	runEnd     string
	runPeriod  time.Duration
	runOptions []string
	runSilent  bool
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run a notebooklet",
	Long: `Run the notebooklet at the given catalog path against a target value
and time range.

Examples:
  nblets run azsent.host.HostSummary --value workstn01 --start "2026-08-01" --end "2026-08-02"
  nblets run azsent.network.IpAddressSummary --value 203.0.113.7 --period 24h
  nblets run azsent.host.HostSummary --value workstn01 --period 24h --options +processes`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runValue, "value", "", "target identifier (host name, IP address, account, URL)")
	runCmd.Flags().StringVar(&runStart, "start", "", "query window start (e.g. \"2026-08-01\" or RFC3339)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "query window end (default: now)")
	runCmd.Flags().DurationVar(&runPeriod, "period", 0, "query window as a period back from now (e.g. 24h)")
	runCmd.Flags().StringSliceVar(&runOptions, "options", nil, "option set: bare names replace the defaults, +name/-name adjust them")
	runCmd.Flags().BoolVar(&runSilent, "silent", false, "suppress rendered output, only return the result")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
}

func runRun(_ *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefaults(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ts, err := resolveTimespan()
	if err != nil {
		return err
	}

	env, err := buildEnvironment(log, cfg, runSilent || runJSON)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(log)
	if err != nil {
		return err
	}

	path := args[0]

	instance, err := reg.Instantiate(path, env)
	if err != nil {
		return err
	}

	result, err := instance.Run(context.Background(), notebooklet.RunParams{
		Value:    runValue,
		Timespan: ts,
		Options:  runOptions,
	})
	if err != nil {
		return fmt.Errorf("running %s: %w", path, err)
	}

	if runJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(result)
	}

	for _, field := range result.Fields() {
		if notebooklet.HasData(field.Value) {
			fmt.Printf("[populated] %-24s %s\n", field.Name, field.Description)
		}
	}

	return nil
}

// resolveTimespan builds the query window from --period or
// --start/--end. An unset window stays zero; notebooklets that need one
// reject the run themselves.
func resolveTimespan() (timespan.TimeSpan, error) {
	if runPeriod > 0 {
		return timespan.FromPeriod(runPeriod, time.Time{})
	}

	if runStart == "" {
		return timespan.TimeSpan{}, nil
	}

	return timespan.Parse(runStart, runEnd)
}
