package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keychainkit/output"
	"keychainkit/selftest"
)

var (
	selftestReportPrefix string
	selftestExportDir    string
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the fixed scenario battery against a fixture file",
	RunE:  runSelftest,
}

func init() {
	selftestCmd.Flags().StringVar(&selftestReportPrefix, "report", "./selftest-report",
		"path prefix for the generated .json and .html reports")
	selftestCmd.Flags().StringVar(&selftestExportDir, "export-dir", "",
		"directory the private-key export scenario writes into (defaults to a temp dir)")
	rootCmd.AddCommand(selftestCmd)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	if err := requireFixture(); err != nil {
		return err
	}

	suite := selftest.NewSuite(selftest.Options{
		FixturePath: fixturePath,
		Password:    password,
		ExportDir:   selftestExportDir,
	})
	suite.RunAll()

	for _, r := range suite.Results {
		if r.Passed {
			output.PrintSuccess(fmt.Sprintf("%s: %s", r.Name, r.Detail))
		} else {
			output.PrintError(fmt.Sprintf("%s: %s (%s)", r.Name, r.Detail, r.Error))
		}
	}

	summary := suite.GetSummary()
	output.PrintWarning(fmt.Sprintf("%d/%d scenarios passed (%.1f%%)", summary.Passed, summary.Total, summary.PassRate))

	if err := suite.GenerateReport(selftestReportPrefix); err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	output.PrintSuccess(fmt.Sprintf("wrote %s.json and %s.html", selftestReportPrefix, selftestReportPrefix))

	if summary.Failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", summary.Failed)
	}
	return nil
}
