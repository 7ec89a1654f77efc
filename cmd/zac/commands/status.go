package commands

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	var checkConfig bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the configured services",
		Long: `Report whether every configured service is working, unavailable or
unreachable. With --check-config the credentials are verified as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			application, _, err := createApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if checkConfig {
				groups, err := application.CheckConfig(cmd.Context())
				if err != nil {
					return err
				}

				return render(cmd.OutOrStdout(), format, groups, func(table *tablewriter.Table) error {
					table.Header("Service", "Setting", "Value", "OK", "Message")

					for _, group := range groups {
						for _, item := range group.Items {
							_ = table.Append(group.Title, item.Label, item.Value, yesNo(item.OK), item.Message)
						}
					}

					return nil
				})
			}

			results := application.Checker.CheckAll(cmd.Context(), application.Targets())

			return render(cmd.OutOrStdout(), format, results, func(table *tablewriter.Table) error {
				table.Header("Service", "URL", "Status")

				for _, result := range results {
					_ = table.Append(result.Service, result.URL, result.Message)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&checkConfig, "check-config", false, "also verify connectivity and credentials")

	return cmd
}

func yesNo(ok bool) string {
	if ok {
		return "ja"
	}

	return "nee"
}
