package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/maykinmedia/gemma-zaken-demo/cmd/zac/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "zac",
	Short: "Zaakafhandelcomponent for the ZDS APIs",
	Long: `A case handling component talking to the Dutch ZDS APIs (Zaken,
Documenten, Catalogi, Besluiten).

It serves the web API for case workers, checks the configured services and
offers direct access to the APIs and the notification broker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.zac/config.yml)")
	rootCmd.PersistentFlags().StringP("output", "o", defaultOutput(), "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add commands
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewAPICommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(commands.NewEmitCommand())
	rootCmd.AddCommand(commands.NewConsumeCommand())
	rootCmd.AddCommand(commands.NewLogCommand())
}

// defaultOutput prints tables to terminals and JSON everywhere else.
func defaultOutput() string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return commands.OutputFormatTable
	}

	return commands.OutputFormatJSON
}

func initConfig() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	err := godotenv.Load(envFile)
	if err != nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "No environment file loaded:", envFile)
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("ZAC")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
