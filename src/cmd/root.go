// Package cmd implements the siren command line.
package cmd

import (
	"fmt"

	"github.com/hendrywilliam/sirengate/src/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	verbose bool

	v       = config.NewViper()
	initErr error

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main with the values set at link time.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "siren",
	Short: "Discord gateway bot",
	Long: `siren keeps a Discord gateway session alive and talks to the REST API
under Discord's rate limits.

Use the subcommands to perform specific operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initErr
	},
}

// Execute runs the root command. It is called once by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if err := config.LoadEnvFile(envFile); err != nil {
		initErr = err
		return
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		initErr = err
	}
}

// loadConfig decodes and validates the effective configuration.
func loadConfig(vp *viper.Viper, validate bool) (*config.Config, error) {
	cfg, err := config.Load(vp)
	if err != nil {
		return nil, err
	}
	if vp.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}
	return cfg, nil
}
