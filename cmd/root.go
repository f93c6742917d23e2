// Package cmd implements the command-line interface for linkscan. It
// provides the root command and subcommands for running scans, check
// workers, and the administrative HTTP server.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/linkscan/cmd/httpd"
	cmdscan "github.com/jonesrussell/linkscan/cmd/scan"
	"github.com/jonesrussell/linkscan/cmd/worker"
	"github.com/jonesrussell/linkscan/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "linkscan",
		Short: "A broken-link scanner for content-store sites",
		Long:  `Scans a site's pages for broken links, synchronously or on a distributed worker queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to viper.
	_ = godotenv.Load()

	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("linkscan version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(cmdscan.Command())
	rootCmd.AddCommand(worker.Command())
	rootCmd.AddCommand(httpd.Command())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults()

	// Config file is optional: defaults and environment variables cover
	// every setting.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if debug || viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}

	return nil
}

// bindEnvVars maps well-known environment variables to config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":    {"APP_ENV"},
		"app.debug":          {"APP_DEBUG"},
		"logger.level":       {"LOG_LEVEL"},
		"logger.encoding":    {"LOG_FORMAT"},
		"database.host":      {"POSTGRES_HOST"},
		"database.port":      {"POSTGRES_PORT"},
		"database.user":      {"POSTGRES_USER"},
		"database.password":  {"POSTGRES_PASSWORD"},
		"database.dbname":    {"POSTGRES_DB"},
		"redis.addr":         {"REDIS_ADDR"},
		"redis.password":     {"REDIS_PASSWORD"},
		"pagetree.base_url":  {"PAGETREE_BASE_URL"},
		"pagetree.api_token": {"PAGETREE_API_TOKEN"},
	}

	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}
