package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/common/logtrace"
	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
	configFile string
	logLevel   string
	whatIf     bool
	force      bool
	passThru   bool
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cmas [command] [flags]",
	Short: "cmas - a command line client for the Configuration Manager Admin Service",
	Long: `cmas manages Configuration Manager sites through the Admin Service REST API.
It creates and maintains collections and their membership rules, reads devices,
manages device and collection variables, and runs approved scripts.

Examples:
  # Connect to a site server
  cmas connect --server cm01.corp.example --username 'CORP\admin'

  # List collections whose name starts with "Pilot"
  cmas collection get --name 'Pilot*'

  # Add a device to a collection
  cmas collection rule add --name 'Pilot Devices' --type direct --device-name WKS001

  # Run a script on a device and wait for the result
  cmas script invoke --name Get-Uptime --resource-ids 16777220
  cmas script status 16777300 --wait`,
	PersistentPreRunE: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Set up persistent flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&whatIf, "what-if", false, "Show what would change without changing anything")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Do not ask for confirmation")
	rootCmd.PersistentFlags().BoolVar(&passThru, "passthru", false, "Print the objects a removal deleted")

	// Add commands
	rootCmd.AddCommand(newVersionCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(reportError(os.Stdout, os.Stderr, err))
	}
}

// reportError prints err the way the CLI reports failures and returns the
// process exit code.
func reportError(stdout, stderr io.Writer, err error) int {
	code := 1
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		code = appErr.ExitCode()
	}
	if errors.Is(err, ErrAlreadyHandled) {
		return code
	}
	if jsonOutput {
		kv := map[string]string{
			"error": err.Error(),
		}
		if appErr != nil {
			if fields := apperrors.FieldString(appErr); fields != "" {
				kv["context"] = fields
			}
		}
		printJSON(stdout, kv)
	} else {
		errorLabel.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// preRunHandlePersistents handles persistent flags and configuration loading before command execution
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	logtrace.InitLogger(logLevel, true)
	loadDotEnv()

	if configFile == "" {
		var err error
		configFile, err = GetDefaultConfigPath()
		if err != nil {
			return err
		}
	}
	return nil
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cmas",
		Run: func(cmd *cobra.Command, args []string) {
			configPath := configFile
			if configPath == "" {
				configPath = "unknown"
			}

			if jsonOutput {
				kv := map[string]string{
					"version":     getCLIVersion(),
					"config_file": configPath,
				}
				printJSON(cmd.OutOrStdout(), kv)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cmas %s\n", getCLIVersion())
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configPath)
			}
		},
	}
}

// operationOptions maps the global flags onto sccm.Options.
func operationOptions() sccm.Options {
	return sccm.Options{WhatIf: whatIf, Force: force, PassThru: passThru}
}

// printJSON prints the given value as indented JSON
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(jsonData))
}

// getCLIVersion returns the current CLI version
func getCLIVersion() string {
	return "v0.3.0"
}
