package cli

import (
	"context"
	"errors"
	"os"

	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/cmas-go/cmas/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	connectServer    string
	connectUsername  string
	connectSkipCheck bool
	passwordFlag     string
)

// connectCmd validates a site server and stores it in the configuration
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a site server",
	Long: `Connect validates the site server by reading its site code and stores the
connection details in the configuration file. The password is never stored;
later commands read it from --password, the CMAS_PASSWORD environment variable
or an interactive prompt.

Examples:
  cmas connect --server cm01.corp.example --username 'CORP\admin'
  cmas connect --server 10.0.0.5 --skip-cert-check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := MorphServer(connectServer)
		if host == "" {
			return ErrMissingFlag.Suffix("--server")
		}
		cfg, err := LoadConfig(configFile)
		if err != nil {
			if !errors.Is(err, ErrNotConfigured) {
				log.Warn().Err(err).Str("config", configFile).Msg("ignoring unreadable configuration")
			}
			cfg = &Config{}
		}
		cfg.Version = configVersion
		cfg.SiteServer = host
		cfg.Username = connectUsername
		cfg.SkipCertificateCheck = connectSkipCheck
		cfg.SiteCode = ""

		sess, err := connect(cmd, cfg)
		if err != nil {
			return err
		}
		cfg.SiteCode = sess.SiteCode
		if err := cfg.WriteConfig(configFile); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]string{
				"site_server": sess.SiteServer,
				"site_code":   sess.SiteCode,
				"config_file": configFile,
			})
		} else {
			okLabel.Fprintf(cmd.OutOrStdout(), "Connected to %s (site %s)\n", sess.SiteServer, sess.SiteCode)
		}
		return nil
	},
}

// disconnectCmd forgets the stored site server
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored site server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		cleared := &Config{
			Version:       configVersion,
			RetryAttempts: cfg.RetryAttempts,
			NamingPrefix:  cfg.NamingPrefix,
		}
		if err := cleared.WriteConfig(configFile); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
		} else {
			okLabel.Fprintf(cmd.OutOrStdout(), "Disconnected from %s\n", cfg.SiteServer)
		}
		return nil
	},
}

// statusCmd checks the stored connection
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the connection to the configured site server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if err := cfg.requireSiteServer(); err != nil {
			return err
		}
		sess, err := connect(cmd, cfg)
		if jsonOutput {
			kv := map[string]any{
				"site_server": cfg.SiteServer,
				"connected":   err == nil,
			}
			if err != nil {
				kv["error"] = err.Error()
			} else {
				kv["site_code"] = sess.SiteCode
			}
			printJSON(cmd.OutOrStdout(), kv)
		} else if err == nil {
			okLabel.Fprintf(cmd.OutOrStdout(), "Connected to %s (site %s)\n", sess.SiteServer, sess.SiteCode)
		} else {
			errorLabel.Fprintf(cmd.OutOrStdout(), "Not connected to %s: %v\n", cfg.SiteServer, err)
		}
		if err != nil {
			return ErrAlreadyHandled
		}
		return nil
	},
}

func init() {
	connectCmd.Flags().StringVarP(&connectServer, "server", "s", "", "Site server host name (SMS Provider)")
	connectCmd.Flags().StringVarP(&connectUsername, "username", "u", "", `Account for NTLM authentication (DOMAIN\user)`)
	connectCmd.Flags().BoolVar(&connectSkipCheck, "skip-cert-check", false, "Do not verify the server certificate")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "Password for the configured account (prefer "+passwordEnv+")")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(statusCmd)
}

// connect opens a session to the server named in cfg.
func connect(cmd *cobra.Command, cfg *Config) (*session.Session, error) {
	var cred *session.Credential
	if cfg.Username != "" {
		password, err := readPassword(cmd, cfg.Username)
		if err != nil {
			return nil, err
		}
		cred = &session.Credential{Username: cfg.Username, Password: password}
	}
	mgr := session.NewManager(httpclient.ClientOptions{
		RetryAttempts: cfg.retryAttempts(),
	})
	return mgr.Connect(commandContext(cmd), cfg.SiteServer, cred, cfg.SkipCertificateCheck)
}

// clientFromConfig connects to the configured site server and returns a
// client that asks on the terminal before destructive operations.
func clientFromConfig(cmd *cobra.Command) (*sccm.Client, *Config, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.requireSiteServer(); err != nil {
		return nil, nil, err
	}
	sess, err := connect(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := sccm.NewClient(sess, sccm.WithConfirmer(&promptConfirmer{
		in:  cmd.InOrStdin(),
		out: cmd.ErrOrStderr(),
	}))
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readPassword returns the password for username from the flag, the
// environment or the terminal, in that order.
func readPassword(cmd *cobra.Command, username string) (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	if p, ok := os.LookupEnv(passwordEnv); ok {
		return p, nil
	}
	return promptPassword(cmd.ErrOrStderr(), username)
}
