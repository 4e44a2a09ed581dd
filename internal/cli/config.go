package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.yaml"

const configVersion = "0.1.0"

// Config represents the configuration for the cmas CLI.
// It holds the site server connection details. Passwords are never stored.
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version"`
	// SiteServer is the host name of the SMS Provider serving the Admin Service
	SiteServer string `yaml:"site_server"`
	// SiteCode is the three character site code reported by the site server
	SiteCode string `yaml:"site_code,omitempty"`
	// Username is the account used for NTLM authentication (DOMAIN\user or user@domain)
	Username string `yaml:"username,omitempty"`
	// SkipCertificateCheck disables TLS certificate verification
	SkipCertificateCheck bool `yaml:"skip_certificate_check,omitempty"`
	// RetryAttempts is the number of attempts for idempotent requests
	RetryAttempts uint `yaml:"retry_attempts,omitempty"`
	// NamingPrefix is the prefix new collection names are expected to carry
	NamingPrefix string `yaml:"naming_prefix,omitempty"`
}

// GetDefaultConfigPath returns the default path for the config file
// It uses the OS-specific config directory (e.g., ~/.config/cmas on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user config directory")
	}
	return filepath.Join(configDir, "cmas", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the specified file
// If no file is specified, it uses the default config location.
// A file without a site server is valid: disconnect keeps the other settings.
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	yamlStr, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, errors.Wrap(err, "unable to read config file")
	}

	var c Config
	if err = yaml.Unmarshal(yamlStr, &c); err != nil {
		return nil, errors.Wrap(err, "unable to parse config file")
	}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteConfig writes the configuration to the specified file
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	err := os.MkdirAll(filepath.Dir(file), os.ModePerm)
	if err != nil {
		return errors.Wrap(err, "unable to create config directory")
	}

	yamlStr, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "unable to generate configuration")
	}

	err = os.WriteFile(file, yamlStr, os.FileMode(0600))
	if err != nil {
		return errors.Wrap(err, "unable to write config file")
	}

	return nil
}

// ValidateConfig validates the configuration
func (cfg *Config) ValidateConfig() error {
	if strings.Contains(cfg.SiteServer, "/") {
		return ErrInvalidConfig.Suffix("site server must be a host name, not a URL: " + cfg.SiteServer)
	}
	return nil
}

// requireSiteServer fails with ErrNotConfigured when no site server is stored.
func (cfg *Config) requireSiteServer() error {
	if cfg.SiteServer == "" {
		return ErrNotConfigured
	}
	return nil
}

// MorphServer reduces a server argument to a bare host name.
// Scheme and path are dropped, since the Admin Service root is fixed.
func MorphServer(server string) string {
	server = strings.TrimSpace(server)
	server = strings.TrimPrefix(server, "https://")
	server = strings.TrimPrefix(server, "http://")
	if i := strings.Index(server, "/"); i >= 0 {
		server = server[:i]
	}
	return server
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `Manage CLI configuration settings like the site server, retry behaviour and naming prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// configShowCmd prints the configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]any{
				"config_file": configFile,
				"config":      cfg,
			})
			return nil
		}
		cfg.Print(cmd.OutOrStdout(), configFile)
		return nil
	},
}

var (
	configRetryAttempts uint
	configNamingPrefix  string
)

// configSetCmd updates individual settings
var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change configuration settings",
	Long: `Change configuration settings. Only the flags given are changed.

Examples:
  cmas config set --retry-attempts 5
  cmas config set --naming-prefix 'CM - '`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if errors.Is(err, ErrNotConfigured) {
			cfg, err = &Config{Version: configVersion}, nil
		}
		if err != nil {
			return err
		}
		changed := false
		if cmd.Flags().Changed("retry-attempts") {
			cfg.RetryAttempts = configRetryAttempts
			changed = true
		}
		if cmd.Flags().Changed("naming-prefix") {
			cfg.NamingPrefix = configNamingPrefix
			changed = true
		}
		if !changed {
			return ErrNothingToChange.Suffix("pass --retry-attempts or --naming-prefix")
		}
		if err := cfg.WriteConfig(configFile); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
		} else {
			okLabel.Fprintln(cmd.OutOrStdout(), "Configuration updated")
		}
		return nil
	},
}

func init() {
	configSetCmd.Flags().UintVar(&configRetryAttempts, "retry-attempts", 3, "Attempts for idempotent requests")
	configSetCmd.Flags().StringVar(&configNamingPrefix, "naming-prefix", "", "Prefix expected on new collection names")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// Print prints the configuration in a human-readable format
func (cfg *Config) Print(w io.Writer, path string) {
	fmt.Fprintf(w, "Config file:    %s\n", path)
	fmt.Fprintf(w, "Site server:    %s\n", cfg.SiteServer)
	if cfg.SiteCode != "" {
		fmt.Fprintf(w, "Site code:      %s\n", cfg.SiteCode)
	}
	if cfg.Username != "" {
		fmt.Fprintf(w, "Username:       %s\n", cfg.Username)
	}
	if cfg.SkipCertificateCheck {
		fmt.Fprintf(w, "Certificates:   not verified\n")
	}
	fmt.Fprintf(w, "Retry attempts: %d\n", cfg.retryAttempts())
	if cfg.NamingPrefix != "" {
		fmt.Fprintf(w, "Naming prefix:  %q\n", cfg.NamingPrefix)
	}
}

func (cfg *Config) retryAttempts() uint {
	if cfg.RetryAttempts == 0 {
		return 3
	}
	return cfg.RetryAttempts
}
