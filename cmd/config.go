package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tracker"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage tracker configuration.

Running bare 'tracker config' is the same as 'tracker config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# tracker configuration
# See: tracker config show (for effective values and sources)

# SQLite database path (default: ~/.config/tracker/tracker.db)
# db_path: {{ .DBPath }}

# JSON API server
server:
  port: {{ .ServerPort }}
  # Base URL used by 'tracker browse --remote'
  url: "{{ .ServerURL }}"

# Status workflow
workflow:
  # Reject status changes that skip the transition table (default: true)
  enforce_transitions: {{ .EnforceTransitions }}

# Password hashing
auth:
  # bcrypt cost for new signups (default: 12)
  bcrypt_cost: {{ .BcryptCost }}

# Issue type suggestions (keyword heuristic when no key is set)
anthropic:
  # api_key: sk-ant-...
  model: "{{ .AnthropicModel }}"

# OpenTelemetry around the store
telemetry:
  enabled: {{ .TelemetryEnabled }}
  # Print spans and metrics to stderr
  stdout: {{ .TelemetryStdout }}

# Acting user for CLI commands (set by 'tracker user select')
user:
  id: "{{ .UserID }}"
`

type configTemplateData struct {
	DBPath             string
	ServerPort         int
	ServerURL          string
	EnforceTransitions bool
	BcryptCost         int
	AnthropicModel     string
	TelemetryEnabled   bool
	TelemetryStdout    bool
	UserID             string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// renderConfig renders the commented config template from current values.
func renderConfig() ([]byte, error) {
	data := configTemplateData{
		DBPath:             viper.GetString("db_path"),
		ServerPort:         viper.GetInt("server.port"),
		ServerURL:          viper.GetString("server.url"),
		EnforceTransitions: viper.GetBool("workflow.enforce_transitions"),
		BcryptCost:         viper.GetInt("auth.bcrypt_cost"),
		AnthropicModel:     viper.GetString("anthropic.model"),
		TelemetryEnabled:   viper.GetBool("telemetry.enabled"),
		TelemetryStdout:    viper.GetBool("telemetry.stdout"),
		UserID:             viper.GetString("user.id"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("template execute error: %w", err)
	}
	return buf.Bytes(), nil
}

// writeConfig renders the config and writes it to cfgPath.
func writeConfig(cfgPath string) ([]byte, error) {
	content, err := renderConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write config file: %w", err)
	}
	return content, nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	content, err := writeConfig(cfgPath)
	if err != nil {
		return err
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(content))
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "TRACKER_DB_PATH"},
	{Key: "server.port", EnvVar: "TRACKER_SERVER_PORT"},
	{Key: "server.url", EnvVar: "TRACKER_SERVER_URL"},
	{Key: "workflow.enforce_transitions", EnvVar: "TRACKER_WORKFLOW_ENFORCE_TRANSITIONS"},
	{Key: "auth.bcrypt_cost", EnvVar: "TRACKER_AUTH_BCRYPT_COST"},
	{Key: "anthropic.api_key", EnvVar: "TRACKER_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "TRACKER_ANTHROPIC_MODEL"},
	{Key: "telemetry.enabled", EnvVar: "TRACKER_TELEMETRY_ENABLED"},
	{Key: "telemetry.stdout", EnvVar: "TRACKER_TELEMETRY_STDOUT"},
	{Key: "user.id", EnvVar: "TRACKER_USER_ID"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'tracker config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

// setConfigValue persists a single key into the config file, creating the
// file from the template when it does not exist yet.
func setConfigValue(key string, value any) error {
	viper.Set(key, value)
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if viper.ConfigFileUsed() != "" {
		cfgPath = viper.ConfigFileUsed()
	}

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		_, err = writeConfig(cfgPath)
		return err
	}
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	setNested(doc, strings.Split(key, "."), value)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(cfgPath, out, 0o600)
}

func setNested(m map[string]any, path []string, value any) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[path[0]] = child
	}
	setNested(child, path[1:], value)
}
