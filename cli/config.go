package cli

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/genericclioptions"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ConfigOptions holds cli, file, and resolved global configuration.
type ConfigOptions struct {
	*genericclioptions.StdioOptions

	fileConfig *FileConfig
	cliFlags   *Flags

	resolved *ResolvedConfig
}

type Flags struct {
	configPath string
	dataDir    string
}

// ResolvedConfig is the final merged configuration; cli flags take
// precedence over config file values.
//
//nolint:tagliatelle
type ResolvedConfig struct {
	DataDir  string   `json:"data_dir,omitempty"`
	CopyCmd  []string `json:"copy_cmd,omitempty"`
	PasteCmd []string `json:"paste_cmd,omitempty"`
}

var _ genericclioptions.CmdOptions = &ConfigOptions{}

func NewConfigOptions(stdio *genericclioptions.StdioOptions) *ConfigOptions {
	return &ConfigOptions{
		StdioOptions: stdio,
		fileConfig:   newFileConfig(),
		cliFlags:     &Flags{},
		resolved:     &ResolvedConfig{},
	}
}

func (o *ConfigOptions) Complete() error {
	c, err := LoadFileConfig(o.cliFlags.configPath)
	if err != nil {
		return err
	}

	o.fileConfig = c

	return o.resolve()
}

func (o *ConfigOptions) resolve() error {
	o.resolved.CopyCmd = o.fileConfig.Clipboard.CopyCmd
	o.resolved.PasteCmd = o.fileConfig.Clipboard.PasteCmd
	o.resolved.DataDir = cmp.Or(o.cliFlags.dataDir, o.fileConfig.Vault.DataDir)

	return nil
}

func (*ConfigOptions) Validate() error { return nil }

func (*ConfigOptions) Run(context.Context, ...string) error { return nil }

// NewCmdConfig creates the `config` cobra command.
func NewCmdConfig(defaults *DefaultOptions) *cobra.Command {
	o := NewConfigOptions(defaults.StdioOptions)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Resolve and inspect the active ghostauthctl configuration",
		Long: fmt.Sprintf(`Resolve and display the active ghostauthctl configuration.

If --file is not provided, the default config path (~/%s) is used.`, defaultConfigName),
		Run: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))

			if len(o.fileConfig.path) == 0 {
				o.Infof("no config file found; using default values.\n")
				return
			}

			c := struct {
				Path     string `json:"path"`
				Parsed   any    `json:"parsed_config"`   //nolint:tagliatelle
				Resolved any    `json:"resolved_config"` //nolint:tagliatelle
			}{
				Path:     o.fileConfig.path,
				Parsed:   o.fileConfig,
				Resolved: o.resolved,
			}

			o.Printf("%s", stringifyPretty(c))
		},
	}

	cmd.Flags().StringVarP(&o.cliFlags.configPath, "file", "f", "",
		fmt.Sprintf("path to the configuration file (default: ~/%s)", defaultConfigName))

	cmd.AddCommand(newGenerateConfigCmd())

	return cmd
}

func stringifyPretty(v any) string {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("stringify error: %v", err)
	}

	return buf.String()
}

func newGenerateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print a default config file",
		Long:  `Outputs the default configuration in TOML format to stdout.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out, err := toml.Marshal(newFileConfig())
			clierror.Check(err)

			fmt.Fprintf(cmd.OutOrStdout(), "%s", out)
		},
	}
}
