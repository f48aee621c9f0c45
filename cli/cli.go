// Package cli assembles the ghostauthctl command tree on top of
// [vaultapi.API]: the composition root that wires [genericclioptions]
// plumbing, the TOML config file, and every subcommand together.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghost-auth/vaultcore/clierror"
	"github.com/ghost-auth/vaultcore/clipboard"
	"github.com/ghost-auth/vaultcore/genericclioptions"
	"github.com/ghost-auth/vaultcore/vaultapi"

	"github.com/spf13/cobra"
)

const (
	// defaultDataDirName is the default directory holding the vault
	// file, keystore fallback, and sync history, created under the
	// user's home directory.
	defaultDataDirName = ".ghostauth"
)

var (
	// preRunSkipCommands bypass opening the vault entirely.
	preRunSkipCommands = []string{"config", "version"}
)

// VaultAPIOptions lazily opens the [vaultapi.API] for the resolved data
// directory.
type VaultAPIOptions struct {
	DataDir string
	API     *vaultapi.API
}

var _ genericclioptions.BaseOptions = &VaultAPIOptions{}

func NewVaultAPIOptions() *VaultAPIOptions {
	return &VaultAPIOptions{}
}

func (o *VaultAPIOptions) Complete() error {
	if len(o.DataDir) == 0 {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}

		o.DataDir = dir
	}

	return nil
}

func (*VaultAPIOptions) Validate() error {
	return nil
}

// Open opens the vault store, keystore, and sync history rooted at
// DataDir, creating the directory if needed.
func (o *VaultAPIOptions) Open() error {
	if err := os.MkdirAll(o.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	a, err := vaultapi.Open(o.DataDir)
	if err != nil {
		return err
	}

	o.API = a

	return nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, defaultDataDirName), nil
}

// DefaultOptions is the top-level option struct shared by every
// subcommand: IO streams, resolved config, and the opened vault API.
type DefaultOptions struct {
	*genericclioptions.StdioOptions

	configOptions *ConfigOptions
	vaultOptions  *VaultAPIOptions
}

var _ genericclioptions.CmdOptions = &DefaultOptions{}

func NewDefaultOptions(iostreams *genericclioptions.IOStreams) *DefaultOptions {
	stdio := &genericclioptions.StdioOptions{IOStreams: iostreams}

	return &DefaultOptions{
		StdioOptions:  stdio,
		configOptions: NewConfigOptions(stdio),
		vaultOptions:  NewVaultAPIOptions(),
	}
}

func (o *DefaultOptions) Complete() error {
	if err := o.StdioOptions.Complete(); err != nil {
		return err
	}

	if err := o.configOptions.Complete(); err != nil {
		return err
	}

	if len(o.vaultOptions.DataDir) == 0 {
		o.vaultOptions.DataDir = o.configOptions.resolved.DataDir
	}

	copyCmd, pasteCmd := o.configOptions.resolved.CopyCmd, o.configOptions.resolved.PasteCmd

	var opts []clipboard.Opt
	if len(copyCmd) > 0 {
		opts = append(opts, clipboard.WithCopyCmd(copyCmd))
	}

	if len(pasteCmd) > 0 {
		opts = append(opts, clipboard.WithPasteCmd(pasteCmd))
	}

	if len(opts) > 0 {
		clipboard.SetDefault(clipboard.New(opts...))
	}

	return o.vaultOptions.Complete()
}

func (o *DefaultOptions) Validate() error {
	if err := o.StdioOptions.Validate(); err != nil {
		return err
	}

	return o.configOptions.Validate()
}

func (o *DefaultOptions) Run(_ context.Context, args ...string) error {
	for _, name := range args {
		for _, skip := range preRunSkipCommands {
			if name == skip {
				return nil
			}
		}
	}

	return o.vaultOptions.Open()
}

// NewDefaultCommand creates the `ghostauthctl` root command with every
// subcommand attached.
func NewDefaultCommand(iostreams *genericclioptions.IOStreams, args []string) *cobra.Command {
	o := NewDefaultOptions(iostreams)

	cmd := &cobra.Command{
		Use:   "ghostauthctl",
		Short: "Local-first TOTP vault with device-to-device sync",
		Long: `ghostauthctl stores TOTP accounts behind an OS-keystore-backed master
key and pairs directly with another device over the local network to
merge changes, without a cloud server in between.

Environment Variables:
    GHOSTAUTH_CONFIG_PATH: overrides the default config path: "~/.ghostauth.toml".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o, commandChain(cmd)...))
		},
	}

	cmd.SetArgs(args)

	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&o.vaultOptions.DataDir, "data-dir", "d", "",
		fmt.Sprintf("vault data directory (default: ~/%s)", defaultDataDirName))
	cmd.PersistentFlags().StringVarP(&o.configOptions.cliFlags.configPath, "config", "", "",
		fmt.Sprintf("configuration file path (default: ~/%s)", defaultConfigName))

	cmd.AddCommand(NewCmdConfig(o))
	cmd.AddCommand(NewCmdVersion(o.StdioOptions))
	cmd.AddCommand(NewCmdAdd(o))
	cmd.AddCommand(NewCmdList(o))
	cmd.AddCommand(NewCmdRemove(o))
	cmd.AddCommand(NewCmdUpdate(o))
	cmd.AddCommand(NewCmdExport(o))
	cmd.AddCommand(NewCmdImport(o))
	cmd.AddCommand(NewCmdPair(o))
	cmd.AddCommand(NewCmdHistory(o))

	return cmd
}

// commandChain returns cmd's name and every ancestor's name, root
// excluded, so a pre-run hook can match against any level (e.g. a
// "config generate" invocation still matches a "config" skip rule).
func commandChain(cmd *cobra.Command) []string {
	var names []string

	for c := cmd; c != nil && c.Parent() != nil; c = c.Parent() {
		names = append(names, c.Name())
	}

	return names
}
