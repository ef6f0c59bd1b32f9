// Package cli builds cobra commands whose options can also be set from
// environment variables or a config file.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Opt is a single command-line option
type Opt struct {
	DestP   interface{} // pointer to the destination
	Flag    string
	Default interface{}
	Desc    string
}

// NewOpt creates a new command line option.
func NewOpt(destP interface{}, flag string, dflt interface{}, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute, once every option is resolved.
	Run func(ctx context.Context) error
	// Name is the name of the program in help usage and the env var prefix.
	Name  string
	Short string
	Opts  []Opt
}

// ConfigFlag names the option pointing at an optional config file. Keys in
// the file are the flag names.
const ConfigFlag = "config"

// NewCommand creates a new cobra command to be executed that respects env vars.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables, so --mesh-password is also read from
// <NAME>_MESH_PASSWORD.
func NewCommand(v *viper.Viper, p *Program) *cobra.Command {
	cmd := &cobra.Command{
		Use:          p.Name,
		Short:        p.Short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if path := v.GetString(ConfigFlag); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", path, err)
				}
			}
			return resolve(v, p.Opts)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return p.Run(cmd.Context())
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd.Flags().String(ConfigFlag, "", "path to a config file (yaml, toml or json)")
	mustBindPFlag(v, ConfigFlag, cmd)
	BindOptions(v, cmd, p.Opts)

	return cmd
}

// BindOptions adds opts to the specified command and automatically
// registers those options with viper.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			cmd.Flags().StringVar(destP, o.Flag, d, o.Desc)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			cmd.Flags().IntVar(destP, o.Flag, d, o.Desc)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			cmd.Flags().BoolVar(destP, o.Flag, d, o.Desc)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			cmd.Flags().DurationVar(destP, o.Flag, d, o.Desc)
		default:
			// if you get a panic here, sorry about that!
			// anyway, go ahead and add another type.
			panic(fmt.Errorf("unknown destination type %T", o.DestP))
		}
		mustBindPFlag(v, o.Flag, cmd)
	}
}

// resolve copies the winning value (flag, env, file, default) into each
// destination.
func resolve(v *viper.Viper, opts []Opt) error {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			*destP = v.GetString(o.Flag)
		case *int:
			*destP = v.GetInt(o.Flag)
		case *bool:
			*destP = v.GetBool(o.Flag)
		case *time.Duration:
			*destP = v.GetDuration(o.Flag)
		default:
			return fmt.Errorf("unknown destination type %T", o.DestP)
		}
	}
	return nil
}

func mustBindPFlag(v *viper.Viper, key string, cmd *cobra.Command) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
		panic(err)
	}
}
