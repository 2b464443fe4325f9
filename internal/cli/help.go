// Package cli holds the runtime wiring and input helpers shared by kbctl and kbgated.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSpec describes one command flag for machine consumers.
type FlagSpec struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// CommandSpec describes a command tree, so agents can discover kbctl without parsing help text.
type CommandSpec struct {
	Name        string        `json:"name"`
	Path        string        `json:"path"`
	Use         string        `json:"use,omitempty"`
	Short       string        `json:"short,omitempty"`
	Long        string        `json:"long,omitempty"`
	Example     string        `json:"example,omitempty"`
	Flags       []FlagSpec    `json:"flags,omitempty"`
	Subcommands []CommandSpec `json:"subcommands,omitempty"`
}

func DescribeCommand(cmd *cobra.Command) CommandSpec {
	spec := CommandSpec{
		Name:    cmd.Name(),
		Path:    cmd.CommandPath(),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Long:    cmd.Long,
		Example: cmd.Example,
	}

	collect := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Hidden || f.Name == "help" || f.Name == helpJSONFlag {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			spec.Flags = append(spec.Flags, FlagSpec{
				Name:        f.Name,
				Shorthand:   f.Shorthand,
				Type:        f.Value.Type(),
				Default:     f.DefValue,
				Description: f.Usage,
				Required:    required,
				Inherited:   inherited,
			})
		}
	}
	cmd.LocalFlags().VisitAll(collect(false))
	cmd.InheritedFlags().VisitAll(collect(true))

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		spec.Subcommands = append(spec.Subcommands, DescribeCommand(sub))
	}
	return spec
}

// AddHelpJSONFlag adds the --help-json flag to a root command.
func AddHelpJSONFlag(root *cobra.Command) {
	root.PersistentFlags().Bool(helpJSONFlag, false, "Print the command tree as JSON")
}

// HelpJSON writes the spec of the command args address when args contain
// --help-json, and reports whether it did. It runs before Execute so required
// args and flags of the target command are not enforced.
func HelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	for i, arg := range args {
		if arg != "--"+helpJSONFlag {
			continue
		}
		target, _, err := root.Find(args[:i])
		if err != nil {
			target = root
		}
		out, err := json.MarshalIndent(DescribeCommand(target), "", "  ")
		if err != nil {
			return true, err
		}
		_, err = w.Write(append(out, '\n'))
		return true, err
	}
	return false, nil
}
