package cli

import (
	"context"

	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/spf13/cobra"
)

// variableScope adapts the device or collection variable operations of the
// client so one set of commands serves both.
type variableScope struct {
	noun   string
	get    func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string) (any, error)
	create func(ctx context.Context, c *sccm.Client, ref resolver.Reference, v sccm.Variable, opts sccm.Options) (any, error)
	set    func(ctx context.Context, c *sccm.Client, ref resolver.Reference, name string, u sccm.VariableUpdate, opts sccm.Options) (any, error)
	remove func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string, opts sccm.Options) (any, error)
}

var deviceVariableScope = variableScope{
	noun: "device",
	get: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string) (any, error) {
		return c.GetDeviceVariable(ctx, ref, pattern)
	},
	create: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, v sccm.Variable, opts sccm.Options) (any, error) {
		return c.NewDeviceVariable(ctx, ref, v, opts)
	},
	set: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, name string, u sccm.VariableUpdate, opts sccm.Options) (any, error) {
		return c.SetDeviceVariable(ctx, ref, name, u, opts)
	},
	remove: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string, opts sccm.Options) (any, error) {
		return c.RemoveDeviceVariable(ctx, ref, pattern, opts)
	},
}

var collectionVariableScope = variableScope{
	noun: "collection",
	get: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string) (any, error) {
		return c.GetCollectionVariable(ctx, ref, pattern)
	},
	create: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, v sccm.Variable, opts sccm.Options) (any, error) {
		return c.NewCollectionVariable(ctx, ref, v, opts)
	},
	set: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, name string, u sccm.VariableUpdate, opts sccm.Options) (any, error) {
		return c.SetCollectionVariable(ctx, ref, name, u, opts)
	},
	remove: func(ctx context.Context, c *sccm.Client, ref resolver.Reference, pattern string, opts sccm.Options) (any, error) {
		return c.RemoveCollectionVariable(ctx, ref, pattern, opts)
	},
}

// variableFlags holds the flags of one variable subcommand.
type variableFlags struct {
	owner  refFlags
	name   string
	value  string
	masked bool
}

// newVariableCmd returns the "variable" command tree for scope.
func newVariableCmd(scope variableScope) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "variable",
		Aliases: []string{"variables", "var"},
		Short:   "Manage " + scope.noun + " variables",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(newVariableGetCmd(scope))
	cmd.AddCommand(newVariableNewCmd(scope))
	cmd.AddCommand(newVariableSetCmd(scope))
	cmd.AddCommand(newVariableRemoveCmd(scope))
	return cmd
}

func newVariableGetCmd(scope variableScope) *cobra.Command {
	var f variableFlags
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List the variables of a " + scope.noun,
		Long: `List the variables of a ` + scope.noun + `. --variable filters by name and
accepts wildcards. Values of masked variables are never shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := f.owner.required()
			if err != nil {
				return err
			}
			client, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			vars, err := scope.get(commandContext(cmd), client, ref, f.name)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), "variables", vars)
		},
	}
	f.owner.bind(cmd, "", titleCase(scope.noun))
	cmd.Flags().StringVar(&f.name, "variable", "", "Variable name filter")
	return cmd
}

func newVariableNewCmd(scope variableScope) *cobra.Command {
	var f variableFlags
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Add a variable to a " + scope.noun,
		Long: `Add a variable to a ` + scope.noun + `. Names may contain letters, digits,
underscores and hyphens and are unique regardless of case.

Examples:
  cmas ` + scope.noun + ` variable new --name X --variable OSDComputerName --value WKS001
  cmas ` + scope.noun + ` variable new --name X --variable JoinPassword --value secret --masked`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := f.owner.required()
			if err != nil {
				return err
			}
			client, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			v := sccm.Variable{Name: f.name, Value: f.value, IsMasked: f.masked}
			created, err := scope.create(commandContext(cmd), client, ref, v, operationOptions())
			if err != nil {
				return err
			}
			if whatIf {
				printWhatIf(cmd.OutOrStdout())
				return nil
			}
			return printResult(cmd.OutOrStdout(), "variable", created)
		},
	}
	f.owner.bind(cmd, "", titleCase(scope.noun))
	cmd.Flags().StringVar(&f.name, "variable", "", "Variable name")
	cmd.Flags().StringVar(&f.value, "value", "", "Variable value")
	cmd.Flags().BoolVar(&f.masked, "masked", false, "Hide the value from reads")
	cmd.MarkFlagRequired("variable")
	return cmd
}

func newVariableSetCmd(scope variableScope) *cobra.Command {
	var f variableFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change a variable of a " + scope.noun,
		Long: `Change the value or masking of one variable. Unmasking a variable requires
a new value, since the old one can not be read back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := f.owner.required()
			if err != nil {
				return err
			}
			var u sccm.VariableUpdate
			if cmd.Flags().Changed("value") {
				u.Value = &f.value
			}
			if cmd.Flags().Changed("masked") {
				u.IsMasked = &f.masked
			}
			client, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			updated, err := scope.set(commandContext(cmd), client, ref, f.name, u, operationOptions())
			if err != nil {
				return err
			}
			if whatIf {
				printWhatIf(cmd.OutOrStdout())
				return nil
			}
			return printResult(cmd.OutOrStdout(), "variable", updated)
		},
	}
	f.owner.bind(cmd, "", titleCase(scope.noun))
	cmd.Flags().StringVar(&f.name, "variable", "", "Variable name")
	cmd.Flags().StringVar(&f.value, "value", "", "New value")
	cmd.Flags().BoolVar(&f.masked, "masked", false, "Mask (true) or unmask (false) the value")
	cmd.MarkFlagRequired("variable")
	return cmd
}

func newVariableRemoveCmd(scope variableScope) *cobra.Command {
	var f variableFlags
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove variables from a " + scope.noun,
		Long: `Remove the variables matching --variable (wildcards allowed). Each
variable is confirmed unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := f.owner.required()
			if err != nil {
				return err
			}
			client, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			removed, err := scope.remove(commandContext(cmd), client, ref, f.name, operationOptions())
			if err != nil {
				return err
			}
			if whatIf {
				printWhatIf(cmd.OutOrStdout())
				return nil
			}
			return printDone(cmd.OutOrStdout(), "Variables removed", "variables", removed)
		},
	}
	f.owner.bind(cmd, "", titleCase(scope.noun))
	cmd.Flags().StringVar(&f.name, "variable", "", "Variable name filter")
	cmd.MarkFlagRequired("variable")
	return cmd
}

func init() {
	deviceCmd.AddCommand(newVariableCmd(deviceVariableScope))
	collectionCmd.AddCommand(newVariableCmd(collectionVariableScope))
}
