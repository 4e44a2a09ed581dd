package cli

import (
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/spf13/cobra"
)

// ruleCmd groups the membership rule commands
var ruleCmd = &cobra.Command{
	Use:     "rule",
	Aliases: []string{"rules"},
	Short:   "Manage collection membership rules",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	ruleGetCollection refFlags
	ruleGetType       string
	ruleGetName       string
)

var ruleGetCmd = &cobra.Command{
	Use:   "get",
	Short: "List the membership rules of a collection",
	Long: `List the membership rules of one collection, optionally filtered by rule
type and rule name (wildcards allowed).

Examples:
  cmas collection rule get --name 'Pilot Devices'
  cmas collection rule get --id PS100010 --type direct --rule-name 'WKS*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := ruleGetCollection.required()
		if err != nil {
			return err
		}
		filter, err := ruleFilter(ruleGetType, ruleGetName)
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		rules, err := client.GetCollectionMembershipRule(commandContext(cmd), ref, filter)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "rules", rules)
	},
}

var (
	ruleAddCollection refFlags
	ruleAddType       string
	ruleAddName       string
	ruleAddDevice     refFlags
	ruleAddQuery      string
	ruleAddTarget     refFlags
)

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a membership rule to a collection",
	Long: `Add a direct, query, include or exclude rule to one collection. Direct
rules are named after the device and include/exclude rules after the other
collection unless --rule-name is given.

Examples:
  cmas collection rule add --name 'Pilot Devices' --type direct --device-name WKS001
  cmas collection rule add --name 'Pilot Devices' --type query --rule-name 'Windows 11' \
      --query "select * from SMS_R_System where OperatingSystemNameandVersion like '%10.0.22%'"
  cmas collection rule add --name 'Pilot Devices' --type exclude --target-name 'Servers'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := ruleAddCollection.required()
		if err != nil {
			return err
		}
		spec, err := ruleSpec()
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		rule, err := client.AddCollectionMembershipRule(commandContext(cmd), ref, spec, operationOptions())
		if err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		return printResult(cmd.OutOrStdout(), "rule", rule)
	},
}

var (
	ruleRemoveCollection refFlags
	ruleRemoveType       string
	ruleRemoveName       string
)

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove membership rules from a collection",
	Long: `Remove the rules of one collection matching --rule-name (wildcards allowed)
and/or --type. Each rule is confirmed unless --force is given.

Examples:
  cmas collection rule remove --name 'Pilot Devices' --rule-name WKS001
  cmas collection rule remove --id PS100010 --type direct --rule-name '*' --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := ruleRemoveCollection.required()
		if err != nil {
			return err
		}
		filter, err := ruleFilter(ruleRemoveType, ruleRemoveName)
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		removed, err := client.RemoveCollectionMembershipRule(commandContext(cmd), ref, filter, operationOptions())
		if err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		return printDone(cmd.OutOrStdout(), "Membership rules removed", "rules", removed)
	},
}

func init() {
	ruleGetCollection.bind(ruleGetCmd, "", "Collection")
	ruleGetCmd.Flags().StringVar(&ruleGetType, "type", "", "Rule type: direct, query, include or exclude")
	ruleGetCmd.Flags().StringVar(&ruleGetName, "rule-name", "", "Rule name filter")

	ruleAddCollection.bind(ruleAddCmd, "", "Collection")
	ruleAddCmd.Flags().StringVar(&ruleAddType, "type", "", "Rule type: direct, query, include or exclude")
	ruleAddCmd.Flags().StringVar(&ruleAddName, "rule-name", "", "Rule name")
	ruleAddDevice.bind(ruleAddCmd, "device", "Device for a direct rule:")
	ruleAddCmd.Flags().StringVar(&ruleAddQuery, "query", "", "WQL expression for a query rule")
	ruleAddTarget.bind(ruleAddCmd, "target", "Collection to include or exclude:")
	ruleAddCmd.MarkFlagRequired("type")

	ruleRemoveCollection.bind(ruleRemoveCmd, "", "Collection")
	ruleRemoveCmd.Flags().StringVar(&ruleRemoveType, "type", "", "Rule type: direct, query, include or exclude")
	ruleRemoveCmd.Flags().StringVar(&ruleRemoveName, "rule-name", "", "Rule name filter")

	ruleCmd.AddCommand(ruleGetCmd)
	ruleCmd.AddCommand(ruleAddCmd)
	ruleCmd.AddCommand(ruleRemoveCmd)
	collectionCmd.AddCommand(ruleCmd)
}

func ruleFilter(ruleType, name string) (sccm.RuleFilter, error) {
	f := sccm.RuleFilter{RuleName: name}
	if ruleType != "" {
		t, err := sccm.ParseRuleType(ruleType)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	return f, nil
}

// ruleSpec builds the rule to add from the add command's flags.
func ruleSpec() (sccm.RuleSpec, error) {
	t, err := sccm.ParseRuleType(ruleAddType)
	if err != nil {
		return sccm.RuleSpec{}, err
	}
	var spec sccm.RuleSpec
	switch t {
	case sccm.RuleDirect:
		dev, err := ruleAddDevice.required()
		if err != nil {
			return spec, err
		}
		spec = sccm.DirectRuleSpec(dev)
	case sccm.RuleQuery:
		if ruleAddQuery == "" {
			return spec, ErrMissingFlag.Suffix("--query (query rule)")
		}
		spec = sccm.QueryRuleSpec(ruleAddName, ruleAddQuery)
	case sccm.RuleInclude, sccm.RuleExclude:
		var col resolver.Reference
		if col, err = ruleAddTarget.required(); err != nil {
			return spec, err
		}
		if t == sccm.RuleInclude {
			spec = sccm.IncludeRuleSpec(col)
		} else {
			spec = sccm.ExcludeRuleSpec(col)
		}
	}
	if ruleAddName != "" {
		spec.RuleName = ruleAddName
	}
	return spec, nil
}
