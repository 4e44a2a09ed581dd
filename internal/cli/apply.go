package cli

import (
	"context"
	"errors"

	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var applyFile string

// ApplyResult reports what apply did for one collection definition.
type ApplyResult struct {
	Name             string `json:"name"`
	CollectionID     string `json:"collectionId,omitempty"`
	Created          bool   `json:"created"`
	RulesAdded       int    `json:"rulesAdded"`
	RulesSkipped     int    `json:"rulesSkipped"`
	VariablesAdded   int    `json:"variablesAdded"`
	VariablesSkipped int    `json:"variablesSkipped"`
}

var collectionApplyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Create collections, rules and variables from a file",
	Long: `Apply reads collection definitions from a YAML file with one document per
collection. Missing collections are created; rules and variables that
already exist are left alone. Environment variables like ${PREFIX} are
expanded before parsing. Existing collections are never changed otherwise.

Example file:
  name: Pilot Devices
  limitingCollection: All Systems
  refreshType: periodic
  rules:
    - type: direct
      device: WKS001
    - type: exclude
      collection: Servers
  variables:
    - name: Ring
      value: "1"
  ---
  name: Pilot Users
  type: user
  limitingCollectionId: SMS00002`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := ParseCollectionFile(applyFile)
		if err != nil {
			return err
		}
		client, cfg, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		results := make([]ApplyResult, 0, len(defs))
		for _, def := range defs {
			warnNamingPrefix(cmd, cfg, def.Name)
			res, err := applyCollection(ctx, client, def, operationOptions())
			results = append(results, res)
			if err != nil {
				printResult(cmd.OutOrStdout(), "applied", results)
				return err
			}
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		return printResult(cmd.OutOrStdout(), "applied", results)
	},
}

func init() {
	collectionApplyCmd.Flags().StringVarP(&applyFile, "filename", "f", "", "File holding collection definitions")
	collectionApplyCmd.MarkFlagRequired("filename")
	collectionCmd.AddCommand(collectionApplyCmd)
}

// applyCollection makes sure the collection in def exists with its rules
// and variables.
func applyCollection(ctx context.Context, client *sccm.Client, def CollectionDefinition, opts sccm.Options) (ApplyResult, error) {
	res := ApplyResult{Name: def.Name}
	if resolver.ByName(def.Name).HasWildcard() {
		return res, resolver.ErrWildcardNotAllowed.Suffix("collection name " + def.Name)
	}
	existing, err := client.GetCollection(ctx, sccm.CollectionQuery{Name: def.Name})
	if err != nil {
		return res, err
	}
	var col *sccm.Collection
	if len(existing) > 0 {
		col = &existing[0]
	} else {
		in, err := def.input()
		if err != nil {
			return res, err
		}
		if col, err = client.NewCollection(ctx, in, opts); err != nil {
			return res, err
		}
		if col == nil {
			// --what-if: nothing was created to attach rules to
			return res, nil
		}
		res.Created = true
	}
	res.CollectionID = col.CollectionID
	ref := resolver.FromObject(col)

	for _, rd := range def.Rules {
		spec, err := rd.spec()
		if err != nil {
			return res, err
		}
		_, err = client.AddCollectionMembershipRule(ctx, ref, spec, opts)
		switch {
		case errors.Is(err, sccm.ErrRuleExists):
			res.RulesSkipped++
		case err != nil:
			return res, err
		default:
			res.RulesAdded++
		}
	}
	for _, vd := range def.Variables {
		v := sccm.Variable{Name: vd.Name, Value: vd.Value, IsMasked: vd.Masked}
		_, err := client.NewCollectionVariable(ctx, ref, v, opts)
		switch {
		case errors.Is(err, sccm.ErrVariableExists):
			res.VariablesSkipped++
		case err != nil:
			return res, err
		default:
			res.VariablesAdded++
		}
	}
	log.Ctx(ctx).Info().Str("collection", res.CollectionID).Bool("created", res.Created).
		Int("rules_added", res.RulesAdded).Int("variables_added", res.VariablesAdded).Msg("collection applied")
	return res, nil
}

func (def CollectionDefinition) input() (sccm.NewCollectionInput, error) {
	in := sccm.NewCollectionInput{
		Name:                   def.Name,
		LimitingCollectionName: def.LimitingCollection,
		LimitingCollectionID:   def.LimitingCollectionID,
		Comment:                def.Comment,
		RefreshDays:            def.RefreshDays,
	}
	if def.Type != "" {
		t, err := sccm.ParseCollectionType(def.Type)
		if err != nil {
			return in, err
		}
		in.CollectionType = t
	}
	if def.RefreshType != "" {
		r, err := sccm.ParseRefreshType(def.RefreshType)
		if err != nil {
			return in, err
		}
		in.RefreshType = r
	}
	return in, nil
}

func (rd RuleDefinition) spec() (sccm.RuleSpec, error) {
	t, err := sccm.ParseRuleType(rd.Type)
	if err != nil {
		return sccm.RuleSpec{}, err
	}
	var spec sccm.RuleSpec
	switch t {
	case sccm.RuleDirect:
		dev, err := resolver.OneOf("device", resolver.ByName(rd.Device), resolver.ByID(rd.DeviceID))
		if err != nil {
			return spec, err
		}
		spec = sccm.DirectRuleSpec(dev)
	case sccm.RuleQuery:
		spec = sccm.QueryRuleSpec(rd.Name, rd.Query)
	case sccm.RuleInclude, sccm.RuleExclude:
		col, err := resolver.OneOf("collection", resolver.ByName(rd.Collection), resolver.ByID(rd.CollectionID))
		if err != nil {
			return spec, err
		}
		if t == sccm.RuleInclude {
			spec = sccm.IncludeRuleSpec(col)
		} else {
			spec = sccm.ExcludeRuleSpec(col)
		}
	}
	if rd.Name != "" {
		spec.RuleName = rd.Name
	}
	return spec, nil
}
