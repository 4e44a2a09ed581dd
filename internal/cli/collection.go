package cli

import (
	"strings"

	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/spf13/cobra"
)

// collectionCmd groups the collection commands
var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"collections", "col"},
	Short:   "Manage device and user collections",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var collectionGetRef refFlags

var collectionGetCmd = &cobra.Command{
	Use:   "get",
	Short: "List collections",
	Long: `List collections. Without flags every collection is listed; --name accepts
wildcards (*).

Examples:
  cmas collection get
  cmas collection get --name 'Pilot*'
  cmas collection get --id SMS00001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		cols, err := client.GetCollection(commandContext(cmd), sccm.CollectionQuery{
			Name: collectionGetRef.name,
			ID:   collectionGetRef.id,
		})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "collections", cols)
	},
}

var (
	newCollectionName  string
	newCollectionLimit refFlags
	newCollectionType  string
	newCollectionSched scheduleFlags
	newCollectionNote  string
)

var collectionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a collection",
	Long: `Create a collection limited to an existing collection of the same type.

Examples:
  cmas collection new --name 'Pilot Devices' --limit-name 'All Systems'
  cmas collection new --name 'Finance Users' --type user --limit-id SMS00002 --refresh-type periodic --refresh-days 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := sccm.NewCollectionInput{
			Name:                   newCollectionName,
			LimitingCollectionName: newCollectionLimit.name,
			LimitingCollectionID:   newCollectionLimit.id,
			Comment:                newCollectionNote,
			RefreshDays:            newCollectionSched.days,
		}
		if newCollectionType != "" {
			t, err := sccm.ParseCollectionType(newCollectionType)
			if err != nil {
				return err
			}
			in.CollectionType = t
		}
		if newCollectionSched.refresh != "" {
			r, err := sccm.ParseRefreshType(newCollectionSched.refresh)
			if err != nil {
				return err
			}
			in.RefreshType = r
		}

		client, cfg, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		warnNamingPrefix(cmd, cfg, in.Name)
		col, err := client.NewCollection(commandContext(cmd), in, operationOptions())
		if err != nil {
			return err
		}
		if col == nil {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		okLabel.Fprintf(cmd.ErrOrStderr(), "Created collection %s (%s)\n", col.Name, col.CollectionID)
		return printResult(cmd.OutOrStdout(), "collection", col)
	},
}

var (
	setCollectionRef     refFlags
	setCollectionNewName string
	setCollectionNote    string
	setCollectionSched   scheduleFlags
	setCollectionLimit   refFlags
)

var collectionSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a collection",
	Long: `Change the name, comment, refresh schedule or limiting collection of one
collection. Built-in collections can not be renamed.

Examples:
  cmas collection set --name 'Pilot Devices' --new-name 'Pilot Devices (Ring 1)'
  cmas collection set --id PS100010 --refresh-type periodic --refresh-days 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := setCollectionRef.required()
		if err != nil {
			return err
		}
		var u sccm.CollectionUpdate
		if cmd.Flags().Changed("new-name") {
			u.NewName = &setCollectionNewName
		}
		if cmd.Flags().Changed("comment") {
			u.Comment = &setCollectionNote
		}
		if setCollectionSched.refresh != "" {
			r, err := sccm.ParseRefreshType(setCollectionSched.refresh)
			if err != nil {
				return err
			}
			u.RefreshType = &r
		}
		if cmd.Flags().Changed("refresh-days") {
			u.RefreshDays = &setCollectionSched.days
		}
		if u.LimitingCollection, err = setCollectionLimit.ref(); err != nil {
			return err
		}

		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		col, err := client.SetCollection(commandContext(cmd), ref, u, operationOptions())
		if err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		return printResult(cmd.OutOrStdout(), "collection", col)
	},
}

var removeCollectionRef refFlags

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete collections",
	Long: `Delete the collections matching --name (wildcards allowed) or --id. Each
collection is confirmed unless --force is given. Built-in collections are
never deleted.

Examples:
  cmas collection remove --name 'Pilot Devices'
  cmas collection remove --name 'Temp*' --force --passthru`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := removeCollectionRef.required()
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		removed, err := client.RemoveCollection(commandContext(cmd), ref, operationOptions())
		if err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		return printDone(cmd.OutOrStdout(), "Collections removed", "collections", removed)
	},
}

var refreshCollectionRef refFlags

var collectionUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-evaluate collection membership",
	Long: `Ask the site to re-evaluate the membership of one collection now.

Examples:
  cmas collection update --name 'Pilot Devices'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := refreshCollectionRef.required()
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		if err := client.InvokeCollectionUpdate(commandContext(cmd), ref, operationOptions()); err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
		} else {
			okLabel.Fprintln(cmd.OutOrStdout(), "Membership update requested")
		}
		return nil
	},
}

var (
	membersCollectionRef refFlags
	membersNamePattern   string
)

var collectionMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the members of a collection",
	Long: `List the evaluated members of one collection. --member filters by member
name and accepts wildcards.

Examples:
  cmas collection members --name 'All Systems' --member 'WKS*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := membersCollectionRef.required()
		if err != nil {
			return err
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		members, err := client.GetCollectionMember(commandContext(cmd), ref, membersNamePattern)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "members", members)
	},
}

// scheduleFlags binds --refresh-type and --refresh-days.
type scheduleFlags struct {
	refresh string
	days    int
}

func (f *scheduleFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.refresh, "refresh-type", "", "Refresh type: manual, periodic, continuous or both")
	cmd.Flags().IntVar(&f.days, "refresh-days", 0, "Days between periodic refreshes (default 7)")
}

func init() {
	collectionGetRef.bind(collectionGetCmd, "", "Collection")

	collectionNewCmd.Flags().StringVar(&newCollectionName, "name", "", "Name of the new collection")
	newCollectionLimit.bind(collectionNewCmd, "limit", "Limiting collection")
	collectionNewCmd.Flags().StringVar(&newCollectionType, "type", "", "Collection type: device or user (default device)")
	newCollectionSched.bind(collectionNewCmd)
	collectionNewCmd.Flags().StringVar(&newCollectionNote, "comment", "", "Comment")
	collectionNewCmd.MarkFlagRequired("name")

	setCollectionRef.bind(collectionSetCmd, "", "Collection")
	collectionSetCmd.Flags().StringVar(&setCollectionNewName, "new-name", "", "New name")
	collectionSetCmd.Flags().StringVar(&setCollectionNote, "comment", "", "New comment")
	setCollectionSched.bind(collectionSetCmd)
	setCollectionLimit.bind(collectionSetCmd, "limit", "New limiting collection")

	removeCollectionRef.bind(collectionRemoveCmd, "", "Collection")
	refreshCollectionRef.bind(collectionUpdateCmd, "", "Collection")
	membersCollectionRef.bind(collectionMembersCmd, "", "Collection")
	collectionMembersCmd.Flags().StringVar(&membersNamePattern, "member", "", "Member name filter")

	collectionCmd.AddCommand(collectionGetCmd)
	collectionCmd.AddCommand(collectionNewCmd)
	collectionCmd.AddCommand(collectionSetCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)
	collectionCmd.AddCommand(collectionUpdateCmd)
	collectionCmd.AddCommand(collectionMembersCmd)
	rootCmd.AddCommand(collectionCmd)
}

// warnNamingPrefix warns when a new collection name does not carry the
// configured prefix. It never blocks creation.
func warnNamingPrefix(cmd *cobra.Command, cfg *Config, name string) {
	if cfg == nil || cfg.NamingPrefix == "" || strings.HasPrefix(name, cfg.NamingPrefix) {
		return
	}
	warnLabel.Fprintf(cmd.ErrOrStderr(), "Warning: %q does not start with %q\n", name, cfg.NamingPrefix)
}
