package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/spf13/cobra"
)

// scriptCmd groups the run script commands
var scriptCmd = &cobra.Command{
	Use:     "script",
	Aliases: []string{"scripts"},
	Short:   "Run approved scripts and read their results",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var scriptGetRef refFlags

var scriptGetCmd = &cobra.Command{
	Use:   "get",
	Short: "List scripts",
	Long: `List run scripts. --name accepts wildcards (*), --id takes the script GUID.

Examples:
  cmas script get
  cmas script get --name 'Get-*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		scripts, err := client.GetScript(commandContext(cmd), sccm.ScriptQuery{
			Name: scriptGetRef.name,
			ID:   scriptGetRef.id,
		})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "scripts", scripts)
	},
}

var (
	invokeScriptRef  refFlags
	invokeCollection refFlags
	invokeDevices    string
	invokeParams     []string
	invokeWait       bool
	invokeTimeout    time.Duration
	invokeInterval   time.Duration
)

var scriptInvokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Run an approved script",
	Long: `Run an approved script on every member of a collection or on a list of
devices. The command returns once the script is dispatched and prints the
operation IDs; use --wait to poll until the results are in.

Examples:
  cmas script invoke --name Get-Uptime --resource-ids 16777220,16777221
  cmas script invoke --name Set-Tag --collection-name 'Pilot Devices' --param Tag=Ring1 --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := invokeScriptRef.required()
		if err != nil {
			return err
		}
		col, err := invokeCollection.ref()
		if err != nil {
			return err
		}
		ids, err := parseResourceIDs(invokeDevices)
		if err != nil {
			return err
		}
		params, err := parseParams(invokeParams)
		if err != nil {
			return err
		}

		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		execs, err := client.InvokeScript(ctx, sccm.ScriptInvocation{
			Script:      script,
			Collection:  col,
			ResourceIDs: ids,
			Parameters:  params,
		}, operationOptions())
		if err != nil {
			return err
		}
		if whatIf {
			printWhatIf(cmd.OutOrStdout())
			return nil
		}
		if !invokeWait {
			return printResult(cmd.OutOrStdout(), "executions", execs)
		}
		results := make([]sccm.ScriptStatusResult, 0, len(execs))
		for _, e := range execs {
			res, err := waitForScript(ctx, client, e.OperationID, invokeTimeout, invokeInterval)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return printResult(cmd.OutOrStdout(), "results", results)
	},
}

var (
	statusWait     bool
	statusTimeout  time.Duration
	statusInterval time.Duration
)

var scriptStatusCmd = &cobra.Command{
	Use:   "status OPERATION_ID",
	Short: "Show the results of a script run",
	Long: `Show the per-device results of a script run. With --wait the command polls
until no device is still running or the timeout passes.

Examples:
  cmas script status 16777300
  cmas script status 16777300 --wait --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || opID <= 0 {
			return ErrInvalidOperationID.Suffix(strconv.Quote(args[0]))
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		var res sccm.ScriptStatusResult
		if statusWait {
			res, err = waitForScript(ctx, client, opID, statusTimeout, statusInterval)
		} else {
			res, err = client.GetScriptExecutionStatus(ctx, opID)
		}
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "result", res)
	},
}

// waitForScript polls one operation until it finishes or timeout passes.
func waitForScript(ctx context.Context, client *sccm.Client, opID int64, timeout, interval time.Duration) (sccm.ScriptStatusResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.WaitScriptExecution(ctx, opID, interval)
}

func init() {
	scriptGetRef.bind(scriptGetCmd, "", "Script")

	invokeScriptRef.bind(scriptInvokeCmd, "", "Script")
	invokeCollection.bind(scriptInvokeCmd, "collection", "Target collection")
	scriptInvokeCmd.Flags().StringVar(&invokeDevices, "resource-ids", "", "Comma separated resource IDs of target devices")
	scriptInvokeCmd.Flags().StringArrayVar(&invokeParams, "param", nil, "Script parameter as name=value (repeatable)")
	scriptInvokeCmd.Flags().BoolVar(&invokeWait, "wait", false, "Wait for the results")
	scriptInvokeCmd.Flags().DurationVar(&invokeTimeout, "timeout", 5*time.Minute, "Maximum time to wait")
	scriptInvokeCmd.Flags().DurationVar(&invokeInterval, "interval", sccm.DefaultPollInterval, "Time between status checks")

	scriptStatusCmd.Flags().BoolVar(&statusWait, "wait", false, "Wait until no device is still running")
	scriptStatusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Minute, "Maximum time to wait")
	scriptStatusCmd.Flags().DurationVar(&statusInterval, "interval", sccm.DefaultPollInterval, "Time between status checks")

	scriptCmd.AddCommand(scriptGetCmd)
	scriptCmd.AddCommand(scriptInvokeCmd)
	scriptCmd.AddCommand(scriptStatusCmd)
	rootCmd.AddCommand(scriptCmd)
}
