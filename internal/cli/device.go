package cli

import (
	"strconv"

	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/spf13/cobra"
)

// deviceCmd groups the device commands
var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"devices", "dev"},
	Short:   "Read devices and manage their variables",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var deviceGetRef refFlags

var deviceGetCmd = &cobra.Command{
	Use:   "get",
	Short: "List devices",
	Long: `List devices. Without flags every device is listed; --name accepts
wildcards (*).

Examples:
  cmas device get --name 'WKS*'
  cmas device get --id 16777220`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := sccm.DeviceQuery{Name: deviceGetRef.name}
		if deviceGetRef.id != "" {
			id, err := strconv.ParseInt(deviceGetRef.id, 10, 64)
			if err != nil || id <= 0 {
				return ErrInvalidResourceID.Suffix(strconv.Quote(deviceGetRef.id))
			}
			q.ResourceID = id
		}
		client, _, err := clientFromConfig(cmd)
		if err != nil {
			return err
		}
		devices, err := client.GetDevice(commandContext(cmd), q)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), "devices", devices)
	},
}

func init() {
	deviceGetRef.bind(deviceGetCmd, "", "Device")

	deviceCmd.AddCommand(deviceGetCmd)
	rootCmd.AddCommand(deviceCmd)
}
