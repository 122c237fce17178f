package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available capture interfaces",
	Long: `Scan the host for logic probes (STM32 VCP, Pico CDC) and serial ports and print
a summary of the detected transports. Use this to verify connectivity or select an
interface before running capture.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := capture.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No interfaces found.")
		return nil
	}

	fmt.Println("Detected capture interfaces:")
	for _, iface := range infos {
		if iface.Kind == capture.InterfaceKindUSB {
			fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
			continue
		}
		fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
	}

	return nil
}
