package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
)

var rootCmd = &cobra.Command{
	Use:   "otd",
	Short: "OpenTraceDecode - logic probe capture and protocol decoding",
	Long: `OpenTraceDecode (otd) captures edge and sample traces from a small logic
probe and decodes them into UART, SPI and I2C byte streams.

Examples:
  otd interfaces                                          # List probes and serial ports
  otd capture -i /dev/ttyACM0 --channels RX -o rx.csv     # Record a live capture
  otd decode -d uart:rx=RX:baud=115200 rx.csv             # Decode a UART line
  otd decode -c session.yaml                              # Decode per a session file
  otd plot -o wave.png capture.csv                        # Export a waveform image`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
