package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDecode/internal/config"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

var (
	captureConfig   string
	captureIface    string
	captureFormat   string
	captureBaud     int
	captureDuration time.Duration
	captureChannels []string
	captureOutput   string
	simInput        string
	simPeriod       int64
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a live capture from the logic probe",
	Long: `Read the probe's packet stream and write the recorded channels as a trace
file (CSV, .gz or .xz). Edge captures are written as channel,direction,timestamp
records; polled captures as a timestamp column plus one level column per channel.

The interface is a serial device path, "usb" for the probe's bulk endpoint, or
"simulator" to replay an existing trace file through the packet codec. Without
--interface the first detected probe is used.

The capture runs until --duration elapses, the stream ends, or Ctrl-C.

Examples:
  otd capture -i /dev/ttyACM0 --channels RX,TX -o uart.csv --duration 10s
  otd capture -i usb --format samples --channels SCK,MOSI -o spi.csv.xz
  otd capture -i simulator --sim-input synth.csv --format samples -o replay.csv`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVarP(&captureConfig, "config", "c", "",
		"YAML session file; its capture section supplies defaults")
	captureCmd.Flags().StringVarP(&captureIface, "interface", "i", "",
		"serial path, usb or simulator (default: first detected probe)")
	captureCmd.Flags().StringVarP(&captureFormat, "format", "f", "edges",
		"probe firmware format: edges or samples")
	captureCmd.Flags().IntVar(&captureBaud, "baud", capture.DefaultSerialBaud,
		"serial line rate")
	captureCmd.Flags().DurationVar(&captureDuration, "duration", 0,
		"stop after this long (0 = until the stream ends or Ctrl-C)")
	captureCmd.Flags().StringSliceVar(&captureChannels, "channels", nil,
		"names for probe inputs 0..3; unnamed inputs are dropped")
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "",
		"output trace file")
	captureCmd.Flags().StringVar(&simInput, "sim-input", "",
		"simulator: trace file to replay")
	captureCmd.Flags().Int64Var(&simPeriod, "sim-period", 100,
		"simulator: polling period in ticks for sample captures")
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureConfig != "" {
		if err := applyCaptureConfig(cmd); err != nil {
			return err
		}
	}
	if captureOutput == "" {
		return fmt.Errorf("--output is required")
	}
	format, err := capture.ParseFormat(captureFormat)
	if err != nil {
		return err
	}

	src, names, err := openCaptureSource(format)
	if err != nil {
		return err
	}
	defer src.Close()

	rec, err := capture.NewRecorder(format, names...)
	if err != nil {
		return err
	}
	logger.Info("capture started", "interface", src.Info().Label(), "format", format,
		"channels", names, "session", rec.Session())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if captureDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, captureDuration)
		defer cancel()
	}

	start := time.Now()
	n, err := capture.Run(ctx, src, rec)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	set, err := rec.Snapshot()
	if err != nil {
		return err
	}
	st := rec.Stats()
	if st.Ignored > 0 {
		logger.Warn("ignored packets", "count", st.Ignored)
	}

	w, err := capture.Create(captureOutput)
	if err != nil {
		return err
	}
	comments := []string{
		fmt.Sprintf("session %s", rec.Session()),
		fmt.Sprintf("source %s", src.Info().Label()),
		fmt.Sprintf("format %s, tick rate %d Hz", format, format.TickRate()),
	}
	if format == capture.FormatEdges {
		err = capture.WriteEdges(w, set, comments...)
	} else {
		err = capture.WriteSamples(w, set, comments...)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Printf("Captured %d bytes (%d packets, %d timer wraps) in %s\n",
		n, st.Packets, st.Wraps, time.Since(start).Round(time.Millisecond))
	for _, name := range set.Channels() {
		tr, _ := set.Lookup(name)
		fmt.Printf("  %-8s %d records\n", name, tr.Len())
	}
	fmt.Printf("Saved capture to %s\n", captureOutput)
	return nil
}

// applyCaptureConfig fills flags the user did not set from the session file.
func applyCaptureConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(captureConfig)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	c := cfg.Capture
	flags := cmd.Flags()
	if !flags.Changed("interface") {
		captureIface = c.Interface
	}
	if !flags.Changed("format") {
		captureFormat = c.Format
	}
	if !flags.Changed("baud") {
		captureBaud = c.Baud
	}
	if !flags.Changed("duration") && c.DurationMs > 0 {
		captureDuration = time.Duration(c.DurationMs) * time.Millisecond
	}
	if !flags.Changed("channels") {
		captureChannels = c.Channels
	}
	if !flags.Changed("output") && c.Output != "" {
		captureOutput = c.Output
	}
	return nil
}

func openCaptureSource(format capture.Format) (capture.Source, []string, error) {
	names := captureChannels
	switch captureIface {
	case "simulator", "sim":
		if simInput == "" {
			return nil, nil, fmt.Errorf("simulator needs --sim-input")
		}
		set, _, err := capture.Load(simInput)
		if err != nil {
			return nil, nil, err
		}
		if len(names) == 0 {
			names = set.Channels()
		}
		if len(names) > capture.MaxChannels {
			return nil, nil, fmt.Errorf("%d channels, probe has %d inputs", len(names), capture.MaxChannels)
		}
		sub, err := subset(set, names)
		if err != nil {
			return nil, nil, err
		}
		src, err := capture.NewSimSource(sub, format, simPeriod)
		return src, names, err
	case "usb":
		src, err := capture.OpenUSB(capture.VendorIDSTM32, capture.ProductIDProbeVCP)
		return src, defaultNames(names), err
	case "":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		infos, err := capture.DiscoverInterfaces(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("discover interfaces: %w", err)
		}
		for _, info := range infos {
			if info.Kind == capture.InterfaceKindSim {
				continue
			}
			logger.Debug("using interface", "label", info.Label())
			src, err := capture.OpenSource(info)
			return src, defaultNames(names), err
		}
		return nil, nil, fmt.Errorf("no probe found; pass --interface")
	default:
		src, err := capture.OpenSerial(captureIface, captureBaud)
		return src, defaultNames(names), err
	}
}

func defaultNames(names []string) []string {
	if len(names) > 0 {
		return names
	}
	return []string{"CH0", "CH1", "CH2", "CH3"}
}

// subset keeps the traces of set named in names, in that order.
func subset(set *trace.Set, names []string) (*trace.Set, error) {
	traces := make([]*trace.Trace, 0, len(names))
	for _, n := range names {
		tr, err := set.Lookup(n)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tr)
	}
	return trace.NewSet(traces...)
}
