package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/synth"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

var (
	synthProtocol string
	synthText     string
	synthMISO     string
	synthFormat   string
	synthTick     int64
	synthBaud     int64
	synthBits     int
	synthParity   string
	synthStop     int
	synthClock    int64
	synthPeriod   int64
	synthMode     int
	synthAcks     bool
	synthChannels []string
	synthOutput   string
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Generate a synthetic trace file",
	Long: `Encode text as UART, SPI or I2C traffic and write it as an edge or sample
trace file. Useful for exercising decoders and the capture simulator without a
probe.

Channel names default to RX (uart), SCK,MOSI,MISO (spi) and SCL,SDA (i2c).

Examples:
  otd synth -p uart -t "Hello" --baud 9600 -o uart.csv
  otd synth -p uart -t "Hi" --format samples --period 500 -o polled.csv.gz
  otd synth -p spi -t "\x9f" --miso "ABC" --mode 3 -o spi.csv
  otd synth -p i2c -t "PQ" --acks -o i2c.csv.xz`,
	RunE: runSynth,
}

func init() {
	rootCmd.AddCommand(synthCmd)

	synthCmd.Flags().StringVarP(&synthProtocol, "protocol", "p", "uart", "uart, spi or i2c")
	synthCmd.Flags().StringVarP(&synthText, "text", "t", "", "payload (MOSI for spi)")
	synthCmd.Flags().StringVar(&synthMISO, "miso", "", "spi: MISO payload")
	synthCmd.Flags().StringVarP(&synthFormat, "format", "f", "edges", "edges or samples")
	synthCmd.Flags().Int64Var(&synthTick, "tick-rate", 0, "ticks per second (0 = probe default for the format)")
	synthCmd.Flags().Int64Var(&synthBaud, "baud", 9600, "uart: baud rate")
	synthCmd.Flags().IntVar(&synthBits, "bits", 8, "uart: data bits")
	synthCmd.Flags().StringVar(&synthParity, "parity", "none", "uart: none, even or odd")
	synthCmd.Flags().IntVar(&synthStop, "stop", 1, "uart: stop bits")
	synthCmd.Flags().Int64Var(&synthClock, "clock-period", 200, "spi/i2c: clock period in ticks")
	synthCmd.Flags().Int64Var(&synthPeriod, "period", 0, "samples: polling period in ticks (0 = 1/16 bit or clock)")
	synthCmd.Flags().IntVar(&synthMode, "mode", 0, "spi: mode 0..3")
	synthCmd.Flags().BoolVar(&synthAcks, "acks", false, "i2c: add acknowledge clocks")
	synthCmd.Flags().StringSliceVar(&synthChannels, "channels", nil, "channel names")
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "", "output trace file")

	synthCmd.MarkFlagRequired("output")
}

func runSynth(cmd *cobra.Command, args []string) error {
	format, err := capture.ParseFormat(synthFormat)
	if err != nil {
		return err
	}
	tick := synthTick
	if tick == 0 {
		tick = format.TickRate()
	}
	payload := []byte(unescape(synthText))

	var (
		waves []synth.Waveform
		unit  float64
	)
	switch strings.ToLower(synthProtocol) {
	case "uart":
		parity, err := decode.ParseParity(synthParity)
		if err != nil {
			return err
		}
		tx := synth.NewUART(channelName(0, "RX"), tick, synthBaud)
		tx.DataBits, tx.Parity, tx.StopBits = synthBits, parity, synthStop
		waves = []synth.Waveform{tx.Encode(payload)}
		unit = tx.UnitInterval()
	case "spi":
		if synthMode < 0 || synthMode > 3 {
			return fmt.Errorf("spi mode must be 0..3, got %d", synthMode)
		}
		bus := synth.SPI{
			Clock:    channelName(0, "SCK"),
			MOSI:     channelName(1, "MOSI"),
			Polarity: synthMode >> 1,
			Phase:    synthMode & 1,
			Period:   synthClock,
		}
		miso := []byte(unescape(synthMISO))
		if len(miso) > 0 {
			bus.MISO = channelName(2, "MISO")
		}
		waves = bus.Encode(payload, miso)
		unit = float64(synthClock)
	case "i2c":
		bus := synth.I2C{
			Clock:  channelName(0, "SCL"),
			Data:   channelName(1, "SDA"),
			Period: synthClock,
			Acks:   synthAcks,
		}
		waves = bus.Encode(payload)
		unit = float64(synthClock)
	default:
		return fmt.Errorf("unknown protocol %q (want uart, spi or i2c)", synthProtocol)
	}

	var set *trace.Set
	if format == capture.FormatEdges {
		set = synth.Set(waves...)
	} else {
		period := synthPeriod
		if period <= 0 {
			period = max(int64(unit/16), 1)
		}
		set = synth.SampledSet(period, waves...)
	}

	w, err := capture.Create(synthOutput)
	if err != nil {
		return err
	}
	comment := fmt.Sprintf("synthetic %s, %d bytes, tick rate %d Hz", strings.ToLower(synthProtocol), len(payload), tick)
	if format == capture.FormatEdges {
		err = capture.WriteEdges(w, set, comment)
	} else {
		err = capture.WriteSamples(w, set, comment)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d channels (%s) to %s\n", set.Len(), strings.Join(set.Channels(), ", "), synthOutput)
	return nil
}

func channelName(i int, def string) string {
	if i < len(synthChannels) && synthChannels[i] != "" {
		return synthChannels[i]
	}
	return def
}

// unescape expands \xNN, \n, \r and \t so binary payloads fit on a command
// line.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		case 'x':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					b.WriteByte(byte(v))
					i += 3
					continue
				}
			}
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
