package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDecode/internal/config"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/descriptor"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/report"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/waveform"
)

var (
	sessionFile string
	descriptors []string
	tickRate    int64
	timingMode  string
	outputDir   string
	decodePlot  string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [files or globs...]",
	Short: "Decode UART, SPI and I2C traffic from trace files",
	Long: `Decode one or more trace files (edge or sample CSV, optionally gzip, bzip2
or xz compressed) with every configured decoder.

Decoders are given as descriptors or in a YAML session file:
  uart:rx=RX:tx=TX:baud=115200:bits=8:parity=none:stop=1
  spi:clk=SCK:mosi=MOSI:miso=MISO:mode=0
  i2c:scl=SCL:sda=SDA:acks=1

The tick rate defaults to the probe timer of the detected format (5.14 MHz
for edge captures, 72 MHz for polled captures).

Examples:
  otd decode -d uart:rx=RX:baud=9600 capture.csv
  otd decode -d "spi:clk=SCK:mosi=MOSI:mode=3" -o out/ 'captures/**/*.csv.xz'
  otd decode --timing measured -d uart:rx=CH1:baud=115200 polled.csv
  otd decode -c session.yaml`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&sessionFile, "config", "c", "",
		"YAML session file with inputs and decoders")
	decodeCmd.Flags().StringArrayVarP(&descriptors, "decoder", "d", nil,
		"decoder descriptor (repeatable), e.g. uart:rx=RX:baud=9600")
	decodeCmd.Flags().Int64Var(&tickRate, "tick-rate", 0,
		"trace ticks per second (0 = probe default for the file format)")
	decodeCmd.Flags().StringVar(&timingMode, "timing", "nominal",
		"timing mode: nominal or measured")
	decodeCmd.Flags().StringVarP(&outputDir, "out", "o", "",
		"write <channel>_decoded_<protocol>.txt files into this directory")
	decodeCmd.Flags().StringVar(&decodePlot, "plot", "",
		"also render an annotated waveform image (single input only)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	origin, err := timing.ParseOrigin(timingMode)
	if err != nil {
		return err
	}

	var session *config.Config
	patterns := append([]string(nil), args...)
	if sessionFile != "" {
		if session, err = config.Load(sessionFile); err != nil {
			return err
		}
		if err := config.Validate(session); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		config.Normalize(session)
		patterns = append(patterns, session.Session.Inputs...)
		if outputDir == "" && session.Session.OutputDir != "." {
			outputDir = session.Session.OutputDir
		}
		if decodePlot == "" {
			decodePlot = session.Session.Plot
		}
	}
	if len(descriptors) == 0 && (session == nil || len(session.Session.Decoders) == 0) {
		return fmt.Errorf("no decoders: pass --decoder or --config")
	}

	files, err := expandInputs(patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files")
	}
	if decodePlot != "" && len(files) > 1 {
		return fmt.Errorf("--plot needs a single input file, got %d", len(files))
	}

	parser, err := descriptor.NewParser()
	if err != nil {
		return err
	}

	var failed, total int
	for _, path := range files {
		set, stats, err := capture.Load(path)
		if err != nil {
			return err
		}
		logger.Debug("loaded trace", "file", path, "format", stats.Format,
			"records", stats.Records, "channels", set.Channels())
		if stats.Skipped > 0 {
			attrs := []any{"file", path, "skipped", stats.Skipped}
			if len(stats.Errors) > 0 {
				attrs = append(attrs, "first", stats.Errors[0].Error())
			}
			logger.Warn("skipped malformed records", attrs...)
		}

		tick := tickRate
		if tick == 0 {
			tick = stats.Format.TickRate()
		}
		cfgs, err := decoderConfigs(parser, session, tick, origin)
		if err != nil {
			return err
		}

		fmt.Printf("== %s (%s, %d records, %d channels)\n", path, stats.Format, stats.Records, set.Len())
		var results []*decode.Result
		for _, out := range decode.DecodeAll(set, cfgs) {
			total++
			if out.Err != nil {
				failed++
				logger.Error("decode failed", "file", path, "decoder", out.Config.String(), "err", out.Err)
				continue
			}
			res := out.Result
			if res.Undersampled() {
				logger.Warn("trace is undersampled", "file", path, "decoder", res.Config.String(),
					"samples_per_unit", fmt.Sprintf("%.2f", res.Timing.Per(*res.Sampling)))
			}
			fmt.Println()
			if err := report.WriteText(os.Stdout, res); err != nil {
				return err
			}
			results = append(results, res)

			if outputDir != "" {
				dir := outputDir
				if len(files) > 1 {
					dir = filepath.Join(outputDir, stem(path))
				}
				written, err := report.Save(dir, res)
				if err != nil {
					return err
				}
				for _, w := range written {
					logger.Info("wrote report", "path", w)
					fmt.Printf("Saved decoded output to %s\n", w)
				}
			}
		}

		if decodePlot != "" {
			if err := savePlot(set, results, decodePlot, path, tick); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d decodes failed", failed, total)
	}
	return nil
}

func decoderConfigs(p *descriptor.Parser, session *config.Config, tick int64, origin timing.Origin) ([]decode.Config, error) {
	var cfgs []decode.Config
	for _, d := range descriptors {
		c, err := p.Parse(d, descriptor.Defaults{TickRate: tick, Timing: origin})
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, c...)
	}
	if session != nil {
		c, err := session.Session.DecodeConfigs(tick)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, c...)
	}
	return cfgs, nil
}

func savePlot(set *trace.Set, results []*decode.Result, out, title string, tick int64) error {
	opts := waveform.DefaultOptions()
	opts.Title = filepath.Base(title)
	opts.TickRate = tick
	opts.Results = results
	p, err := waveform.Render(set, opts)
	if err != nil {
		return err
	}
	if err := waveform.Save(p, out, opts.Width, opts.Height); err != nil {
		return err
	}
	fmt.Printf("Saved waveform to %s\n", out)
	return nil
}

// expandInputs resolves doublestar globs. Literal paths pass through so a
// missing file is reported by the loader.
func expandInputs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, pat := range patterns {
		if !strings.ContainsAny(pat, "*?[{") {
			add(pat)
			continue
		}
		matches, err := doublestar.FilepathGlob(pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			logger.Warn("pattern matched no files", "pattern", pat)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return files, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	for {
		ext := filepath.Ext(base)
		if ext == "" {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}
