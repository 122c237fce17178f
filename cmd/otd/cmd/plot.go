package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/waveform"
)

var (
	plotOutput   string
	plotFrom     int64
	plotTo       int64
	plotChannels []string
	plotWidth    float64
	plotHeight   float64
	plotSeconds  bool
)

var plotCmd = &cobra.Command{
	Use:   "plot <trace-file>",
	Short: "Export a trace file as a waveform image",
	Long: `Render the channels of a trace file as stacked step lines and save the plot.
The output extension selects the image format (png, svg, pdf, eps).

Examples:
  otd plot -o wave.png capture.csv
  otd plot -o spi.svg --channels SCK,MOSI --from 1000 --to 50000 spi.csv.xz`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

func init() {
	rootCmd.AddCommand(plotCmd)

	plotCmd.Flags().StringVarP(&plotOutput, "output", "o", "waveform.png",
		"output image")
	plotCmd.Flags().Int64Var(&plotFrom, "from", 0, "window start in ticks")
	plotCmd.Flags().Int64Var(&plotTo, "to", 0, "window end in ticks (0 with --from 0 = whole capture)")
	plotCmd.Flags().StringSliceVar(&plotChannels, "channels", nil, "channels to plot (default all)")
	plotCmd.Flags().Float64Var(&plotWidth, "width", 24, "image width in cm")
	plotCmd.Flags().Float64Var(&plotHeight, "height", 12, "image height in cm")
	plotCmd.Flags().BoolVar(&plotSeconds, "seconds", false,
		"label the time axis in seconds using the format's tick rate")
}

func runPlot(cmd *cobra.Command, args []string) error {
	set, stats, err := capture.Load(args[0])
	if err != nil {
		return err
	}
	if len(plotChannels) > 0 {
		if set, err = subset(set, plotChannels); err != nil {
			return err
		}
	}

	opts := waveform.DefaultOptions()
	opts.Title = args[0]
	opts.From, opts.To = plotFrom, plotTo
	opts.Width = vg.Length(plotWidth) * vg.Centimeter
	opts.Height = vg.Length(plotHeight) * vg.Centimeter
	if plotSeconds {
		opts.TickRate = stats.Format.TickRate()
	}
	p, err := waveform.Render(set, opts)
	if err != nil {
		return err
	}
	if err := waveform.Save(p, plotOutput, opts.Width, opts.Height); err != nil {
		return err
	}
	fmt.Printf("Saved waveform of %d channels to %s\n", set.Len(), plotOutput)
	return nil
}
