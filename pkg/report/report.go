// Package report renders decode results as hex/ASCII text.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/decode"
)

// Hex renders bytes as space separated upper-case hex pairs.
func Hex(bs []byte) string {
	var b strings.Builder
	for i, v := range bs {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// ASCII renders printable bytes as themselves and everything else as '.'.
func ASCII(bs []byte) string {
	out := make([]byte, len(bs))
	for i, v := range bs {
		if v >= 0x20 && v < 0x7f {
			out[i] = v
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// WriteText writes a human readable summary of res: hex and ASCII per
// stream, the defective bytes, and for I2C the START/STOP timeline.
func WriteText(w io.Writer, res *decode.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "%s\n", res.Config)
	fmt.Fprintf(tw, "timing:\t%s\n", res.Timing)
	if res.Sampling != nil {
		fmt.Fprintf(tw, "sampling:\t%s\n", res.Sampling)
		if res.Undersampled() {
			fmt.Fprintf(tw, "warning:\tfewer than %.0f samples per bit, decode is unreliable\n", decode.MinSamplesPerUnit)
		}
	}
	for _, s := range res.Streams {
		label := s.Channel
		if s.Role != "" && s.Role != s.Channel {
			label = fmt.Sprintf("%s (%s)", s.Channel, s.Role)
		}
		fmt.Fprintf(tw, "\n%s:\t%d bytes, %d defective\n", label, len(s.Bytes), s.Defective())
		fmt.Fprintf(tw, "Hex:\t%s\n", Hex(s.Values()))
		fmt.Fprintf(tw, "ASCII:\t%s\n", ASCII(s.Values()))
		for _, b := range s.Bytes {
			if !b.Valid {
				fmt.Fprintf(tw, "  @%d\t0x%02X %s\n", b.Time, b.Value, b.Defects)
			}
		}
	}
	if res.Protocol == decode.KindI2C {
		fmt.Fprintf(tw, "\nevents:\n")
		for _, ev := range res.Events() {
			line := ev.String()
			if ev.Kind == decode.EventByte && ev.Byte.Ack != decode.AckNotSampled {
				line += " " + ev.Byte.Ack.String()
			}
			fmt.Fprintf(tw, "  %s\n", line)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// FileName is the output file for one channel, e.g. RX_decoded_uart.txt.
func FileName(res *decode.Result, channel string) string {
	return fmt.Sprintf("%s_decoded_%s.txt", sanitize(channel), strings.ToLower(res.Protocol.String()))
}

// Save writes one file per stream into dir holding the hex line and the
// ASCII line. It returns the written paths.
func Save(dir string, res *decode.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	var paths []string
	for _, s := range res.Streams {
		path := filepath.Join(dir, FileName(res, s.Channel))
		body := Hex(s.Values()) + "\n" + ASCII(s.Values()) + "\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return paths, fmt.Errorf("report: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
}
