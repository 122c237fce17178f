package capture

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// sniffLines is how many records DetectFormat inspects.
const sniffLines = 4

// DetectFormat guesses the CSV layout from the first records. A record of
// `name,rising|falling,number` means edges whatever the name looks like;
// otherwise a numeric first column means samples. Bare 0/1 directions only
// count as edges when the first column is not numeric.
func DetectFormat(head []byte) (Format, error) {
	cr := newCSVReader(bytes.NewReader(head))
	for i := 0; i < sniffLines; i++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := parseErrorLine(err); ok {
				continue
			}
			// A record cut off by the sniff window.
			break
		}
		edgeShape := len(rec) == 3 && isInt(rec[2]) && isEdge(rec[1])
		if edgeShape && !isInt(rec[1]) {
			return FormatEdges, nil
		}
		if isInt(rec[0]) {
			return FormatSamples, nil
		}
		if edgeShape {
			return FormatEdges, nil
		}
	}
	return 0, fmt.Errorf("capture: unrecognised trace layout")
}

func isEdge(s string) bool {
	_, err := trace.ParseEdge(s)
	return err == nil
}

// Read auto-detects the CSV layout and parses it.
func Read(r io.Reader) (*trace.Set, Stats, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	head, err := br.Peek(br.Size())
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, Stats{}, fmt.Errorf("capture: %w", err)
	}
	// Only complete lines are sniffed.
	if i := bytes.LastIndexByte(head, '\n'); i >= 0 && err != io.EOF {
		head = head[:i+1]
	}
	format, err := DetectFormat(head)
	if err != nil {
		return nil, Stats{}, err
	}
	if format == FormatSamples {
		return ReadSamples(br)
	}
	return ReadEdges(br)
}

// Load opens path (possibly compressed) and parses it with Read.
func Load(path string) (*trace.Set, Stats, error) {
	rc, _, err := Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer rc.Close()
	set, st, err := Read(rc)
	if err != nil {
		return nil, st, fmt.Errorf("%s: %w", path, err)
	}
	return set, st, nil
}

// WriteEdges writes every transition of set as `channel,direction,timestamp`
// in time order. Comment lines are written first, prefixed with '#'.
func WriteEdges(w io.Writer, set *trace.Set, comments ...string) error {
	if err := writeComments(w, comments); err != nil {
		return err
	}
	type row struct {
		ch int
		tr trace.Transition
	}
	names := set.Channels()
	var rows []row
	for i, name := range names {
		tr, _ := set.Lookup(name)
		for _, e := range tr.Transitions() {
			rows = append(rows, row{ch: i, tr: e})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].tr.Time < rows[j].tr.Time })

	cw := csv.NewWriter(w)
	cw.Write([]string{"channel", "direction", "timestamp"})
	for _, r := range rows {
		cw.Write([]string{names[r.ch], r.tr.Edge.String(), fmt.Sprint(r.tr.Time)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("capture: write edges: %w", err)
	}
	return nil
}

// WriteSamples writes one row per distinct record time in set with the
// level of every channel at that time.
func WriteSamples(w io.Writer, set *trace.Set, comments ...string) error {
	if err := writeComments(w, comments); err != nil {
		return err
	}
	names := set.Channels()
	traces := make([]*trace.Trace, len(names))
	seen := map[int64]bool{}
	var times []int64
	for i, name := range names {
		traces[i], _ = set.Lookup(name)
		for _, t := range traces[i].Times() {
			if !seen[t] {
				seen[t] = true
				times = append(times, t)
			}
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	cw := csv.NewWriter(w)
	cw.Write(append([]string{"timestamp"}, names...))
	rec := make([]string, len(names)+1)
	for _, t := range times {
		rec[0] = fmt.Sprint(t)
		for i, tr := range traces {
			rec[i+1] = fmt.Sprint(tr.LevelAt(t))
		}
		cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("capture: write samples: %w", err)
	}
	return nil
}

func writeComments(w io.Writer, comments []string) error {
	for _, c := range comments {
		for _, line := range strings.Split(c, "\n") {
			if _, err := fmt.Fprintf(w, "# %s\n", line); err != nil {
				return fmt.Errorf("capture: %w", err)
			}
		}
	}
	return nil
}
