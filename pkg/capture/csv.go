package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// maxKeptErrors bounds how many skipped records Stats keeps for reporting.
const maxKeptErrors = 8

// InputError describes one skipped CSV record.
type InputError struct {
	Line   int
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Stats summarizes a CSV import. Malformed records are skipped, never fatal.
type Stats struct {
	Format  Format
	Records int
	Skipped int
	Errors  []InputError // the first few skipped records
}

func (s *Stats) skip(line int, format string, args ...any) {
	s.Skipped++
	if len(s.Errors) < maxKeptErrors {
		s.Errors = append(s.Errors, InputError{Line: line, Reason: fmt.Sprintf(format, args...)})
	}
}

// ErrNoRecords is returned when a file holds no usable trace records.
var ErrNoRecords = errors.New("capture: no trace records")

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

// ReadEdges parses `channel,direction,timestamp` records. A leading header
// row is recognised by its non-numeric timestamp. Channels keep the order
// of their first appearance; each channel is sorted by time.
func ReadEdges(r io.Reader) (*trace.Set, Stats, error) {
	cr := newCSVReader(r)
	var (
		st    = Stats{Format: FormatEdges}
		order []string
		byCh  = map[string][]trace.Transition{}
	)
	for first := true; ; first = false {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if line, ok := parseErrorLine(err); ok {
				st.skip(line, "%v", err)
				continue
			}
			return nil, st, fmt.Errorf("capture: edges: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != 3 {
			st.skip(line, "want 3 fields, got %d", len(rec))
			continue
		}
		ts, terr := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
		if terr != nil {
			if !first {
				st.skip(line, "bad timestamp %q", rec[2])
			}
			continue
		}
		edge, eerr := trace.ParseEdge(rec[1])
		if eerr != nil {
			st.skip(line, "bad direction %q", rec[1])
			continue
		}
		ch := strings.TrimSpace(rec[0])
		if ch == "" {
			st.skip(line, "empty channel")
			continue
		}
		if _, ok := byCh[ch]; !ok {
			order = append(order, ch)
		}
		byCh[ch] = append(byCh[ch], trace.Transition{Edge: edge, Time: ts})
		st.Records++
	}
	if st.Records == 0 {
		return nil, st, ErrNoRecords
	}

	traces := make([]*trace.Trace, 0, len(order))
	for _, ch := range order {
		ts := byCh[ch]
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Time < ts[j].Time })
		tr, err := trace.NewEdgeTrace(ch, ts)
		if err != nil {
			return nil, st, fmt.Errorf("capture: %w", err)
		}
		traces = append(traces, tr)
	}
	set, err := trace.NewSet(traces...)
	return set, st, err
}

// ReadSamples parses a polling capture: a header `timestamp,<ch>,<ch>...`
// followed by one row per sample. Rows are sorted by time; a repeated
// timestamp keeps its first row.
func ReadSamples(r io.Reader) (*trace.Set, Stats, error) {
	cr := newCSVReader(r)
	st := Stats{Format: FormatSamples}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, st, ErrNoRecords
	}
	if err != nil {
		return nil, st, fmt.Errorf("capture: samples header: %w", err)
	}
	if len(header) < 2 {
		return nil, st, fmt.Errorf("capture: samples header needs a timestamp and at least one channel, got %q", header)
	}
	header = append([]string(nil), header...)
	headerless := isInt(header[0])
	names := make([]string, len(header)-1)
	for i, h := range header[1:] {
		names[i] = strings.TrimSpace(h)
		if headerless || names[i] == "" {
			names[i] = fmt.Sprintf("CH%d", i+1)
		}
	}

	type row struct {
		line   int
		time   int64
		levels []uint8
	}
	var rows []row
	for pending := headerless; ; pending = false {
		var rec []string
		var err error
		if pending {
			rec = header
		} else if rec, err = cr.Read(); err == io.EOF {
			break
		}
		if err != nil {
			if line, ok := parseErrorLine(err); ok {
				st.skip(line, "%v", err)
				continue
			}
			return nil, st, fmt.Errorf("capture: samples: %w", err)
		}
		line := 1
		if !pending {
			line, _ = cr.FieldPos(0)
		}
		if len(rec) != len(header) {
			st.skip(line, "want %d fields, got %d", len(header), len(rec))
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			st.skip(line, "bad timestamp %q", rec[0])
			continue
		}
		levels, ok := parseLevels(rec[1:])
		if !ok {
			st.skip(line, "levels must be 0 or 1: %q", rec[1:])
			continue
		}
		rows = append(rows, row{line: line, time: ts, levels: levels})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].time < rows[j].time })
	per := make([][]trace.LevelSample, len(names))
	for i, rw := range rows {
		if i > 0 && rw.time == rows[i-1].time {
			st.skip(rw.line, "duplicate timestamp %d", rw.time)
			continue
		}
		for c, l := range rw.levels {
			per[c] = append(per[c], trace.LevelSample{Time: rw.time, Level: l})
		}
		st.Records++
	}
	if st.Records == 0 {
		return nil, st, ErrNoRecords
	}

	traces := make([]*trace.Trace, len(names))
	for c, name := range names {
		tr, err := trace.NewSampleTrace(name, per[c])
		if err != nil {
			return nil, st, fmt.Errorf("capture: %w", err)
		}
		traces[c] = tr
	}
	set, err := trace.NewSet(traces...)
	return set, st, err
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

func parseLevels(fields []string) ([]uint8, bool) {
	out := make([]uint8, len(fields))
	for i, f := range fields {
		switch strings.TrimSpace(f) {
		case "0":
			out[i] = 0
		case "1":
			out[i] = 1
		default:
			return nil, false
		}
	}
	return out, true
}

func parseErrorLine(err error) (int, bool) {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine, true
	}
	return 0, false
}
