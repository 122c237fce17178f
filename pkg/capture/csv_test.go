package capture

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/synth"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

const edgeCSV = `Channel-Type,Edge,Time
RX,falling,100
TX,Falling,150
RX,rising,110
RX,sideways,120
TX,rising
# probe reset
RX,falling,abc
TX,rising,200
`

func TestReadEdges(t *testing.T) {
	set, st, err := ReadEdges(strings.NewReader(edgeCSV))
	if err != nil {
		t.Fatalf("ReadEdges returned error: %v", err)
	}
	if st.Format != FormatEdges || st.Records != 4 || st.Skipped != 3 {
		t.Fatalf("stats = %+v, want 4 records and 3 skipped", st)
	}
	if len(st.Errors) != 3 || st.Errors[0].Line != 5 {
		t.Fatalf("errors = %v", st.Errors)
	}
	if got := set.Channels(); strings.Join(got, ",") != "RX,TX" {
		t.Fatalf("channels = %v, want RX,TX", got)
	}
	rx, _ := set.Lookup("RX")
	want := []trace.Transition{{Edge: trace.Falling, Time: 100}, {Edge: trace.Rising, Time: 110}}
	got := rx.Transitions()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("RX transitions = %v, want %v", got, want)
	}
}

func TestReadEdgesSortsOutOfOrderRecords(t *testing.T) {
	in := "CLK,rising,30\nCLK,falling,10\nCLK,rising,20\n"
	set, st, err := ReadEdges(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadEdges returned error: %v", err)
	}
	if st.Skipped != 0 {
		t.Fatalf("skipped = %d", st.Skipped)
	}
	clk, _ := set.Lookup("CLK")
	times := clk.Times()
	if times[0] != 10 || times[1] != 20 || times[2] != 30 {
		t.Fatalf("times = %v, want sorted", times)
	}
}

func TestReadSamples(t *testing.T) {
	in := "Time,SCL,SDA\n0,1,1\n20,0,1\n10,1,0\n10,0,0\n30,1,2\n40,1\n"
	set, st, err := ReadSamples(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadSamples returned error: %v", err)
	}
	if st.Records != 3 || st.Skipped != 3 {
		t.Fatalf("stats = %+v, want 3 records and 3 skipped", st)
	}
	sda, _ := set.Lookup("SDA")
	if sda.Kind() != trace.KindSamples {
		t.Fatalf("kind = %s", sda.Kind())
	}
	// The first row for time 10 wins.
	if sda.LevelAt(10) != 0 || sda.LevelAt(15) != 0 || sda.LevelAt(25) != 1 {
		t.Fatalf("SDA levels wrong: %v", sda.Samples())
	}
	scl, _ := set.Lookup("SCL")
	if scl.LevelAt(10) != 1 {
		t.Fatalf("SCL at 10 = %d, want first row's 1", scl.LevelAt(10))
	}
}

func TestReadSamplesWithoutHeader(t *testing.T) {
	set, _, err := ReadSamples(strings.NewReader("0,1\n5,0\n"))
	if err != nil {
		t.Fatalf("ReadSamples returned error: %v", err)
	}
	ch, err := set.Lookup("CH1")
	if err != nil || ch.Len() != 2 {
		t.Fatalf("CH1 = %v, %v", ch, err)
	}
}

func TestReadEmpty(t *testing.T) {
	if _, _, err := ReadEdges(strings.NewReader("channel,direction,timestamp\n")); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("ReadEdges(header only) = %v, want ErrNoRecords", err)
	}
	if _, _, err := ReadSamples(strings.NewReader("")); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("ReadSamples(empty) = %v, want ErrNoRecords", err)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		edgeCSV:                                 FormatEdges,
		"Time,RX,TX\n0,1,1\n":                   FormatSamples,
		"# session x\n0,1,1\n":                  FormatSamples,
		"RX,1,100\n":                            FormatEdges,
		"timestamp,A\n1,0\n2,1\n3,0\n":          FormatSamples,
		"0,falling,5\n":                         FormatEdges,
		"channel,direction,timestamp\n3,R,10\n": FormatEdges,
		"5,0,1\n":                               FormatSamples,
	}
	for in, want := range cases {
		got, err := DetectFormat([]byte(in))
		if err != nil || got != want {
			t.Fatalf("DetectFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := DetectFormat([]byte("a,b\nc,d\n")); err == nil {
		t.Fatalf("DetectFormat accepted garbage")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	rx := mustEdges(t, "RX", trace.Transition{Edge: trace.Falling, Time: 5}, trace.Transition{Edge: trace.Rising, Time: 9})
	tx := mustEdges(t, "TX", trace.Transition{Edge: trace.Falling, Time: 7})
	set := trace.MustSet(rx, tx)

	var buf bytes.Buffer
	if err := WriteEdges(&buf, set, "session test"); err != nil {
		t.Fatalf("WriteEdges returned error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "# session test\nchannel,direction,timestamp\nRX,falling,5\nTX,falling,7\n") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	back, st, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if st.Format != FormatEdges || st.Records != 3 {
		t.Fatalf("stats = %+v", st)
	}
	got, _ := back.Lookup("RX")
	if got.LevelAt(6) != 0 || got.LevelAt(9) != 1 {
		t.Fatalf("RX round trip lost levels: %v", got.Transitions())
	}

	buf.Reset()
	if err := WriteSamples(&buf, set); err != nil {
		t.Fatalf("WriteSamples returned error: %v", err)
	}
	want := "timestamp,RX,TX\n5,0,1\n7,0,0\n9,1,0\n"
	if buf.String() != want {
		t.Fatalf("WriteSamples = %q, want %q", buf.String(), want)
	}
	samples, st, err := Read(&buf)
	if err != nil || st.Format != FormatSamples || samples.Len() != 2 {
		t.Fatalf("Read(samples) = %v, %+v, %v", samples, st, err)
	}
}

func TestWriteReadNumericChannelNames(t *testing.T) {
	tx := synth.NewUART("0", 72_000_000, 9600)
	clk := mustEdges(t, "1", trace.Transition{Edge: trace.Falling, Time: 40}, trace.Transition{Edge: trace.Rising, Time: 80})
	rx := tx.Encode([]byte("ok")).Edges()
	set := trace.MustSet(rx, clk)

	var buf bytes.Buffer
	if err := WriteEdges(&buf, set); err != nil {
		t.Fatalf("WriteEdges returned error: %v", err)
	}
	want := rx.Len() + clk.Len()
	back, st, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if st.Format != FormatEdges || st.Records != want || st.Skipped != 0 {
		t.Fatalf("stats = %+v, want %d edge records", st, want)
	}
	got, err := back.Lookup("0")
	if err != nil {
		t.Fatalf("Lookup(0): %v", err)
	}
	if !reflect.DeepEqual(got.Transitions(), rx.Transitions()) {
		t.Fatalf("channel 0 = %v, want %v", got.Transitions(), rx.Transitions())
	}
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	plain := "RX,falling,10\nRX,rising,20\n"

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(plain))
	zw.Close()

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatalf("xz.NewWriter returned error: %v", err)
	}
	xw.Write([]byte(plain))
	xw.Close()

	files := map[string][]byte{
		"plain.csv":    []byte(plain),
		"trace.csv.gz": gz.Bytes(),
		"trace.csv.xz": xzBuf.Bytes(),
	}
	wantKind := map[string]Compression{
		"plain.csv":    CompressionNone,
		"trace.csv.gz": CompressionGzip,
		"trace.csv.xz": CompressionXZ,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		rc, kind, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s) returned error: %v", name, err)
		}
		rc.Close()
		if kind != wantKind[name] {
			t.Fatalf("Open(%s) compression = %s, want %s", name, kind, wantKind[name])
		}
		set, st, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) returned error: %v", name, err)
		}
		if st.Records != 2 || set.Len() != 1 {
			t.Fatalf("Load(%s) = %d records, %d channels", name, st.Records, set.Len())
		}
	}
}

func TestCreateCompressed(t *testing.T) {
	dir := t.TempDir()
	set := trace.MustSet(mustEdges(t, "RX",
		trace.Transition{Edge: trace.Falling, Time: 10},
		trace.Transition{Edge: trace.Rising, Time: 20},
	))
	for _, name := range []string{"out.csv", "out.csv.gz", "out.csv.xz"} {
		path := filepath.Join(dir, name)
		w, err := Create(path)
		if err != nil {
			t.Fatalf("Create(%s) returned error: %v", name, err)
		}
		if err := WriteEdges(w, set, "session test"); err != nil {
			t.Fatalf("WriteEdges(%s) returned error: %v", name, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close(%s) returned error: %v", name, err)
		}
		back, st, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) returned error: %v", name, err)
		}
		if st.Records != 2 || back.Len() != 1 {
			t.Fatalf("Load(%s) = %d records, %d channels", name, st.Records, back.Len())
		}
	}
	if _, err := Create(filepath.Join(dir, "out.csv.bz2")); err == nil {
		t.Fatalf("Create(.bz2) succeeded")
	}
}

func TestDetectCompression(t *testing.T) {
	if DetectCompression([]byte("BZh91AY")) != CompressionBzip2 {
		t.Fatalf("bzip2 magic not detected")
	}
	if DetectCompression([]byte{0x1f}) != CompressionNone {
		t.Fatalf("truncated gzip magic detected")
	}
}

func mustEdges(t *testing.T, ch string, ts ...trace.Transition) *trace.Trace {
	t.Helper()
	tr, err := trace.NewEdgeTrace(ch, ts)
	if err != nil {
		t.Fatalf("NewEdgeTrace returned error: %v", err)
	}
	return tr
}
