package decode

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDecode/pkg/timing"
	"github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"
)

// Decoder turns the traces of a capture into decoded bytes. Decoders hold
// no mutable state; one value may decode many sets, concurrently.
type Decoder interface {
	Config() Config
	Decode(set *trace.Set) (*Result, error)
}

// New validates cfg and returns the decoder for its protocol.
func New(cfg Config) (Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.Protocol.build(cfg), nil
}

// Decode is New followed by a single Decode call.
func Decode(set *trace.Set, cfg Config) (*Result, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return d.Decode(set)
}

// Outcome pairs a configuration with its result or failure.
type Outcome struct {
	Config Config
	Result *Result
	Err    error
}

// DecodeAll runs every configuration against set on its own goroutine.
// A failing configuration does not affect the others. Outcomes keep the
// order of cfgs.
func DecodeAll(set *trace.Set, cfgs []Config) []Outcome {
	out := make([]Outcome, len(cfgs))
	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(i int, cfg Config) {
			defer wg.Done()
			res, err := Decode(set, cfg)
			out[i] = Outcome{Config: cfg, Result: res, Err: err}
		}(i, cfg)
	}
	wg.Wait()
	return out
}

// session is the state shared by every protocol decoder: the validated
// config and the unit interval derived once from it.
type session struct {
	cfg  Config
	unit timing.Model
}

func newSession(cfg Config) session {
	s := session{cfg: cfg}
	if cfg.NominalRate > 0 {
		// Validate already rejected non-positive rates where they matter.
		s.unit, _ = timing.NominalModel(cfg.TickRate, cfg.NominalRate)
	}
	return s
}

func (s session) Config() Config { return s.cfg }

// lookup resolves every input channel before any decoding starts.
func (s session) lookup(set *trace.Set, names ...string) ([]*trace.Trace, error) {
	out := make([]*trace.Trace, len(names))
	for i, name := range names {
		tr, err := set.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("decode: %s: %w", s.cfg.Protocol.Kind(), err)
		}
		out[i] = tr
	}
	return out, nil
}

// newResult prepares a result and, in measured mode, estimates the sample
// period from ref.
func (s session) newResult(ref *trace.Trace) (*Result, error) {
	res := &Result{
		Protocol: s.cfg.Protocol.Kind(),
		Config:   s.cfg,
		Timing:   s.unit,
		Source:   ref.Kind(),
	}
	if s.cfg.Timing == timing.Measured {
		m, err := timing.Measure(ref)
		if err != nil {
			return nil, fmt.Errorf("decode: %s: %w", s.cfg.Protocol.Kind(), err)
		}
		res.Sampling = &m
	}
	return res, nil
}
