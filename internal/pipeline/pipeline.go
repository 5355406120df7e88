package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/distance"
)

// Inferencer runs the detection model on a frame and returns its raw output.
type Inferencer interface {
	Infer(ctx context.Context, f Frame) (detect.Tensor, error)
}

// Stage is one detector: a model, its labels and the distance estimator
// matching the model's input width.
type Stage struct {
	Name       string
	Inferencer Inferencer
	Labels     detect.Labels
	Estimator  *distance.Estimator
}

// ObjectSink receives the merged boxes after every frame.
type ObjectSink interface {
	UpdateObjects(objects []detect.DetectedObject)
}

// Observer is told about each stage's result, for journaling.
type Observer func(stage string, f Frame, objects []detect.DetectedObject)

// Config holds the post-processing thresholds.
type Config struct {
	Decoder      detect.DecoderConfig
	IoUThreshold float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{Decoder: detect.DefaultDecoderConfig(), IoUThreshold: 0.5}
}

// Stats counts pipeline activity.
type Stats struct {
	Frames      uint64 `json:"frames"`
	Dropped     uint64 `json:"dropped"`
	InferErrors uint64 `json:"infer_errors"`
	Objects     int    `json:"objects"`
}

// Pipeline runs every stage on each frame and publishes the union of their
// surviving boxes.
type Pipeline struct {
	cfg      Config
	stages   []Stage
	sink     ObjectSink
	observer Observer
	slot     *FrameSlot

	frames      atomic.Uint64
	inferErrors atomic.Uint64

	mu     sync.Mutex
	latest [][]detect.DetectedObject
}

// New builds a pipeline. Every stage needs an inferencer, labels and an
// estimator sized to its model input.
func New(cfg Config, stages []Stage, sink ObjectSink) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, errors.New("pipeline needs at least one stage")
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = 0.5
	}
	for i := range stages {
		if stages[i].Inferencer == nil {
			return nil, fmt.Errorf("stage %q has no inferencer", stages[i].Name)
		}
		if len(stages[i].Labels) == 0 {
			return nil, fmt.Errorf("stage %q has no labels", stages[i].Name)
		}
		if stages[i].Estimator == nil {
			return nil, fmt.Errorf("stage %q has no distance estimator", stages[i].Name)
		}
	}
	return &Pipeline{
		cfg:    cfg,
		stages: stages,
		sink:   sink,
		slot:   NewFrameSlot(),
		latest: make([][]detect.DetectedObject, len(stages)),
	}, nil
}

// SetObserver registers a per-stage result callback.
func (p *Pipeline) SetObserver(o Observer) { p.observer = o }

// Slot returns the frame slot that feeds Run.
func (p *Pipeline) Slot() *FrameSlot { return p.slot }

// Run processes frames from the slot until ctx is done or a stage reports
// a configuration error.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		f, err := p.slot.Next(ctx)
		if err != nil {
			return err
		}
		if _, err := p.Process(ctx, f); err != nil {
			return err
		}
	}
}

type stageResult struct {
	objects []detect.DetectedObject
	err     error
}

// Process runs all stages on f concurrently and publishes the merged boxes.
// A failed inference clears that stage's boxes for this frame. Label or
// tensor shape mismatches are configuration errors and are returned.
func (p *Pipeline) Process(ctx context.Context, f Frame) ([]detect.DetectedObject, error) {
	p.frames.Add(1)
	results := make([]stageResult, len(p.stages))

	var wg sync.WaitGroup
	for i := range p.stages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.runStage(ctx, p.stages[i], f)
		}(i)
	}
	wg.Wait()

	var merged []detect.DetectedObject
	p.mu.Lock()
	for i, r := range results {
		if r.err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("stage %s: %w", p.stages[i].Name, r.err)
		}
		p.latest[i] = r.objects
		merged = append(merged, r.objects...)
	}
	p.mu.Unlock()

	if p.observer != nil {
		for i, r := range results {
			p.observer(p.stages[i].Name, f, r.objects)
		}
	}
	if p.sink != nil {
		p.sink.UpdateObjects(merged)
	}
	tracef("frame %d: %d objects", f.Seq, len(merged))
	return merged, nil
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, f Frame) stageResult {
	tensor, err := s.Inferencer.Infer(ctx, f)
	if err != nil {
		p.inferErrors.Add(1)
		logs.Opsf("%s inference failed on frame %d: %v", s.Name, f.Seq, err)
		return stageResult{}
	}

	candidates, err := detect.Decode(tensor, s.Labels, p.cfg.Decoder)
	switch {
	case errors.Is(err, detect.ErrNoDetections):
		return stageResult{}
	case err != nil:
		return stageResult{err: err}
	}

	survivors := detect.Suppress(candidates, p.cfg.IoUThreshold)
	return stageResult{objects: s.Estimator.Annotate(survivors)}
}

// Latest returns the union of the most recent stage results.
func (p *Pipeline) Latest() []detect.DetectedObject {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []detect.DetectedObject
	for _, objs := range p.latest {
		out = append(out, objs...)
	}
	return out
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:      p.frames.Load(),
		Dropped:     p.slot.Drops(),
		InferErrors: p.inferErrors.Load(),
		Objects:     len(p.Latest()),
	}
}
