package workflow

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// LoRA is one adapter selection. A zero Name marks a deliberately skipped
// position: later positions keep their 1-based index instead of shifting.
type LoRA struct {
	Name     string
	Strength float64
}

// Parameters is one image-domain generation request. Optional numeric fields
// are pointers so that "unset" is distinguishable from a zero value; unset
// fields leave the template's own per-node defaults untouched.
//
// Parameters are consumed once by Bind. Callers that derive follow-up jobs
// from a finished one (re-roll, upscale, add-detail) must work on a Clone so
// the original request stays valid for other derived jobs.
type Parameters struct {
	Workflow string

	Prompt         string
	NegativePrompt string

	Model string
	LoRAs []LoRA

	// Dimensions is either a literal dimensions string understood by the
	// node, or a "WxH ..." value split into width/height fields.
	Dimensions string

	Sampler   string
	Scheduler string
	Steps     *int
	CFGScale  *float64
	Denoise   *float64

	BatchSize *int
	Seed      *int64

	// Filename is a server-side name previously returned by an upload;
	// it feeds the file-input role for img2img-style conditioning.
	Filename string

	// ModelDir points a secondary-model loader node at its weights.
	ModelDir string
}

// Clone returns an independent deep copy.
func (p *Parameters) Clone() *Parameters {
	clone := *p
	clone.LoRAs = append([]LoRA(nil), p.LoRAs...)
	clone.Steps = clonePtr(p.Steps)
	clone.CFGScale = clonePtr(p.CFGScale)
	clone.Denoise = clonePtr(p.Denoise)
	clone.BatchSize = clonePtr(p.BatchSize)
	clone.Seed = clonePtr(p.Seed)
	return &clone
}

// EnsureSeed assigns a uniformly random seed if none is set. Bind requires a
// concrete seed whenever the workflow has a seed role; deterministic jobs
// pass an explicit one instead.
func (p *Parameters) EnsureSeed() {
	if p.Seed == nil {
		s := rand.Int64()
		p.Seed = &s
	}
}

// AudioParameters is one audio-domain generation request (music generation
// or speech synthesis). Generator fields are only written to nodes that
// expose the matching input.
type AudioParameters struct {
	Workflow string

	Prompt string
	Voice  string

	Duration    *float64
	CFG         *float64
	TopK        *int
	TopP        *float64
	Temperature *float64

	Seed *int64

	// Filename feeds the file-input role, e.g. a clip to extend.
	Filename string
}

// Clone returns an independent deep copy.
func (p *AudioParameters) Clone() *AudioParameters {
	clone := *p
	clone.Duration = clonePtr(p.Duration)
	clone.CFG = clonePtr(p.CFG)
	clone.TopK = clonePtr(p.TopK)
	clone.TopP = clonePtr(p.TopP)
	clone.Temperature = clonePtr(p.Temperature)
	clone.Seed = clonePtr(p.Seed)
	return &clone
}

// EnsureSeed assigns a uniformly random seed if none is set.
func (p *AudioParameters) EnsureSeed() {
	if p.Seed == nil {
		s := rand.Int64()
		p.Seed = &s
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ParseDimensions splits a "WxH" value, tolerating trailing annotations such
// as "1024x1024 (1:1 square)".
func ParseDimensions(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}
	hpart := strings.Fields(strings.TrimSpace(parts[1]))
	if len(hpart) == 0 {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}
	h, err := strconv.Atoi(hpart[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed dimensions %q", s)
	}
	return w, h, nil
}
