package workflow

import (
	"errors"
	"fmt"
	"strconv"
)

// ConfigError reports a role mapping that names a node id missing from the
// template it is bound against. This is a deployment mistake, not a runtime
// condition, and is never retried.
type ConfigError struct {
	Role   string
	NodeID string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("workflow config: role %s references node %q not present in template", e.Role, e.NodeID)
}

// ErrSeedUnresolved is returned when a workflow carries a seed role but the
// parameters do not supply a concrete seed. Binding never generates
// randomness itself; call EnsureSeed (or set an explicit seed) first.
var ErrSeedUnresolved = errors.New("workflow: seed role present but no seed resolved")

// Bind produces a copy of template with every role-addressed field
// overwritten from params. The template itself is never mutated, so the same
// loaded graph can back any number of concurrent jobs.
//
// Roles absent from the mapping are skipped; parameter values for roles the
// workflow does not map are silently dropped. Both are expected, not errors:
// not every workflow supports every knob.
func Bind(template Graph, mapping *RoleMapping, params *Parameters) (Graph, error) {
	g := template.Clone()

	if params.Prompt != "" {
		nodes, err := rolesNodes(g, "prompt", mapping.Prompt)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			setTextInput(n, params.Prompt)
		}
	}

	if params.NegativePrompt != "" {
		nodes, err := rolesNodes(g, "negative_prompt", mapping.NegativePrompt)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			setTextInput(n, params.NegativePrompt)
		}
	}

	if params.Filename != "" {
		nodes, err := rolesNodes(g, "file_input", mapping.FileInput)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			setFileInput(n, params.Filename)
		}
	}

	seedNodes, err := rolesNodes(g, "seed", mapping.Seed)
	if err != nil {
		return nil, err
	}
	if len(seedNodes) > 0 {
		if params.Seed == nil {
			return nil, ErrSeedUnresolved
		}
		for _, n := range seedNodes {
			n.Inputs["seed"] = *params.Seed
		}
	}

	if params.Model != "" {
		nodes, err := rolesNodes(g, "model", mapping.Model)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.HasInput("ckpt_name") {
				n.Inputs["ckpt_name"] = params.Model
			} else if n.HasInput("base_ckpt_name") {
				n.Inputs["base_ckpt_name"] = params.Model
			}
		}
	}

	if len(params.LoRAs) > 0 {
		nodes, err := rolesNodes(g, "lora", mapping.LoRA)
		if err != nil {
			return nil, err
		}
		for i, lora := range params.LoRAs {
			if lora.Name == "" {
				// deliberately skipped position, later indices stay put
				continue
			}
			idx := strconv.Itoa(i + 1)
			for _, n := range nodes {
				switch {
				case n.HasInput("lora_name_" + idx):
					n.Inputs["switch_"+idx] = "On"
					n.Inputs["lora_name_"+idx] = lora.Name
					n.Inputs["model_weight_"+idx] = lora.Strength
					n.Inputs["clip_weight_"+idx] = lora.Strength
				case n.HasInput("lora_0" + idx):
					n.Inputs["lora_0"+idx] = lora.Name
					n.Inputs["strength_0"+idx] = lora.Strength
				}
			}
		}
	}

	if params.Dimensions != "" {
		nodes, err := rolesNodes(g, "dimensions", mapping.Dimensions)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.HasInput("dimensions") {
				n.Inputs["dimensions"] = params.Dimensions
				continue
			}
			w, h, err := ParseDimensions(params.Dimensions)
			if err != nil {
				return nil, err
			}
			n.Inputs["empty_latent_width"] = w
			n.Inputs["empty_latent_height"] = h
		}
	}

	if samplerArgsGiven(params) {
		nodes, err := rolesNodes(g, "sampler", mapping.Sampler)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			// Unset fields keep the template's own per-node defaults.
			// Different workflows ship different defaults, so there is no
			// global fallback here.
			if params.Steps != nil {
				n.Inputs["steps"] = *params.Steps
			}
			if params.CFGScale != nil {
				n.Inputs["cfg"] = *params.CFGScale
			}
			if params.Sampler != "" {
				n.Inputs["sampler_name"] = params.Sampler
			}
			if params.Scheduler != "" && n.HasInput("scheduler") {
				n.Inputs["scheduler"] = params.Scheduler
			}
			// some samplers have no denoise input
			if params.Denoise != nil && n.HasInput("denoise") {
				n.Inputs["denoise"] = *params.Denoise
			}
		}
	}

	if params.BatchSize != nil {
		nodes, err := rolesNodes(g, "latent", mapping.Latent)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			n.Inputs["amount"] = *params.BatchSize
		}
	}

	if params.ModelDir != "" {
		nodes, err := rolesNodes(g, "model_dir", mapping.ModelDir)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			n.Inputs["model_dir"] = params.ModelDir
		}
	}

	return g, nil
}

// BindAudio is the audio-domain analog of Bind. Generator fields (duration,
// cfg, top_k, top_p, temperature) are written only to nodes that expose the
// matching input, so one mapping serves both music and speech pipelines.
func BindAudio(template Graph, mapping *RoleMapping, params *AudioParameters) (Graph, error) {
	g := template.Clone()

	if params.Prompt != "" {
		nodes, err := rolesNodes(g, "prompt", mapping.Prompt)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			setTextInput(n, params.Prompt)
		}
	}

	if params.Filename != "" {
		nodes, err := rolesNodes(g, "file_input", mapping.FileInput)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			setFileInput(n, params.Filename)
		}
	}

	seedNodes, err := rolesNodes(g, "seed", mapping.Seed)
	if err != nil {
		return nil, err
	}
	if len(seedNodes) > 0 {
		if params.Seed == nil {
			return nil, ErrSeedUnresolved
		}
		for _, n := range seedNodes {
			n.Inputs["seed"] = *params.Seed
		}
	}

	if params.Voice != "" {
		nodes, err := rolesNodes(g, "voice", mapping.Voice)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			n.Inputs["voice"] = params.Voice
		}
	}

	genNodes, err := rolesNodes(g, "generator", mapping.Generator)
	if err != nil {
		return nil, err
	}
	for _, n := range genNodes {
		if params.Duration != nil && n.HasInput("duration") {
			n.Inputs["duration"] = *params.Duration
		}
		if params.CFG != nil && n.HasInput("cfg") {
			n.Inputs["cfg"] = *params.CFG
		}
		if params.TopK != nil && n.HasInput("top_k") {
			n.Inputs["top_k"] = *params.TopK
		}
		if params.TopP != nil && n.HasInput("top_p") {
			n.Inputs["top_p"] = *params.TopP
		}
		if params.Temperature != nil && n.HasInput("temperature") {
			n.Inputs["temperature"] = *params.Temperature
		}
	}

	return g, nil
}

func samplerArgsGiven(p *Parameters) bool {
	return p.Denoise != nil || p.Sampler != "" || p.Scheduler != "" || p.Steps != nil || p.CFGScale != nil
}

// rolesNodes resolves a role's node-id list against the graph. An empty role
// yields no nodes; an id that does not exist in the template is a ConfigError.
func rolesNodes(g Graph, role string, ids []string) ([]*Node, error) {
	ids = active(ids)
	if ids == nil {
		return nil, nil
	}
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		node, ok := g[id]
		if !ok {
			return nil, &ConfigError{Role: role, NodeID: id}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// setTextInput writes to whichever prompt-carrying input the node exposes.
func setTextInput(n *Node, value string) {
	if n.HasInput("text") {
		n.Inputs["text"] = value
	} else if n.HasInput("prompt") {
		n.Inputs["prompt"] = value
	}
}

// setFileInput writes to whichever file-reference input the node exposes;
// image loaders take "image", audio loaders take "path".
func setFileInput(n *Node, value string) {
	if n.HasInput("image") {
		n.Inputs["image"] = value
	} else if n.HasInput("path") {
		n.Inputs["path"] = value
	}
}
