// Package config loads the engine addresses and per-workflow role mappings
// from a TOML file. Role mappings are the only thing that ties a workflow
// template's node ids to the patch engine; nothing else in the repository
// knows a node id.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/genflow/genflow/workflow"
)

type (
	Config struct {
		Comfy     ComfyConfig               `toml:"comfy" validate:"required"`
		Stability StabilityConfig           `toml:"stability"`
		Workflows map[string]WorkflowConfig `toml:"workflows" validate:"required,min=1,dive"`
	}

	// ComfyConfig addresses the node-graph engine.
	ComfyConfig struct {
		Address string `toml:"address" validate:"required,hostname_port"`
		// ModelDir points secondary-model loader nodes at their weights.
		ModelDir string `toml:"modelDir"`
	}

	// StabilityConfig addresses the alternate REST engine. Optional: only
	// deployments that route jobs to it need a key.
	StabilityConfig struct {
		Host   string `toml:"host" validate:"omitempty,url"`
		Engine string `toml:"engine"`
		ApiKey string `toml:"apiKey"`
	}

	// WorkflowConfig binds one workflow id to its template file and role
	// mapping.
	WorkflowConfig struct {
		Template string               `toml:"template" validate:"required"`
		Nodes    workflow.RoleMapping `toml:"nodes"`
	}
)

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// Load reads and validates the configuration at path. Template paths are
// resolved relative to the config file's directory.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for id, wf := range config.Workflows {
		if !filepath.IsAbs(wf.Template) {
			wf.Template = filepath.Join(base, wf.Template)
			config.Workflows[id] = wf
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Workflow resolves one workflow id to its loaded template graph and role
// mapping. An unknown id is a configuration error.
func (c *Config) Workflow(id string) (workflow.Graph, *workflow.RoleMapping, error) {
	wf, ok := c.Workflows[id]
	if !ok {
		return nil, nil, fmt.Errorf("workflow %q not configured", id)
	}
	graph, err := workflow.NewGraphFromJSONFile(wf.Template)
	if err != nil {
		return nil, nil, fmt.Errorf("loading template for workflow %q: %w", id, err)
	}
	mapping := wf.Nodes
	return graph, &mapping, nil
}
