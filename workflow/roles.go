package workflow

// RoleMapping lists, for one workflow template, the node ids that play each
// semantic role. It is declarative configuration: the patch engine addresses
// graph fields exclusively through these lists and never by class type or
// hardcoded id. A role whose list is empty, or whose first element is the
// empty string (the convention that falls out of splitting an empty config
// value), simply does not exist in that workflow and is skipped.
type RoleMapping struct {
	Prompt         []string `toml:"prompt"`
	NegativePrompt []string `toml:"negative_prompt"`
	Seed           []string `toml:"seed"`
	Model          []string `toml:"model"`
	LoRA           []string `toml:"lora"`
	Dimensions     []string `toml:"dimensions"`
	FileInput      []string `toml:"file_input"`
	Sampler        []string `toml:"sampler"`
	Latent         []string `toml:"latent"`
	Voice          []string `toml:"voice"`
	Generator      []string `toml:"generator"`
	ModelDir       []string `toml:"model_dir"`
}

// active filters the empty-role conventions down to a usable id list.
func active(ids []string) []string {
	if len(ids) == 0 || ids[0] == "" {
		return nil
	}
	return ids
}
