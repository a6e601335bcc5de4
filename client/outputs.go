package client

// finalOutputMarker distinguishes user-facing results from intermediate
// pipeline artifacts (a base-model pass before a refiner, previews...). The
// save nodes of every workflow embed it in their filename prefix.
const finalOutputMarker = "final_output"

// OutputKind classifies a downloaded result by the manifest key it was
// found under.
type OutputKind int

const (
	OutputImage OutputKind = iota + 1
	OutputAnimation
	OutputAudio
	OutputVideo
)

func (k OutputKind) String() string {
	switch k {
	case OutputImage:
		return "image"
	case OutputAnimation:
		return "animation"
	case OutputAudio:
		return "audio"
	case OutputVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Output is one user-facing result: the engine-assigned filename plus the
// downloaded bytes.
type Output struct {
	Kind     OutputKind
	Filename string
	Data     []byte
}

// Result is everything one finished job produced. EnhancedPrompt is set when
// a workflow node rewrote the submitted prompt; callers should treat the
// original prompt as superseded when it is non-empty.
type Result struct {
	Outputs        []Output
	EnhancedPrompt string
}

// FileRef addresses one stored file on the engine.
type FileRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// nodeOutput is one node's entry in the history manifest.
type nodeOutput struct {
	Images []FileRef `json:"images"`
	Gifs   []FileRef `json:"gifs"`
	Clips  []FileRef `json:"clips"`
	Videos []FileRef `json:"videos"`
	Text   []string  `json:"text"`
}

// historyEntry is the manifest for one prompt id.
type historyEntry struct {
	Outputs map[string]nodeOutput `json:"outputs"`
}
