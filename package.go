// Genflow is a Go client for driving generative-media jobs on a ComfyUI-style
// node-graph execution engine. Workflow templates are plain API-format JSON
// documents; per-workflow role mappings address their nodes by semantic role
// (prompt, seed, model, ...) so that the same binding code serves image, video
// and audio pipelines without hardcoding node identities. A thin alternate
// client for Stability-style REST image engines shares the same parameter
// contract.
package genflow
