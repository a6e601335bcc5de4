package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/genflow/genflow/workflow"
)

// engine route summary:
//
//	POST /prompt            queue a bound graph
//	GET  /history/{id}      per-job output manifest
//	GET  /view              fetch stored file bytes
//	POST /history           clear history
//	GET  /object_info       node class metadata (input choices)
//	POST /upload/image      store a file for file-input conditioning

type queueRequest struct {
	Prompt   workflow.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type queueResponse struct {
	PromptID string `json:"prompt_id"`
	Error    *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// queuePrompt submits the bound graph and returns the server-assigned prompt
// id, the correlation key for everything that follows.
func (c *Client) queuePrompt(ctx context.Context, graph workflow.Graph) (string, error) {
	body, err := json.Marshal(queueRequest{Prompt: graph, ClientID: c.clientID})
	if err != nil {
		return "", wrapErr(KindConfig, "queue", err)
	}

	data, err := c.postJSON(ctx, "/prompt", body)
	if err != nil {
		return "", wrapErr(KindTransport, "queue", err)
	}

	var resp queueResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", wrapErr(KindProtocol, "queue", err)
	}
	if resp.PromptID == "" {
		if resp.Error != nil {
			// the engine rejected the graph itself, e.g. prompt_no_outputs
			return "", errorf(KindConfig, "queue", "engine rejected prompt: %s: %s", resp.Error.Type, resp.Error.Message)
		}
		return "", errorf(KindProtocol, "queue", "queue response carried no prompt id")
	}
	return resp.PromptID, nil
}

// history fetches the output manifest for one prompt id.
func (c *Client) history(ctx context.Context, promptID string) (*historyEntry, error) {
	data, err := c.getBytes(ctx, "/history/"+promptID, nil)
	if err != nil {
		return nil, wrapErr(KindTransport, "history", err)
	}

	entries := make(map[string]historyEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, wrapErr(KindProtocol, "history", err)
	}
	entry, ok := entries[promptID]
	if !ok {
		return nil, errorf(KindResult, "history", "prompt %s missing from history", promptID)
	}
	return &entry, nil
}

// fetchFile downloads one stored file's bytes.
func (c *Client) fetchFile(ctx context.Context, ref FileRef) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", ref.Filename)
	params.Add("subfolder", ref.Subfolder)
	params.Add("type", ref.Type)

	data, err := c.getBytes(ctx, "/view", params)
	if err != nil {
		return nil, wrapErr(KindTransport, "view", err)
	}
	return data, nil
}

// ClearHistory erases the engine's entire history store.
func (c *Client) ClearHistory(ctx context.Context) error {
	if _, err := c.postJSON(ctx, "/history", []byte(`{"clear": true}`)); err != nil {
		return wrapErr(KindTransport, "clear history", err)
	}
	return nil
}

// ModelNames lists the checkpoints installed on the engine.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	return c.nodeInputChoices(ctx, "CheckpointLoaderSimple", "ckpt_name")
}

// LoRANames lists the LoRA adapters installed on the engine.
func (c *Client) LoRANames(ctx context.Context) ([]string, error) {
	return c.nodeInputChoices(ctx, "LoraLoader", "lora_name")
}

// SamplerNames lists the samplers the engine supports.
func (c *Client) SamplerNames(ctx context.Context) ([]string, error) {
	return c.nodeInputChoices(ctx, "KSampler", "sampler_name")
}

// VoiceNames lists the speech-synthesis voices installed on the engine.
func (c *Client) VoiceNames(ctx context.Context) ([]string, error) {
	return c.nodeInputChoices(ctx, "TortoiseTTSGenerate", "voice")
}

// nodeInputChoices digs the list of permitted values for one node input out
// of the engine's object_info metadata.
func (c *Client) nodeInputChoices(ctx context.Context, nodeClass, input string) ([]string, error) {
	data, err := c.getBytes(ctx, "/object_info/"+nodeClass, nil)
	if err != nil {
		return nil, wrapErr(KindTransport, "object info", err)
	}

	// shape: {class: {"input": {"required": {name: [[choices...], {...}]}}}}
	var info map[string]struct {
		Input struct {
			Required map[string][]json.RawMessage `json:"required"`
		} `json:"input"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, wrapErr(KindProtocol, "object info", err)
	}

	class, ok := info[nodeClass]
	if !ok {
		return nil, errorf(KindResult, "object info", "node class %s not installed on engine", nodeClass)
	}
	def, ok := class.Input.Required[input]
	if !ok || len(def) == 0 {
		return nil, errorf(KindProtocol, "object info", "node class %s has no input %s", nodeClass, input)
	}
	var choices []string
	if err := json.Unmarshal(def[0], &choices); err != nil {
		return nil, wrapErr(KindProtocol, "object info", err)
	}
	return choices, nil
}

func (c *Client) getBytes(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("http://%s%s", c.serverAddress, path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	u := fmt.Sprintf("http://%s%s", c.serverAddress, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
