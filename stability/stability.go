// Package stability is the alternate REST image engine. Unlike the
// node-graph engine there is no queue or event stream to correlate: every
// job is a single request/response call. It accepts the same parameter
// contract as the graph path so the two engines are interchangeable behind
// the command layer.
package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/genflow/genflow/client"
	"github.com/genflow/genflow/workflow"
)

const upscaleEngine = "esrgan-v1-x2plus"

// Client calls a Stability-style generation API with bearer auth.
type Client struct {
	host       string
	engine     string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the API at host using the given engine id. The
// key is passed through as a bearer token on every request.
func New(host, engine, apiKey string, opts ...Option) *Client {
	c := &Client{
		host:       host,
		engine:     engine,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textPrompt struct {
	Text string `json:"text"`
}

type generationRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Sampler     string       `json:"sampler,omitempty"`
	Steps       int          `json:"steps"`
}

type generationResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

// TextToImage generates images from the prompt in params. Unset fields fall
// back to the engine's house defaults rather than per-template ones; the
// REST engine has no templates.
func (c *Client) TextToImage(ctx context.Context, params *workflow.Parameters) ([]client.Output, error) {
	reqBody := generationRequest{
		TextPrompts: []textPrompt{{Text: params.Prompt}},
		CFGScale:    8,
		Width:       1024,
		Height:      1024,
		Samples:     4,
		Sampler:     "K_DPMPP_2S_ANCESTRAL",
		Steps:       70,
	}
	if params.CFGScale != nil {
		reqBody.CFGScale = *params.CFGScale
	}
	if params.Steps != nil {
		reqBody.Steps = *params.Steps
	}
	if params.BatchSize != nil {
		reqBody.Samples = *params.BatchSize
	}
	if params.Sampler != "" {
		reqBody.Sampler = params.Sampler
	}
	if params.Dimensions != "" {
		w, h, err := workflow.ParseDimensions(params.Dimensions)
		if err != nil {
			return nil, &client.Error{Kind: client.KindConfig, Op: "text-to-image", Err: err}
		}
		reqBody.Width, reqBody.Height = w, h
	}

	body, _ := json.Marshal(reqBody)
	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.host, c.engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &client.Error{Kind: client.KindTransport, Op: "text-to-image", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req, "application/json")

	return c.doGeneration(req, "text-to-image")
}

// ImageToImage regenerates an image under the guidance of prompt and
// denoise: a denoise of 0.35 keeps most of the input, 1.0 discards it.
func (c *Client) ImageToImage(ctx context.Context, image []byte, params *workflow.Parameters) ([]client.Output, error) {
	strength := 0.35
	if params.Denoise != nil {
		strength = *params.Denoise
	}
	samples := 4
	if params.BatchSize != nil {
		samples = *params.BatchSize
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	formFile, err := writer.CreateFormFile("init_image", "init_image.png")
	if err != nil {
		return nil, &client.Error{Kind: client.KindTransport, Op: "image-to-image", Err: err}
	}
	if _, err := formFile.Write(image); err != nil {
		return nil, &client.Error{Kind: client.KindTransport, Op: "image-to-image", Err: err}
	}
	_ = writer.WriteField("image_strength", strconv.FormatFloat(strength, 'f', -1, 64))
	_ = writer.WriteField("init_image_mode", "IMAGE_STRENGTH")
	_ = writer.WriteField("cfg_scale", "7")
	_ = writer.WriteField("samples", strconv.Itoa(samples))
	_ = writer.WriteField("sampler", "K_DPMPP_2S_ANCESTRAL")
	_ = writer.WriteField("steps", "40")
	_ = writer.WriteField("text_prompts[0][text]", params.Prompt)
	writer.Close()

	url := fmt.Sprintf("%s/v1/generation/%s/image-to-image", c.host, c.engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, &client.Error{Kind: client.KindTransport, Op: "image-to-image", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setCommonHeaders(req, "application/json")

	return c.doGeneration(req, "image-to-image")
}

// Upscale enlarges an image to the given width and returns the raw PNG.
func (c *Client) Upscale(ctx context.Context, image []byte, width int) (client.Output, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	formFile, err := writer.CreateFormFile("image", "init_image.png")
	if err != nil {
		return client.Output{}, &client.Error{Kind: client.KindTransport, Op: "upscale", Err: err}
	}
	if _, err := formFile.Write(image); err != nil {
		return client.Output{}, &client.Error{Kind: client.KindTransport, Op: "upscale", Err: err}
	}
	_ = writer.WriteField("width", strconv.Itoa(width))
	writer.Close()

	url := fmt.Sprintf("%s/v1/generation/%s/image-to-image/upscale", c.host, upscaleEngine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return client.Output{}, &client.Error{Kind: client.KindTransport, Op: "upscale", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setCommonHeaders(req, "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return client.Output{}, &client.Error{Kind: client.KindTransport, Op: "upscale", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return client.Output{}, rejectionError("upscale", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return client.Output{}, &client.Error{Kind: client.KindTransport, Op: "upscale", Err: err}
	}
	return client.Output{Kind: client.OutputImage, Filename: "upscaled.png", Data: data}, nil
}

func (c *Client) doGeneration(req *http.Request, op string) ([]client.Output, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &client.Error{Kind: client.KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rejectionError(op, resp)
	}

	var data generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &client.Error{Kind: client.KindProtocol, Op: op, Err: err}
	}
	if len(data.Artifacts) == 0 {
		return nil, &client.Error{Kind: client.KindResult, Op: op, Err: fmt.Errorf("response carried no artifacts")}
	}

	outputs := make([]client.Output, 0, len(data.Artifacts))
	for i, artifact := range data.Artifacts {
		img, err := base64.StdEncoding.DecodeString(artifact.Base64)
		if err != nil {
			return nil, &client.Error{Kind: client.KindProtocol, Op: op, Err: err}
		}
		outputs = append(outputs, client.Output{
			Kind:     client.OutputImage,
			Filename: fmt.Sprintf("%s_%d.png", op, i),
			Data:     img,
		})
	}
	c.log.Debug().Str("op", op).Int("artifacts", len(outputs)).Msg("generation complete")
	return outputs, nil
}

// rejectionError classifies a non-200 response. 4xx means the engine refused
// the request's content (moderation, malformed prompt) and warrants a
// different user-facing message than a service failure.
func rejectionError(op string, resp *http.Response) *client.Error {
	body, _ := io.ReadAll(resp.Body)
	kind := client.KindTransport
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = client.KindContent
	}
	return &client.Error{Kind: kind, Op: op, Err: fmt.Errorf("engine returned %s: %s", resp.Status, body)}
}

func (c *Client) setCommonHeaders(req *http.Request, accept string) {
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
