package stability

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/client"
	"github.com/genflow/genflow/workflow"
)

func artifactsResponse(payloads ...string) string {
	type artifact struct {
		Base64 string `json:"base64"`
	}
	var arts []artifact
	for _, p := range payloads {
		arts = append(arts, artifact{Base64: base64.StdEncoding.EncodeToString([]byte(p))})
	}
	data, _ := json.Marshal(map[string]any{"artifacts": arts})
	return string(data)
}

func TestTextToImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generation/test-engine/text-to-image", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts := req["text_prompts"].([]any)
		assert.Equal(t, "a cat", prompts[0].(map[string]any)["text"])
		assert.Equal(t, float64(512), req["width"])
		assert.Equal(t, float64(768), req["height"])
		assert.Equal(t, float64(2), req["samples"])
		assert.Equal(t, float64(30), req["steps"])

		fmt.Fprint(w, artifactsResponse("img-one", "img-two"))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-engine", "sk-test")
	steps, batch := 30, 2
	outputs, err := c.TextToImage(context.Background(), &workflow.Parameters{
		Prompt:     "a cat",
		Dimensions: "512x768",
		Steps:      &steps,
		BatchSize:  &batch,
	})
	require.NoError(t, err)

	require.Len(t, outputs, 2)
	assert.Equal(t, client.OutputImage, outputs[0].Kind)
	assert.Equal(t, "img-one", string(outputs[0].Data))
	assert.Equal(t, "img-two", string(outputs[1].Data))
}

func TestTextToImageContentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"name": "invalid_prompts", "message": "prompt violates the content policy"}`)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-engine", "sk-test")
	_, err := c.TextToImage(context.Background(), &workflow.Parameters{Prompt: "something awful"})
	require.Error(t, err)

	// a moderation refusal must be distinguishable from a service failure
	assert.Equal(t, client.KindContent, client.KindOf(err))
	assert.Contains(t, err.Error(), "content policy")
}

func TestTextToImageServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-engine", "sk-test")
	_, err := c.TextToImage(context.Background(), &workflow.Parameters{Prompt: "a cat"})
	require.Error(t, err)
	assert.Equal(t, client.KindTransport, client.KindOf(err))
}

func TestImageToImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generation/test-engine/image-to-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.35", r.FormValue("image_strength"))
		assert.Equal(t, "IMAGE_STRENGTH", r.FormValue("init_image_mode"))
		assert.Equal(t, "a dog", r.FormValue("text_prompts[0][text]"))

		file, _, err := r.FormFile("init_image")
		require.NoError(t, err)
		defer file.Close()

		fmt.Fprint(w, artifactsResponse("alt"))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-engine", "sk-test")
	outputs, err := c.ImageToImage(context.Background(), []byte("png"), &workflow.Parameters{Prompt: "a dog"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "alt", string(outputs[0].Data))
}

func TestUpscale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generation/esrgan-v1-x2plus/image-to-image/upscale", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "2048", r.FormValue("width"))
		w.Write([]byte("big png"))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-engine", "sk-test")
	out, err := c.Upscale(context.Background(), []byte("png"), 2048)
	require.NoError(t, err)
	assert.Equal(t, client.OutputImage, out.Kind)
	assert.Equal(t, "big png", string(out.Data))
}
