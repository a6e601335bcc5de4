package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "false", r.FormValue("overwrite"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "input.png", header.Filename)
		assert.Equal(t, "fake png bytes", string(data))

		// the server may pick a different name than the one requested
		fmt.Fprint(w, `{"name": "input (1).png", "subfolder": "", "type": "input"}`)
	}))
	t.Cleanup(srv.Close)

	c := New(strings.TrimPrefix(srv.URL, "http://"))
	name, err := c.Upload(context.Background(), strings.NewReader("fake png bytes"), "input.png", false)
	require.NoError(t, err)
	assert.Equal(t, "input (1).png", name)
}

func TestUploadEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(strings.TrimPrefix(srv.URL, "http://"))
	_, err := c.Upload(context.Background(), strings.NewReader("x"), "input.png", true)
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestNodeInputChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/object_info/CheckpointLoaderSimple", r.URL.Path)
		fmt.Fprint(w, `{"CheckpointLoaderSimple": {"input": {"required": {
			"ckpt_name": [["sd_xl_base_1.0.safetensors", "dreamshaper_8.safetensors"], {}]
		}}}}`)
	}))
	t.Cleanup(srv.Close)

	c := New(strings.TrimPrefix(srv.URL, "http://"))
	models, err := c.ModelNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sd_xl_base_1.0.safetensors", "dreamshaper_8.safetensors"}, models)
}

func TestNodeInputChoicesMissingClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	c := New(strings.TrimPrefix(srv.URL, "http://"))
	_, err := c.VoiceNames(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindResult, KindOf(err))
}
