package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/workflow"
)

// fakeEngine simulates the remote engine: a shared event stream plus the
// queue, history and view endpoints.
type fakeEngine struct {
	srv      *httptest.Server
	frames   []string // pushed to every event-stream connection after upgrade
	history  string
	queueErr string
}

func (f *fakeEngine) start(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("clientId") == "" {
			t.Error("event stream dialed without clientId")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range f.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// hold the connection open until the client hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt   map[string]any `json:"prompt"`
			ClientID string         `json:"client_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("malformed queue request: %v", err)
		}
		if req.ClientID == "" {
			t.Error("queue request carried no client id")
		}
		if f.queueErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error": {"type": "%s", "message": "rejected"}, "node_errors": []}`, f.queueErr)
			return
		}
		fmt.Fprint(w, `{"prompt_id": "job-x", "number": 1}`)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.history)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "bytes:%s", r.URL.Query().Get("filename"))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func frame(typ, data string) string {
	return fmt.Sprintf(`{"type": "%s", "data": %s}`, typ, data)
}

func testGraph() workflow.Graph {
	return workflow.Graph{
		"1": &workflow.Node{ClassType: "KSampler", Inputs: map[string]any{"seed": 42}},
	}
}

const interleavedHistory = `{"job-x": {"outputs": {
	"7": {"images": [
		{"filename": "genflow_final_output_00001_.png", "subfolder": "", "type": "output"},
		{"filename": "genflow_preview_00001_.png", "subfolder": "", "type": "temp"}
	]},
	"8": {"gifs": [{"filename": "genflow_final_output_00001_.webp", "subfolder": "", "type": "output"}]},
	"9": {
		"clips": [{"filename": "tune_final_output_00001_.flac", "subfolder": "audio", "type": "output"}],
		"videos": [{"filename": "tune_final_output_00001_.mp4", "subfolder": "audio", "type": "output"}]
	},
	"10": {"text": ["a cat, highly detailed, studio lighting"]}
}}}`

func TestRunCompletesOnMatchingTerminalOnly(t *testing.T) {
	engine := &fakeEngine{
		frames: []string{
			frame("status", `{"status": {"exec_info": {"queue_remaining": 2}}}`),
			// another client's job on the shared stream, terminal included
			frame("execution_start", `{"prompt_id": "job-y"}`),
			frame("executing", `{"node": "3", "prompt_id": "job-y"}`),
			frame("executing", `{"node": null, "prompt_id": "job-y"}`),
			// malformed frames must be skipped, never fatal
			"not json at all",
			frame("executing", `{"node": true}`),
			// our job
			frame("execution_start", `{"prompt_id": "job-x"}`),
			frame("progress", `{"value": 10, "max": 20}`),
			frame("executing", `{"node": "5", "prompt_id": "job-x"}`),
			frame("executing", `{"node": null, "prompt_id": "job-x"}`),
		},
		history: interleavedHistory,
	}
	addr := engine.start(t)

	var queueDepths []int
	var started []string
	var progressed bool
	c := New(addr, WithCallbacks(Callbacks{
		QueueCountChanged: func(remaining int) { queueDepths = append(queueDepths, remaining) },
		Started:           func(promptID string) { started = append(started, promptID) },
		Progress:          func(value, max int) { progressed = true },
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := c.Run(ctx, testGraph())
	require.NoError(t, err)

	// the preview artifact is filtered out, everything else classified
	require.Len(t, result.Outputs, 4)
	kinds := map[OutputKind][]string{}
	for _, out := range result.Outputs {
		assert.Contains(t, out.Filename, "final_output")
		assert.Equal(t, "bytes:"+out.Filename, string(out.Data))
		kinds[out.Kind] = append(kinds[out.Kind], out.Filename)
	}
	assert.Len(t, kinds[OutputImage], 1)
	assert.Len(t, kinds[OutputAnimation], 1)
	assert.Len(t, kinds[OutputAudio], 1)
	assert.Len(t, kinds[OutputVideo], 1)

	assert.Equal(t, "a cat, highly detailed, studio lighting", result.EnhancedPrompt)

	assert.Equal(t, []int{2}, queueDepths)
	assert.Equal(t, []string{"job-x"}, started)
	assert.True(t, progressed)
}

func TestRunIgnoresForeignTerminal(t *testing.T) {
	// only another job's frames arrive; ours never completes, so the
	// caller's deadline is the sole way out
	engine := &fakeEngine{
		frames: []string{
			frame("execution_start", `{"prompt_id": "job-y"}`),
			frame("executing", `{"node": null, "prompt_id": "job-y"}`),
		},
		history: interleavedHistory,
	}
	addr := engine.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := New(addr).Run(ctx, testGraph())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestRunNoFinalOutputsIsResultError(t *testing.T) {
	engine := &fakeEngine{
		frames: []string{
			frame("execution_start", `{"prompt_id": "job-x"}`),
			frame("executing", `{"node": null, "prompt_id": "job-x"}`),
		},
		history: `{"job-x": {"outputs": {
			"7": {"images": [{"filename": "genflow_preview_00001_.png", "subfolder": "", "type": "temp"}]}
		}}}`,
	}
	addr := engine.start(t)

	_, err := New(addr).Run(context.Background(), testGraph())
	require.Error(t, err)
	assert.Equal(t, KindResult, KindOf(err))
}

func TestRunQueueRejectionIsConfigError(t *testing.T) {
	engine := &fakeEngine{queueErr: "prompt_no_outputs"}
	addr := engine.start(t)

	_, err := New(addr).Run(context.Background(), testGraph())
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
	assert.Contains(t, err.Error(), "prompt_no_outputs")
}

func TestRunMissingHistoryIsResultError(t *testing.T) {
	engine := &fakeEngine{
		frames: []string{
			frame("executing", `{"node": null, "prompt_id": "job-x"}`),
		},
		history: `{}`,
	}
	addr := engine.start(t)

	_, err := New(addr).Run(context.Background(), testGraph())
	require.Error(t, err)
	assert.Equal(t, KindResult, KindOf(err))
}

func TestClientIDIsUniquePerClient(t *testing.T) {
	a, b := New("localhost:8188"), New("localhost:8188")
	assert.NotEmpty(t, a.ClientID())
	assert.NotEqual(t, a.ClientID(), b.ClientID())
}
