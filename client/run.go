package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/genflow/genflow/workflow"
)

// Run submits a bound graph and blocks until the engine finishes it, then
// fetches the manifest and downloads every final output. The connection is
// closed unconditionally before returning, success or failure.
//
// The event stream carries no failure signal: a job that errors server-side
// may simply never reach its terminal event. Run therefore blocks until ctx
// is cancelled, which callers needing bounded latency must arrange; on
// cancellation the job fails with a transport error but the engine still
// runs it to completion.
func (c *Client) Run(ctx context.Context, graph workflow.Graph) (*Result, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	defer c.Close()

	promptID, err := c.queuePrompt(ctx, graph)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("prompt_id", promptID).Msg("prompt queued")

	if err := c.awaitCompletion(ctx, promptID); err != nil {
		return nil, err
	}

	return c.collectOutputs(ctx, promptID)
}

// awaitCompletion consumes the event stream until this job's terminal
// signal: an executing frame with a null node and our prompt id. Frames for
// other prompt ids on the shared stream are ignored, and a malformed frame
// is logged and skipped, never fatal.
func (c *Client) awaitCompletion(ctx context.Context, promptID string) error {
	ws := c.ws

	// unblock the read loop when the caller gives up
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-watchDone:
		}
	}()

	var executing string
	for {
		frame, err := ws.next()
		if err != nil {
			if ctx.Err() != nil {
				return wrapErr(KindTransport, "await", ctx.Err())
			}
			return wrapErr(KindTransport, "await", err)
		}

		var msg eventMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.log.Warn().Err(err).Msg("skipping malformed event frame")
			continue
		}

		switch data := msg.Data.(type) {
		case *statusData:
			if c.callbacks.QueueCountChanged != nil {
				c.callbacks.QueueCountChanged(data.Status.ExecInfo.QueueRemaining)
			}
		case *executionStartData:
			executing = data.PromptID
			if executing == promptID && c.callbacks.Started != nil {
				c.callbacks.Started(promptID)
			}
		case *executingData:
			if data.Node == nil && data.PromptID == promptID {
				c.log.Debug().Str("prompt_id", promptID).Msg("job finished")
				return nil
			}
		case *progressData:
			if executing == promptID && c.callbacks.Progress != nil {
				c.callbacks.Progress(data.Value, data.Max)
			}
		}
	}
}

// collectOutputs scans the job's manifest, keeps entries carrying the
// final-output marker, downloads them and classifies each by the manifest
// key it was found under.
func (c *Client) collectOutputs(ctx context.Context, promptID string) (*Result, error) {
	entry, err := c.history(ctx, promptID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for nodeID, out := range entry.Outputs {
		// Enhanced prompt: last write wins. Node iteration order is
		// unspecified, which only matters if a workflow defines more than
		// one text output node; none do today.
		for _, text := range out.Text {
			res.EnhancedPrompt = text
		}

		groups := []struct {
			kind OutputKind
			refs []FileRef
		}{
			{OutputImage, out.Images},
			{OutputAnimation, out.Gifs},
			{OutputAudio, out.Clips},
			{OutputVideo, out.Videos},
		}
		for _, group := range groups {
			for _, ref := range group.refs {
				if !strings.Contains(ref.Filename, finalOutputMarker) {
					// intermediate artifact, e.g. a base-model pass
					continue
				}
				data, err := c.fetchFile(ctx, ref)
				if err != nil {
					return nil, err
				}
				c.log.Debug().Str("node", nodeID).Str("filename", ref.Filename).
					Stringer("kind", group.kind).Msg("collected output")
				res.Outputs = append(res.Outputs, Output{
					Kind:     group.kind,
					Filename: ref.Filename,
					Data:     data,
				})
			}
		}
	}

	if len(res.Outputs) == 0 {
		// an empty success is indistinguishable from a silent engine bug
		return nil, errorf(KindResult, "collect", "job %s produced no final outputs", promptID)
	}
	return res, nil
}
