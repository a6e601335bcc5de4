package client

import "encoding/json"

// eventMessage is one frame from the engine's event stream. The stream is
// server-scoped, not job-scoped: frames for every connected client's jobs
// arrive interleaved, and correlation happens on prompt id alone.
type eventMessage struct {
	Type string
	Data any
}

func (m *eventMessage) UnmarshalJSON(b []byte) error {
	// unmarshal into an equivalent anonymous shape to avoid recursion
	var temp struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	m.Type = temp.Type

	switch m.Type {
	case "status":
		m.Data = &statusData{}
	case "execution_start":
		m.Data = &executionStartData{}
	case "executing":
		m.Data = &executingData{}
	case "progress":
		m.Data = &progressData{}
	default:
		// frames we have no use for (execution_cached, monitor extensions...)
		m.Data = nil
	}

	if m.Data != nil && len(temp.Data) > 0 {
		if err := json.Unmarshal(temp.Data, m.Data); err != nil {
			return err
		}
	}

	return nil
}

// {"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}
type statusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

// {"type": "execution_start", "data": {"prompt_id": "ed986d60-..."}}
type executionStartData struct {
	PromptID string `json:"prompt_id"`
}

// {"type": "executing", "data": {"node": "12", "prompt_id": "ed986d60-..."}}
// A null node for our prompt id is the job's sole terminal signal.
type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// {"type": "progress", "data": {"value": 1, "max": 20}}
type progressData struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}
