package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMessageDispatch(t *testing.T) {
	var msg eventMessage

	err := json.Unmarshal([]byte(`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 3}}}}`), &msg)
	require.NoError(t, err)
	status, ok := msg.Data.(*statusData)
	require.True(t, ok)
	assert.Equal(t, 3, status.Status.ExecInfo.QueueRemaining)

	err = json.Unmarshal([]byte(`{"type": "execution_start", "data": {"prompt_id": "abc"}}`), &msg)
	require.NoError(t, err)
	start, ok := msg.Data.(*executionStartData)
	require.True(t, ok)
	assert.Equal(t, "abc", start.PromptID)

	err = json.Unmarshal([]byte(`{"type": "progress", "data": {"value": 4, "max": 20}}`), &msg)
	require.NoError(t, err)
	progress, ok := msg.Data.(*progressData)
	require.True(t, ok)
	assert.Equal(t, 4, progress.Value)
	assert.Equal(t, 20, progress.Max)
}

func TestEventMessageExecutingNode(t *testing.T) {
	var msg eventMessage
	err := json.Unmarshal([]byte(`{"type": "executing", "data": {"node": "12", "prompt_id": "abc"}}`), &msg)
	require.NoError(t, err)
	executing := msg.Data.(*executingData)
	require.NotNil(t, executing.Node)
	assert.Equal(t, "12", *executing.Node)

	// a null node is the terminal signal
	err = json.Unmarshal([]byte(`{"type": "executing", "data": {"node": null, "prompt_id": "abc"}}`), &msg)
	require.NoError(t, err)
	assert.Nil(t, msg.Data.(*executingData).Node)
}

func TestEventMessageIgnoresUnknownTypes(t *testing.T) {
	var msg eventMessage
	err := json.Unmarshal([]byte(`{"type": "crystools.monitor", "data": {"cpu": 93}}`), &msg)
	require.NoError(t, err)
	assert.Nil(t, msg.Data)

	err = json.Unmarshal([]byte(`{"type": "execution_cached", "data": {"nodes": [], "prompt_id": "abc"}}`), &msg)
	require.NoError(t, err)
	assert.Nil(t, msg.Data)
}

func TestKindOf(t *testing.T) {
	err := errorf(KindContent, "generate", "blocked")
	assert.Equal(t, KindContent, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(json.Unmarshal([]byte("x"), &struct{}{})))
	assert.Equal(t, "content", KindContent.String())
}
