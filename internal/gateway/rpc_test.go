// ABOUTME: Tests for JSON-RPC wire helpers
// ABOUTME: Covers metadata injection into params._meta across message shapes

package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMeta(t *testing.T, raw json.RawMessage) (map[string]any, map[string]any) {
	t.Helper()
	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	params, ok := msg["params"].(map[string]any)
	require.True(t, ok, "params must be an object")
	meta, ok := params["_meta"].(map[string]any)
	require.True(t, ok, "_meta must be an object")
	return params, meta
}

func TestAttachRequestMetadata_NoParams(t *testing.T) {
	in := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	out, err := attachRequestMetadata(in, "mcpr_tok", "proj-1")
	require.NoError(t, err)

	_, meta := decodeMeta(t, out)
	assert.Equal(t, "mcpr_tok", meta["token"])
	assert.Equal(t, "proj-1", meta["projectId"])
}

func TestAttachRequestMetadata_PreservesExistingParams(t *testing.T) {
	in := json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search","arguments":{"q":"go"}}}`)

	out, err := attachRequestMetadata(in, "t", "p")
	require.NoError(t, err)

	params, meta := decodeMeta(t, out)
	assert.Equal(t, "search", params["name"])
	args, ok := params["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "go", args["q"])
	assert.Equal(t, "t", meta["token"])
}

func TestAttachRequestMetadata_MergesExistingMeta(t *testing.T) {
	in := json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"ping","params":{"_meta":{"traceId":"abc"}}}`)

	out, err := attachRequestMetadata(in, "t", "")
	require.NoError(t, err)

	_, meta := decodeMeta(t, out)
	assert.Equal(t, "abc", meta["traceId"])
	assert.Equal(t, "t", meta["token"])
	assert.Equal(t, "", meta["projectId"])
}

func TestAttachRequestMetadata_OverwritesInjectedKeys(t *testing.T) {
	// Client-supplied token/projectId in _meta must not survive injection
	in := json.RawMessage(`{"jsonrpc":"2.0","id":4,"method":"ping","params":{"_meta":{"token":"forged","projectId":"forged"}}}`)

	out, err := attachRequestMetadata(in, "real-token", "real-project")
	require.NoError(t, err)

	_, meta := decodeMeta(t, out)
	assert.Equal(t, "real-token", meta["token"])
	assert.Equal(t, "real-project", meta["projectId"])
}

func TestAttachRequestMetadata_RejectsNonObject(t *testing.T) {
	_, err := attachRequestMetadata(json.RawMessage(`[1,2,3]`), "t", "p")
	assert.Error(t, err)

	_, err = attachRequestMetadata(json.RawMessage(`not json`), "t", "p")
	assert.Error(t, err)
}

func TestAttachRequestMetadata_OtherFieldsUntouched(t *testing.T) {
	in := json.RawMessage(`{"jsonrpc":"2.0","id":"req-9","method":"tools/call","params":{}}`)

	out, err := attachRequestMetadata(in, "t", "p")
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, "2.0", msg["jsonrpc"])
	assert.Equal(t, "req-9", msg["id"])
	assert.Equal(t, "tools/call", msg["method"])
}
