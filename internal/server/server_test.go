package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/palette"
)

// countingDetector finds one roll in any image and counts its calls.
type countingDetector struct {
	calls atomic.Int32
}

func (d *countingDetector) Method() detection.Method { return detection.MethodCircular }

func (d *countingDetector) Detect(_ context.Context, img image.Image) (detection.Set, error) {
	d.calls.Add(1)
	b := img.Bounds()
	det := detection.New(detection.Box{X: 10, Y: 10, Width: 20, Height: 20}, 0.9, detection.MethodCircular)
	return detection.NewSet(detection.MethodCircular, b.Dx(), b.Dy(), []detection.Detection{det}), nil
}

func newCascade(t *testing.T, detectors ...cascade.Detector) *cascade.Cascade {
	t.Helper()
	classifier, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)

	if len(detectors) == 0 {
		circular, err := detection.NewCircleDetector(detection.DefaultCircleConfig(), nil)
		require.NoError(t, err)
		grid, err := detection.NewGridDetector(detection.DefaultGridConfig(), classifier, nil)
		require.NoError(t, err)
		detectors = []cascade.Detector{circular, grid}
	}
	strategies := make([]cascade.Strategy, 0, len(detectors))
	for _, d := range detectors {
		strategies = append(strategies, cascade.Geometric(d))
	}

	c, err := cascade.New(cascade.DefaultConfig(), classifier, strategies)
	require.NoError(t, err)
	return c
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := New(DefaultConfig(), newCascade(t), opts...)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.cache)
	assert.NotNil(t, s.results)
	assert.NotNil(t, s.classifier)
	assert.NotNil(t, s.reconciler)
	assert.Equal(t, export.ClassSingle, s.classMode)
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = New(Config{ImageTTL: -1}, newCascade(t))
	assert.Error(t, err)

	_, err = New(DefaultConfig(), newCascade(t), WithClassMode("rainbow"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	err := Config{ImageTTL: -1, ResultTTL: -1, MaxRequestBytes: 10}.Validate()
	require.Error(t, err)
	for _, want := range []string{"image_ttl", "result_ttl", "max_request_bytes"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{"string id", `{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`, "test-1", "tools/list"},
		{"number id", `{"jsonrpc":"2.0","id":42,"method":"ping"}`, float64(42), "ping"},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"initialize"}`, nil, "initialize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			require.NoError(t, json.Unmarshal([]byte(tt.json), &req))
			assert.Equal(t, tt.wantID, req.ID)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, "2.0", req.JSONRPC)
		})
	}
}

func TestServe_Session(t *testing.T) {
	s := newTestServer(t)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"p","method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, s.Serve(t.Context(), strings.NewReader(input), &out))

	var responses []MCPResponse
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp MCPResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	require.Len(t, responses, 4)

	hello := responses[0].Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", hello["protocolVersion"])
	assert.Equal(t, "rollcount", hello["serverInfo"].(map[string]interface{})["name"])

	tools := responses[1].Result.(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, tools, len(GetToolDefinitions()))

	assert.Equal(t, "p", responses[2].ID)
	assert.Nil(t, responses[2].Error)

	require.NotNil(t, responses[3].Error)
	assert.Equal(t, codeMethodNotFound, responses[3].Error.Code)
	assert.Contains(t, responses[3].Error.Message, "resources/list")
}

func TestServe_Cancelled(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var out strings.Builder
	err := s.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}
