package server

import (
	"context"
	"encoding/json"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/ocr"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/reconcile"
	"github.com/ironsheep/rollcount/internal/store"
)

// ErrNoStore is returned by tools that need persistence when the server
// runs without a store.
var ErrNoStore = errors.New("no store configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "rolls_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// paramsError marks a malformed or incomplete tool call, reported as
// JSON-RPC invalid params instead of a tool failure.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{err: errors.Errorf(format, args...)}
}

// decodeArgs unmarshals tool arguments; missing arguments decode as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &paramsError{err: errors.Wrap(err, "invalid arguments")}
	}
	return nil
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Bad arguments and unknown tools return code -32602, every other tool
// failure code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Debug("tool failed", zap.String("tool", params.Name), zap.Error(err))
		var pe *paramsError
		if errors.As(err, &pe) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}
	s.log.Debug("tool done", zap.String("tool", params.Name), zap.Duration("elapsed", time.Since(start)))

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Image helpers
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)
	case "image_crop":
		return s.handleImageCrop(args)

	// Detection
	case "rolls_detect":
		return s.handleRollsDetect(ctx, args)
	case "rolls_classify_color":
		return s.handleRollsClassifyColor(args)
	case "rolls_annotate":
		return s.handleRollsAnnotate(ctx, args)
	case "rolls_read_label":
		return s.handleRollsReadLabel(ctx, args)

	// Review and training data
	case "rolls_reconcile":
		return s.handleRollsReconcile(ctx, args)
	case "rolls_export_labels":
		return s.handleRollsExportLabels(ctx, args)
	case "rolls_statistics":
		return s.handleRollsStatistics(ctx, args)

	default:
		return nil, invalidParams("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	resp := &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
		},
	}
	if data != "" {
		resp.Error.Data = data
	}
	return resp
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Image helpers ===

type pathArgs struct {
	Path string `json:"path"`
}

func (a pathArgs) check() error {
	if a.Path == "" {
		return invalidParams("path is required")
	}
	return nil
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

type imageCropArgs struct {
	pathArgs
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleImageCrop(args json.RawMessage) (interface{}, error) {
	var a imageCropArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, a.X1, a.Y1, a.X2, a.Y2, a.Scale)
}

// === Detection ===

type detectArgs struct {
	pathArgs

	// Save stores the result as a new entry.
	Save bool `json:"save"`

	// Refresh ignores a cached result.
	Refresh bool `json:"refresh"`
}

type detectResult struct {
	EntryID    string                `json:"entry_id,omitempty"`
	Cached     bool                  `json:"cached"`
	Method     detection.Method      `json:"method"`
	Count      int                   `json:"count"`
	Breakdown  map[palette.Label]int `json:"breakdown"`
	DurationMS float64               `json:"duration_ms"`
	Detections []detection.Detection `json:"detections"`
	Attempts   []cascade.Attempt     `json:"attempts"`
}

// detect runs the cascade on the image at path, reusing a result cached
// for the same path unless refresh is set.
func (s *Server) detect(ctx context.Context, path string, refresh bool) (cascade.Result, bool, error) {
	if !refresh {
		if v, ok := s.results.Get(path); ok {
			return v.(cascade.Result), true, nil
		}
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return cascade.Result{}, false, err
	}
	res, err := s.cascade.Run(ctx, img)
	if err != nil {
		return cascade.Result{}, false, err
	}
	if s.cfg.ResultTTL > 0 {
		s.results.SetDefault(path, res)
	}
	return res, false, nil
}

func (s *Server) handleRollsDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	res, cached, err := s.detect(ctx, a.Path, a.Refresh)
	if err != nil {
		return nil, err
	}
	out := detectResult{
		Cached:     cached,
		Method:     res.Set.Method,
		Count:      res.Set.Count,
		Breakdown:  res.Set.Breakdown,
		DurationMS: float64(res.Set.Duration) / float64(time.Millisecond),
		Detections: res.Set.Detections,
		Attempts:   res.Attempts,
	}

	if a.Save {
		if s.store == nil {
			return nil, ErrNoStore
		}
		entry, err := s.store.SaveDetection(ctx, filepath.Base(a.Path), a.Path, res.Set)
		if err != nil {
			return nil, err
		}
		out.EntryID = entry.ID
	}
	return out, nil
}

type classifyArgs struct {
	pathArgs
	detection.Box
}

type classifyResult struct {
	Box detection.Box `json:"box"`
	palette.Result
}

func (s *Server) handleRollsClassifyColor(args json.RawMessage) (interface{}, error) {
	var a classifyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if a.Box == (detection.Box{}) {
		a.Box = detection.Box{Width: 100, Height: 100}
	}
	if !a.Box.Valid() || !a.Box.Contained() {
		return nil, invalidParams("box %+v is not inside the image", a.Box)
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	r := a.Box.Pixels(b.Dx(), b.Dy()).Add(b.Min)
	return classifyResult{Box: a.Box, Result: s.classifier.Describe(img, r)}, nil
}

type annotateArgs struct {
	pathArgs

	// EntryID draws a stored entry (its corrected set when there is one)
	// instead of detecting.
	EntryID   string `json:"entry_id"`
	Thickness int    `json:"thickness"`
}

func (s *Server) handleRollsAnnotate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a annotateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Thickness <= 0 {
		a.Thickness = 2
	}

	var set detection.Set
	switch {
	case a.EntryID != "":
		entry, current, err := s.currentSet(ctx, a.EntryID)
		if err != nil {
			return nil, err
		}
		if a.Path == "" {
			a.Path = entry.ImagePath
		}
		set = current
	case a.Path != "":
		res, _, err := s.detect(ctx, a.Path, false)
		if err != nil {
			return nil, err
		}
		set = res.Set
	default:
		return nil, invalidParams("path or entry_id is required")
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.AnnotateBase64(img, set.Overlays(img.Bounds()), a.Thickness)
}

type readLabelArgs struct {
	pathArgs
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (s *Server) handleRollsReadLabel(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a readLabelArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if s.reader == nil {
		return nil, ocr.ErrUnavailable
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	// An empty region reads the configured label strip.
	var region image.Rectangle
	if a.X2 > a.X1 && a.Y2 > a.Y1 {
		region = image.Rect(a.X1, a.Y1, a.X2, a.Y2)
	}
	return s.reader.Read(ctx, img, region)
}

// === Review and training data ===

type boxArg struct {
	ID         string   `json:"id,omitempty"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Color      string   `json:"color,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// manualSet turns operator boxes into a set. Boxes keep their IDs when
// given; unknown colors become Unknown.
func manualSet(boxes []boxArg, method detection.Method, width, height int) detection.Set {
	dets := lo.Map(boxes, func(b boxArg, _ int) detection.Detection {
		conf := 1.0
		if b.Confidence != nil {
			conf = *b.Confidence
		}
		d := detection.New(detection.Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}, conf, method)
		if b.ID != "" {
			d.ID = b.ID
		}
		label := palette.Label(strings.ToLower(b.Color))
		if !label.Valid() {
			label = palette.Unknown
		}
		return d.WithColor(label)
	})
	return detection.NewSet(method, width, height, dets)
}

type reconcileArgs struct {
	// EntryID reconciles against the stored AI set and saves the result.
	EntryID string `json:"entry_id"`

	// Original is the AI set when no entry is given.
	Original  []boxArg `json:"original"`
	Corrected []boxArg `json:"corrected"`
	Editor    string   `json:"editor"`
}

type reconcileResult struct {
	EntryID string `json:"entry_id,omitempty"`
	reconcile.Result
}

func (s *Server) handleRollsReconcile(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a reconcileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Editor == "" {
		a.Editor = "unknown"
	}

	if a.EntryID == "" {
		if a.Original == nil {
			return nil, invalidParams("entry_id or original is required")
		}
		original := manualSet(a.Original, detection.MethodManual, 0, 0)
		corrected := manualSet(a.Corrected, detection.MethodManual, 0, 0)
		return reconcileResult{Result: s.reconciler.Reconcile(original, corrected, a.Editor, s.now())}, nil
	}

	if s.store == nil {
		return nil, ErrNoStore
	}
	original, err := s.store.OriginalSet(ctx, a.EntryID)
	if err != nil {
		return nil, err
	}
	corrected := manualSet(a.Corrected, detection.MethodManual, original.ImageWidth, original.ImageHeight)
	res := s.reconciler.Reconcile(original, corrected, a.Editor, s.now())
	if err := s.store.SaveCorrection(ctx, a.EntryID, corrected, res); err != nil {
		return nil, err
	}
	return reconcileResult{EntryID: a.EntryID, Result: res}, nil
}

// currentSet returns an entry with its corrected set, or its AI set when it
// was never reviewed.
func (s *Server) currentSet(ctx context.Context, id string) (store.Entry, detection.Set, error) {
	if s.store == nil {
		return store.Entry{}, detection.Set{}, ErrNoStore
	}
	entry, err := s.store.Entry(ctx, id)
	if err != nil {
		return store.Entry{}, detection.Set{}, err
	}
	set, ok, err := s.store.CorrectedSet(ctx, id)
	if err != nil {
		return store.Entry{}, detection.Set{}, err
	}
	if !ok {
		if set, err = s.store.OriginalSet(ctx, id); err != nil {
			return store.Entry{}, detection.Set{}, err
		}
	}
	return entry, set, nil
}

type exportArgs struct {
	pathArgs
	EntryID   string           `json:"entry_id"`
	ClassMode export.ClassMode `json:"class_mode"`
}

type exportResult struct {
	Labels     string           `json:"labels"`
	Count      int              `json:"count"`
	ClassMode  export.ClassMode `json:"class_mode"`
	ClassNames []string         `json:"class_names"`
}

func (s *Server) handleRollsExportLabels(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a exportArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ClassMode == "" {
		a.ClassMode = s.classMode
	}
	if !a.ClassMode.Valid() {
		return nil, invalidParams("unknown class mode %q", a.ClassMode)
	}

	var set detection.Set
	switch {
	case a.EntryID != "":
		_, current, err := s.currentSet(ctx, a.EntryID)
		if err != nil {
			return nil, err
		}
		set = current
	case a.Path != "":
		res, _, err := s.detect(ctx, a.Path, false)
		if err != nil {
			return nil, err
		}
		set = res.Set
	default:
		return nil, invalidParams("path or entry_id is required")
	}

	return exportResult{
		Labels:     export.Labels(set, a.ClassMode),
		Count:      set.Count,
		ClassMode:  a.ClassMode,
		ClassNames: a.ClassMode.Names(),
	}, nil
}

type statisticsArgs struct {
	// SinceDays limits the daily activity to the last N days; 0 means all.
	SinceDays int `json:"since_days"`
	Top       int `json:"top"`
}

func (s *Server) handleRollsStatistics(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a statisticsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.SinceDays < 0 {
		return nil, invalidParams("since_days must not be negative")
	}
	if a.Top <= 0 {
		a.Top = 5
	}
	if s.store == nil {
		return nil, ErrNoStore
	}

	var since time.Time
	if a.SinceDays > 0 {
		since = s.now().AddDate(0, 0, -a.SinceDays)
	}
	return s.store.Statistics(ctx, since, a.Top)
}
