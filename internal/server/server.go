package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/cascade"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/ocr"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/reconcile"
	"github.com/ironsheep/rollcount/internal/store"
)

// JSON-RPC error codes used by the server.
const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeToolFailed     = -32000
)

// Config tunes the server's caches and request limits.
type Config struct {
	// ImageTTL is how long decoded images stay cached.
	ImageTTL time.Duration `mapstructure:"image_ttl"`

	// ResultTTL is how long a detection result is reused for the same path.
	ResultTTL time.Duration `mapstructure:"result_ttl"`

	// MaxRequestBytes bounds one JSON-RPC line.
	MaxRequestBytes int `mapstructure:"max_request_bytes"`
}

// DefaultConfig caches images for ten minutes and results for five.
func DefaultConfig() Config {
	return Config{
		ImageTTL:        10 * time.Minute,
		ResultTTL:       300 * time.Second,
		MaxRequestBytes: 1024 * 1024,
	}
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.ImageTTL < 0 {
		err = multierr.Append(err, errors.Errorf("image_ttl must not be negative, got %v", c.ImageTTL))
	}
	if c.ResultTTL < 0 {
		err = multierr.Append(err, errors.Errorf("result_ttl must not be negative, got %v", c.ResultTTL))
	}
	if c.MaxRequestBytes < 64*1024 {
		err = multierr.Append(err, errors.Errorf("max_request_bytes must be at least 65536, got %d", c.MaxRequestBytes))
	}
	return err
}

// Server handles MCP protocol communication
type Server struct {
	cfg        Config
	cache      *imaging.ImageCache
	results    *cache.Cache
	cascade    *cascade.Cascade
	classifier *palette.Classifier
	reconciler *reconcile.Reconciler
	store      *store.Store
	reader     ocr.Reader
	classMode  export.ClassMode
	log        *zap.Logger
	now        func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithStore persists detections and corrections. Without a store the
// entry-based tools report an error.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithReconciler replaces the default reconciler.
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(s *Server) { s.reconciler = r }
}

// WithClassifier replaces the default color classifier.
func WithClassifier(c *palette.Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

// WithOCR sets the rack label reader.
func WithOCR(r ocr.Reader) Option {
	return func(s *Server) { s.reader = r }
}

// WithClassMode sets the default class mode of exported labels.
func WithClassMode(m export.ClassMode) Option {
	return func(s *Server) { s.classMode = m }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = logging.OrNop(l).Named("server") }
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server around the detection cascade.
func New(cfg Config, pipeline *cascade.Cascade, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server config")
	}
	if pipeline == nil {
		return nil, errors.New("server needs a detection cascade")
	}
	s := &Server{
		cfg:       cfg,
		cache:     imaging.NewImageCache(cfg.ImageTTL),
		results:   newResultCache(cfg.ResultTTL),
		cascade:   pipeline,
		classMode: export.ClassSingle,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.classifier == nil {
		c, err := palette.New(palette.DefaultConfig())
		if err != nil {
			return nil, err
		}
		s.classifier = c
	}
	if s.reconciler == nil {
		r, err := reconcile.New(reconcile.DefaultConfig(), s.log)
		if err != nil {
			return nil, err
		}
		s.reconciler = r
	}
	if !s.classMode.Valid() {
		return nil, errors.Errorf("unknown class mode %q", s.classMode)
	}
	return s, nil
}

func newResultCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		// Nothing is ever stored; see cachedDetect.
		return cache.New(cache.NoExpiration, 0)
	}
	return cache.New(ttl, 2*ttl)
}

// Run serves requests from stdin until it is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes one response
// per line to w. Malformed lines are logged and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, s.cfg.MaxRequestBytes)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("failed to parse request", zap.Error(err))
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				return errors.Wrap(err, "encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanner error")
	}
	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": GetToolDefinitions()},
		}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "rollcount",
				"version": Version,
			},
		},
	}
}

// Version is reported in the initialize handshake. The CLI overrides it
// with its build version.
var Version = "dev"
