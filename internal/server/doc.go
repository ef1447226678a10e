// Package server implements the MCP (Model Context Protocol) server that
// exposes roll counting as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Image helpers:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//   - image_crop: Extract rectangular region
//
// Detection:
//   - rolls_detect: Count and color-classify rolls through the cascade
//   - rolls_classify_color: Classify one box against the palette
//   - rolls_annotate: Draw numbered boxes in their roll colors
//   - rolls_read_label: OCR the rack label for its slot name
//
// Review and training data:
//   - rolls_reconcile: Diff corrected boxes against the AI boxes
//   - rolls_export_labels: YOLO label lines for an entry or photo
//   - rolls_statistics: Accuracy and correction activity
//
// # Caching
//
// Decoded images and detection results are cached by path, each with its
// own TTL. Saving a result always creates a new entry.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure), -32602 (bad arguments or
//     unknown tool) or -32601 (unknown method)
//   - message: Human-readable error description
//   - data: The Go error string
package server
