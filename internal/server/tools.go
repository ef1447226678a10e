package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func object(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var pathProp = prop("string", "Absolute path to the image file")

// boxArray describes a list of percent boxes as accepted by rolls_reconcile.
var boxArray = map[string]interface{}{
	"type": "array",
	"items": object(map[string]interface{}{
		"id":         prop("string", "Detection ID, kept when given"),
		"x":          prop("number", "Left edge in percent of image width"),
		"y":          prop("number", "Top edge in percent of image height"),
		"width":      prop("number", "Width in percent of image width"),
		"height":     prop("number", "Height in percent of image height"),
		"color":      prop("string", "Palette color label (red, blue, ...)"),
		"confidence": prop("number", "Confidence 0-1, default 1"),
	}, "x", "y", "width", "height"),
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Image helpers
		{
			Name:        "image_load",
			Description: "Load a rack photo and return its dimensions, format and file size. The decoded image is cached for later calls.",
			InputSchema: object(map[string]interface{}{"path": pathProp}, "path"),
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: object(map[string]interface{}{"path": pathProp}, "path"),
		},
		{
			Name:        "image_crop",
			Description: "Crop a pixel region from an image and return it as base64-encoded PNG. Use this to zoom into a single roll while reviewing detections.",
			InputSchema: object(map[string]interface{}{
				"path":  pathProp,
				"x1":    prop("integer", "Left edge X coordinate (0-based)"),
				"y1":    prop("integer", "Top edge Y coordinate (0-based)"),
				"x2":    prop("integer", "Right edge X coordinate (exclusive)"),
				"y2":    prop("integer", "Bottom edge Y coordinate (exclusive)"),
				"scale": prop("number", "Optional scale factor (e.g., 2.0 to double size). Default 1.0"),
			}, "path", "x1", "y1", "x2", "y2"),
		},

		// Detection
		{
			Name: "rolls_detect",
			Description: "Count thread rolls in a rack photo and classify each roll's color. Tries the learned model, then the circle detector, then grid sampling, " +
				"and returns the boxes (percent of image size), color breakdown, winning method and the attempt trace. Results are cached per path.",
			InputSchema: object(map[string]interface{}{
				"path":    pathProp,
				"save":    prop("boolean", "Store the result as a new entry and return its entry_id"),
				"refresh": prop("boolean", "Ignore a cached result for this path"),
			}, "path"),
		},
		{
			Name:        "rolls_classify_color",
			Description: "Classify the color of one box (percent of image size) against the roll palette. Omit the box to classify the whole image.",
			InputSchema: object(map[string]interface{}{
				"path":   pathProp,
				"x":      prop("number", "Left edge in percent of image width"),
				"y":      prop("number", "Top edge in percent of image height"),
				"width":  prop("number", "Width in percent of image width"),
				"height": prop("number", "Height in percent of image height"),
			}, "path"),
		},
		{
			Name:        "rolls_annotate",
			Description: "Draw numbered detection boxes in their roll colors on the photo and return it as base64-encoded PNG.",
			InputSchema: object(map[string]interface{}{
				"path":      pathProp,
				"entry_id":  prop("string", "Draw a stored entry instead of detecting (its corrected boxes when reviewed)"),
				"thickness": prop("integer", "Outline thickness in pixels. Default 2"),
			}),
		},
		{
			Name:        "rolls_read_label",
			Description: "Read the rack label with OCR and extract the slot name (e.g. B-07). Without a region the configured label strip is read.",
			InputSchema: object(map[string]interface{}{
				"path": pathProp,
				"x1":   prop("integer", "Left edge of the label region"),
				"y1":   prop("integer", "Top edge of the label region"),
				"x2":   prop("integer", "Right edge of the label region (exclusive)"),
				"y2":   prop("integer", "Bottom edge of the label region (exclusive)"),
			}, "path"),
		},

		// Review and training data
		{
			Name: "rolls_reconcile",
			Description: "Compare operator-corrected boxes with the AI boxes and classify every change as unchanged, moved, resized, added or deleted. " +
				"With entry_id the stored AI set is used and the corrections are saved; otherwise pass the AI boxes as original.",
			InputSchema: object(map[string]interface{}{
				"entry_id":  prop("string", "Stored entry to reconcile against"),
				"original":  boxArray,
				"corrected": boxArray,
				"editor":    prop("string", "Name of the operator who made the corrections"),
			}, "corrected"),
		},
		{
			Name:        "rolls_export_labels",
			Description: "Export YOLO training labels (class xc yc w h, normalized) for a stored entry or a freshly detected photo.",
			InputSchema: object(map[string]interface{}{
				"path":       pathProp,
				"entry_id":   prop("string", "Stored entry to export (its corrected boxes when reviewed)"),
				"class_mode": prop("string", "single (one thread_roll class) or color (one class per palette color)"),
			}),
		},
		{
			Name:        "rolls_statistics",
			Description: "Summarize stored entries and corrections: AI accuracy, correction counts per type, top editors and daily activity.",
			InputSchema: object(map[string]interface{}{
				"since_days": prop("integer", "Limit daily activity to the last N days. Default all"),
				"top":        prop("integer", "Number of top editors. Default 5"),
			}),
		},
	}
}
