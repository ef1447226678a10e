//go:build ocr

package ocr

import (
	"context"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/logging"
)

// tesseractReader runs gosseract. A gosseract client is not safe for
// concurrent use, so reads are serialized.
type tesseractReader struct {
	cfg    Config
	slots  *SlotParser
	log    *zap.Logger
	mu     sync.Mutex
	client *gosseract.Client
}

// NewReader returns a Tesseract-backed reader.
func NewReader(cfg Config, logger *zap.Logger) (Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ocr config")
	}
	slots, err := NewSlotParser(cfg.SlotPattern)
	if err != nil {
		return nil, err
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Language); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(ErrUnavailable, "set language %q: %v", cfg.Language, err)
	}
	log := logging.OrNop(logger).Named("ocr")
	log.Debug("tesseract ready", zap.String("version", client.Version()), zap.String("language", cfg.Language))
	return &tesseractReader{cfg: cfg, slots: slots, log: log, client: client}, nil
}

func (r *tesseractReader) Read(ctx context.Context, img image.Image, region image.Rectangle) (Result, error) {
	if region.Empty() {
		region = r.cfg.Strip(img.Bounds())
	}
	prepared, err := Prepare(img, region, r.cfg)
	if err != nil {
		return Result{}, err
	}
	data, err := encodePNG(prepared)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, errors.WithStack(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(data); err != nil {
		return Result{}, errors.Wrap(err, "set image")
	}
	text, err := r.client.Text()
	if err != nil {
		return Result{}, errors.Wrap(err, "recognize text")
	}

	res := Result{Text: text, Slot: r.slots.Parse(text), Region: region, Words: []Word{}}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// The text is still usable without word boxes.
		r.log.Debug("word boxes unavailable", zap.Error(err))
		return res, nil
	}
	for _, b := range boxes {
		conf := float64(b.Confidence) / 100
		if b.Word == "" || conf < r.cfg.MinConfidence {
			continue
		}
		res.Words = append(res.Words, Word{
			Text:       b.Word,
			Confidence: conf,
			Bounds:     scaleBack(b.Box, region, r.cfg.Upscale),
		})
	}
	return res, nil
}

func (r *tesseractReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Wrap(r.client.Close(), "close tesseract")
}
