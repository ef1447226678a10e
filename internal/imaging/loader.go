package imaging

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// ErrInvalidInput reports an image that cannot be processed at all: nil,
// undecodable, or with a zero dimension. It is the only condition that aborts
// the detection pipeline.
var ErrInvalidInput = errors.New("invalid input image")

// Validate checks that img is a usable raster.
func Validate(img image.Image) error {
	if img == nil {
		return errors.Wrap(ErrInvalidInput, "nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return errors.Wrapf(ErrInvalidInput, "zero dimension %dx%d", b.Dx(), b.Dy())
	}
	return nil
}

// Decode reads a PNG, JPEG or GIF image and validates it. Any failure is
// reported as ErrInvalidInput.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", errors.Wrapf(ErrInvalidInput, "decode: %v", err)
	}
	if err := Validate(img); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (image.Image, string, error) {
	return Decode(bytes.NewReader(data))
}

// ImageCache provides thread-safe caching of decoded images to avoid
// redundant disk reads.
//
// Entries expire after the configured TTL so a long-running server does not
// accumulate every rack photo it has ever seen. A TTL of zero keeps entries
// until they are evicted.
//
// # Example Usage
//
//	cache := imaging.NewImageCache(10 * time.Minute)
//	img, err := cache.Load("/path/to/rack.jpg")
//	if err != nil {
//	    return err
//	}
//	cache.Evict("/path/to/rack.jpg") // Optional: free memory
type ImageCache struct {
	images *cache.Cache
}

// NewImageCache creates an empty cache whose entries live for ttl.
func NewImageCache(ttl time.Duration) *ImageCache {
	expiration := ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
	}
	cleanup := ttl
	if cleanup <= 0 {
		cleanup = time.Hour
	}
	return &ImageCache{images: cache.New(expiration, cleanup)}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// The image is cached under the exact path string provided. Decode failures
// and zero-sized images are reported as ErrInvalidInput; a missing file is
// reported as the underlying os error.
func (c *ImageCache) Load(path string) (image.Image, error) {
	if v, ok := c.images.Get(path); ok {
		return v.(image.Image), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", filepath.Base(path))
	}

	c.images.SetDefault(path, img)
	return img, nil
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.images.Delete(path)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.images.Flush()
}

// Len reports the number of cached images, including expired entries that
// have not been cleaned up yet.
func (c *ImageCache) Len() int {
	return c.images.ItemCount()
}

// ImageInfo contains metadata about a loaded image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is "png", "jpeg", "gif", or "unknown", taken from the file
	// extension.
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image into the cache and returns its metadata.
func LoadImageInfo(c *ImageCache, path string) (*ImageInfo, error) {
	img, err := c.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat file")
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		FileSizeBytes: stat.Size(),
	}, nil
}

// DimensionsResult contains the width and height of an image.
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GetDimensions returns the dimensions of an image, loading it into the cache
// if needed.
func GetDimensions(c *ImageCache, path string) (*DimensionsResult, error) {
	img, err := c.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
