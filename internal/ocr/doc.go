// Package ocr reads rack slot labels from photos with Tesseract.
//
// Racks carry a printed slot label (for example "B-07") that ties a photo
// to a storage location. The reader crops the label strip, prepares it for
// recognition (grayscale, contrast, upscaling) and runs Tesseract over it;
// ParseSlot then pulls the slot name out of the recognized text.
//
// # Prerequisites
//
// Tesseract is compiled in with the ocr build tag and needs the native
// library and language data:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Without the tag every Read reports ErrUnavailable.
package ocr
