package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io/fs"
	"net/http"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	apperrors "imgshare-bot/internal/errors"
)

// DefaultMaxPixels bounds the decoded bitmap, roughly 200 MB as RGBA.
const DefaultMaxPixels = 50_000_000

// Processor prepares images for upload: bounded resize and JPEG re-encode.
// Re-encoding drops EXIF and other metadata.
type Processor struct {
	enabled      bool
	maxDimension int
	maxPixels    int
	jpegQuality  int
	artifactDir  string
}

// NewProcessor creates a new image processor
func NewProcessor(enabled bool, maxDimension, jpegQuality int, artifactDir string) *Processor {
	return &Processor{
		enabled:      enabled,
		maxDimension: maxDimension,
		maxPixels:    DefaultMaxPixels,
		jpegQuality:  jpegQuality,
		artifactDir:  artifactDir,
	}
}

// WithMaxPixels sets the largest width*height Process will decode.
func (p *Processor) WithMaxPixels(n int) *Processor {
	if n > 0 {
		p.maxPixels = n
	}
	return p
}

// Result is the image ready for upload
type Result struct {
	Data         []byte
	ContentType  string
	Filename     string
	Width        int
	Height       int
	OriginalSize int
}

// Process transforms data when enabled and returns the bytes to upload.
// With the transform disabled the input is passed through unchanged.
func (p *Processor) Process(data []byte) (*Result, error) {
	if !p.enabled {
		ct := http.DetectContentType(data)
		return &Result{
			Data:         data,
			ContentType:  ct,
			Filename:     "image" + extensionFor(ct),
			OriginalSize: len(data),
		}, nil
	}

	// the header is enough to size the bitmap; refuse before allocating it
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(p.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", apperrors.ErrTransformFailed, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = p.fit(img)

	// Encode as JPEG
	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: p.jpegQuality}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := img.Bounds()
	return &Result{
		Data:         buf.Bytes(),
		ContentType:  "image/jpeg",
		Filename:     "image.jpg",
		Width:        b.Dx(),
		Height:       b.Dy(),
		OriginalSize: len(data),
	}, nil
}

// fit scales img down so neither side exceeds maxDimension.
func (p *Processor) fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if p.maxDimension <= 0 || (w <= p.maxDimension && h <= p.maxDimension) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = p.maxDimension
		nh = max(1, h*p.maxDimension/w)
	} else {
		nh = p.maxDimension
		nw = max(1, w*p.maxDimension/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// WriteArtifact stores data as a temp file owned by the caller.
func (p *Processor) WriteArtifact(data []byte) (string, error) {
	if p.artifactDir != "" {
		if err := os.MkdirAll(p.artifactDir, 0o700); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}
	}

	f, err := os.CreateTemp(p.artifactDir, "upload-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return f.Name(), nil
}

// ReadArtifact loads an artifact previously written by WriteArtifact.
func ReadArtifact(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	ct := http.DetectContentType(data)
	return &Result{
		Data:         data,
		ContentType:  ct,
		Filename:     "image" + extensionFor(ct),
		OriginalSize: len(data),
	}, nil
}

// RemoveArtifact deletes path. A missing file is not an error.
func RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
