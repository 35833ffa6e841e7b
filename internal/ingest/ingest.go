// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest turns user-selected screenshot files into inline data URIs
// for the inference gateway, optionally downscaling and re-encoding them
// first.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/pdiddy/recap-engine/pkg/types"
)

const (
	defaultMaxDimension = 1920
	defaultQuality      = 80

	// bareMIME is assumed for payloads submitted without a data URI prefix.
	bareMIME = "image/jpeg"
)

// ErrNoImages is returned when no input file is an image.
var ErrNoImages = errors.New("no image files")

// File is one user-selected file.
type File struct {
	Name string

	// MIMEType is the declared content type. When empty it is sniffed
	// from Data.
	MIMEType string

	Data []byte
}

// ReadFiles loads files from disk. The MIME type comes from the file
// extension, falling back to content sniffing.
func ReadFiles(paths []string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		files = append(files, File{Name: filepath.Base(p), MIMEType: mt, Data: data})
	}
	return files, nil
}

// mimeOf returns the declared type without parameters, or the sniffed type.
func (f File) mimeOf() string {
	mt := f.MIMEType
	if mt == "" {
		mt = http.DetectContentType(f.Data)
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

// Collect keeps only image files, preserving order. Non-images are dropped
// without error.
func Collect(files []File) []File {
	var out []File
	for _, f := range files {
		if strings.HasPrefix(f.mimeOf(), "image/") {
			out = append(out, f)
		}
	}
	return out
}

// withDefaults fills zero-valued compression settings.
func withDefaults(cfg types.IngestConfig) types.IngestConfig {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = defaultMaxDimension
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = defaultMaxDimension
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaultQuality
	}
	return cfg
}

// fitWithin scales w×h down to fit maxW×maxH keeping the aspect ratio.
// Images already within bounds are unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(int(float64(w)*ratio+0.5), 1)
	nh := max(int(float64(h)*ratio+0.5), 1)
	return nw, nh
}

// Compress decodes an image, scales it to fit the configured bounds, and
// re-encodes it as JPEG. The re-encoded bytes are returned only if they are
// smaller than data; otherwise data and its original type are returned
// unchanged.
func Compress(data []byte, mimeType string, cfg types.IngestConfig) ([]byte, string, error) {
	cfg = withDefaults(cfg)

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), cfg.MaxWidth, cfg.MaxHeight)

	// JPEG has no alpha channel; flatten onto white.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: cfg.Quality}); err != nil {
		return nil, "", fmt.Errorf("encoding jpeg: %w", err)
	}

	if buf.Len() >= len(data) {
		return data, mimeType, nil
	}
	return buf.Bytes(), "image/jpeg", nil
}

// Encode converts files to data URIs in input order. Non-image files are
// skipped. When cfg.Compress is set each image is compressed first; a
// compression failure keeps the original bytes and is only logged.
func Encode(files []File, cfg types.IngestConfig, logger *log.Logger) ([]string, error) {
	if logger == nil {
		logger = log.Default()
	}

	images := Collect(files)
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	out := make([]string, 0, len(images))
	for _, f := range images {
		data, mt := f.Data, f.mimeOf()
		if cfg.Compress {
			cdata, cmt, err := Compress(f.Data, mt, cfg)
			if err != nil {
				logger.Warn("compression failed, sending original", "file", f.Name, "err", err)
			} else {
				if len(cdata) < len(data) {
					logger.Debug("compressed", "file", f.Name, "from", len(data), "to", len(cdata))
				}
				data, mt = cdata, cmt
			}
		}
		out = append(out, EncodeDataURI(mt, data))
	}
	return out, nil
}

// EncodeDataURI returns "data:<mime>;base64,<payload>".
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Normalize accepts either a bare base64 payload or a data URI and returns
// a data URI. Bare payloads are assumed to be JPEG.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		return s
	}
	return "data:" + bareMIME + ";base64," + s
}

// Decode parses a base64 data URI back into its MIME type and bytes.
func Decode(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI has no payload separator")
	}
	mt, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding base64 payload: %w", err)
	}
	return mt, data, nil
}
