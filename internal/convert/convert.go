// Package convert decides when a downloaded artifact needs format
// conversion before import, and hands the actual transcoding off to an
// opaque Converter. The transcoder itself is out of scope here; this
// package only owns the decision of whether to call it and how to treat
// its result.
package convert

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// CatalogFormat is the declared format of a downloaded catalog artifact.
type CatalogFormat string

const (
	FormatEncryptedA CatalogFormat = "encrypted-A"
	FormatEncryptedB CatalogFormat = "encrypted-B"
	FormatPlain      CatalogFormat = "plain"
)

// encryptedExtensions maps file extensions the catalog provider uses for
// its two DRM-wrapped audio formats onto the CatalogFormat they imply when
// a download's declared format is unknown.
var encryptedExtensions = map[string]CatalogFormat{
	".aax":  FormatEncryptedA,
	".aaxc": FormatEncryptedB,
}

// ErrVoucherRequired is returned when an encrypted-B artifact has no
// voucher file; this is a permanent failure, not a retryable one.
var ErrVoucherRequired = errors.New("encrypted-B format requires a voucher to convert")

// RequiresConversion reports whether an artifact at path, with declared
// format, needs to pass through a Converter before import. Plain audio
// formats (mp3, m4b, flac, ...) never require it.
func RequiresConversion(path string, declared CatalogFormat) bool {
	if declared == FormatEncryptedA || declared == FormatEncryptedB {
		return true
	}
	if declared != "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	_, encrypted := encryptedExtensions[ext]
	return encrypted
}

// FormatFromExtension infers a CatalogFormat from a file's extension when
// the queue item has no declared format recorded.
func FormatFromExtension(path string) CatalogFormat {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := encryptedExtensions[ext]; ok {
		return f
	}
	return FormatPlain
}

// Request describes one conversion job.
type Request struct {
	SourcePath  string
	VoucherPath string
	Format      CatalogFormat
	OutputDir   string
	OutputName  string
}

// Result is what a successful conversion produces.
type Result struct {
	OutputPath string
}

// Converter is the opaque transcoding collaborator.
type Converter interface {
	Convert(ctx context.Context, req Request) (Result, error)
}

// Validate checks req against the voucher rule before a Converter is ever
// invoked: an encrypted-B source with no voucher path is a permanent
// failure, since no retry will produce a voucher that doesn't exist.
func Validate(req Request) error {
	if req.Format == FormatEncryptedB && req.VoucherPath == "" {
		return ErrVoucherRequired
	}
	return nil
}
