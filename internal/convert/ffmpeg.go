package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// FFmpegConverter transcodes a DRM-wrapped artifact into a plain audio
// container by shelling out to ffmpeg. It handles both supported formats:
// encrypted-A takes an activation-bytes argument, encrypted-B takes a
// voucher file path. Neither secret is logged.
type FFmpegConverter struct {
	binaryPath      string
	activationBytes string
	log             *logging.Logger
}

// NewFFmpegConverter builds a Converter around the ffmpeg binary at
// binaryPath ("ffmpeg" resolves against PATH). activationBytes is the
// encrypted-A decryption key; it is ignored for encrypted-B sources, which
// carry their own voucher.
func NewFFmpegConverter(binaryPath, activationBytes string, log *logging.Logger) *FFmpegConverter {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpegConverter{binaryPath: binaryPath, activationBytes: activationBytes, log: log}
}

// Convert runs ffmpeg against req and returns the output file's path.
// Callers must have already run Validate(req) so an encrypted-B source is
// guaranteed to carry a voucher by this point.
func (c *FFmpegConverter) Convert(ctx context.Context, req Request) (Result, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("convert: create output dir: %w", err)
	}
	outputPath := filepath.Join(req.OutputDir, req.OutputName)

	args := []string{"-y"}
	switch req.Format {
	case FormatEncryptedA:
		args = append(args, "-activation_bytes", c.activationBytes)
	case FormatEncryptedB:
		args = append(args, "-audible_key_path", req.VoucherPath)
	}
	args = append(args, "-i", req.SourcePath, "-c", "copy", outputPath)

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		c.log.WithField("item", req.SourcePath).WithError(err).Error("ffmpeg conversion failed")
		return Result{}, fmt.Errorf("convert: ffmpeg: %w: %s", err, truncate(output, 2048))
	}
	return Result{OutputPath: outputPath}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
