package catalogworker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// HTTPDownloader is the default Downloader: it fetches an item's audio and
// voucher from a catalog provider's authenticated HTTP API. Providers that
// speak a different protocol implement Downloader directly instead.
type HTTPDownloader struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	log        *logging.Logger
}

// NewHTTPDownloader builds an HTTPDownloader against baseURL using a
// bearer authToken for every request.
func NewHTTPDownloader(baseURL, authToken string, timeout time.Duration, log *logging.Logger) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &HTTPDownloader{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Download fetches catalogID's audio artifact (encrypted-A or encrypted-B
// per formatPref, with an in-process fallback to encrypted-B when
// allowFallback permits it) and, for encrypted-B, its voucher. It checks
// cancel between the two requests and while streaming the body.
func (d *HTTPDownloader) Download(ctx context.Context, catalogID, outputDir, filename string, formatPref FormatPref, quality string, allowFallback bool, progress ProgressFunc, cancel *CancelToken) (Result, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("catalog download: create output dir: %w", err)
	}

	format := formatPref
	if format == FormatEncryptedAWithFallbackToB {
		format = FormatEncryptedA
	}

	audioPath := filepath.Join(outputDir, filename)
	err := d.downloadArtifact(ctx, catalogID, string(format), quality, audioPath, progress, cancel)
	if err != nil && formatPref == FormatEncryptedAWithFallbackToB && allowFallback {
		d.log.WithField("catalog_id", catalogID).WithError(err).Warn("encrypted-A download failed, falling back to encrypted-B")
		format = FormatEncryptedB
		err = d.downloadArtifact(ctx, catalogID, string(format), quality, audioPath, progress, cancel)
	}
	if err != nil {
		return Result{}, err
	}
	if cancel.Cancelled() {
		return Result{}, nil
	}

	result := Result{AudioPath: audioPath, Format: format}
	if RequiresVoucher(format) {
		voucherPath := audioPath + ".voucher"
		if err := d.downloadVoucher(ctx, catalogID, voucherPath); err != nil {
			return Result{}, fmt.Errorf("catalog download: voucher: %w", err)
		}
		result.VoucherPath = voucherPath
	}
	return result, nil
}

func (d *HTTPDownloader) downloadArtifact(ctx context.Context, catalogID, format, quality, destPath string, progress ProgressFunc, cancel *CancelToken) error {
	url := fmt.Sprintf("%s/catalog/%s/download?format=%s&quality=%s", d.baseURL, catalogID, format, quality)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("catalog download: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.authToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog download: provider returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("catalog download: create output file: %w", err)
	}
	defer out.Close()

	total := resp.ContentLength
	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-cancel.Done():
			return nil
		default:
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("catalog download: write output: %w", writeErr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total, "downloading")
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("catalog download: read body: %w", readErr)
		}
	}
	return nil
}

func (d *HTTPDownloader) downloadVoucher(ctx context.Context, catalogID, destPath string) error {
	url := fmt.Sprintf("%s/catalog/%s/voucher", d.baseURL, catalogID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.authToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return os.WriteFile(destPath, body, 0o600)
}
