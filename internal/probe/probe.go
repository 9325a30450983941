// Package probe resolves metadata for remote files over HTTP without
// downloading payloads. It copes with servers that answer HEAD and GET
// inconsistently by probing with HEAD first and falling back to GET.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// Small bodies are drained so the connection can be reused; anything larger
// is cut off by closing the body.
const maxDrainBytes = 64 << 10

// NotFoundError means both the HEAD and GET probes failed for a URL.
// Terminal for that single URL, not for the run.
type NotFoundError struct {
	URL string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("probe: %q not found: %v", e.URL, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// RemoteFileInfo holds everything a single probe could learn about a URL.
// Size and ModifiedAt are optional: SizeKnown=false and a zero ModifiedAt
// mean "unknown", never "empty" or "epoch".
type RemoteFileInfo struct {
	Size        int64
	SizeKnown   bool
	MimeType    string
	ModifiedAt  time.Time
	ETag        string
	ContentMD5  string
	Digest      string
	ResolvedURL string
}

type Prober struct {
	client *req.Client
	log    *slog.Logger
}

func New(client *req.Client, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{client: client, log: log}
}

// Probe resolves remote file info with a HEAD-then-GET fallback.
// HEAD failures are logged, not propagated; the GET fallback runs whenever
// HEAD produced no usable size. If the GET also fails, the probe fails with
// NotFoundError wrapping the underlying cause.
func (p *Prober) Probe(ctx context.Context, url string) (*RemoteFileInfo, error) {
	headInfo, headErr := p.fileInfo(ctx, url, http.MethodHead)
	if headErr == nil && headInfo.SizeKnown {
		return headInfo, nil
	}
	if headErr != nil {
		p.log.Debug("head probe failed, falling back to get", "url", url, "error", headErr)
	} else {
		p.log.Debug("head probe gave no usable size, falling back to get", "url", url)
	}

	getInfo, getErr := p.fileInfo(ctx, url, http.MethodGet)
	if getErr != nil {
		return nil, &NotFoundError{URL: url, Err: getErr}
	}

	if headErr == nil {
		fillMissing(getInfo, headInfo)
	}
	return getInfo, nil
}

// fileInfo issues a single metadata request. Accept-Encoding is forced to
// identity so length headers stay trustworthy; redirects are followed.
// Transport retries are disabled: the GET fallback is the probe's only
// second attempt.
func (p *Prober) fileInfo(ctx context.Context, url, method string) (*RemoteFileInfo, error) {
	r := p.client.R().
		SetContext(ctx).
		SetHeader("Accept-Encoding", "identity").
		SetRetryCount(0).
		DisableAutoReadResponse()

	var (
		resp *req.Response
		err  error
	)
	switch method {
	case http.MethodHead:
		resp, err = r.Head(url)
	case http.MethodGet:
		resp, err = r.Get(url)
	default:
		return nil, fmt.Errorf("probe: unsupported method %q", method)
	}
	if err != nil {
		return nil, err
	}
	defer drainBody(resp)

	if resp.IsErrorState() {
		return nil, fmt.Errorf("probe: %s %q: unexpected status %s", method, url, resp.Status)
	}

	return parseInfo(resp), nil
}

// parseInfo applies the size extraction policy to a successful response:
// Content-Length is trusted only with identity (or absent) Content-Encoding,
// then the total of a Content-Range header, otherwise size stays unknown.
func parseInfo(resp *req.Response) *RemoteFileInfo {
	h := resp.Header
	info := &RemoteFileInfo{
		ResolvedURL: resp.Response.Request.URL.String(),
	}

	enc := h.Get("Content-Encoding")
	if cl := h.Get("Content-Length"); cl != "" && (enc == "" || enc == "identity") {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.Size = size
			info.SizeKnown = true
		}
	}
	if !info.SizeKnown {
		if total, ok := contentRangeTotal(h.Get("Content-Range")); ok {
			info.Size = total
			info.SizeKnown = true
		}
	}

	if ct := h.Get("Content-Type"); ct != "" {
		mimeType, _, _ := strings.Cut(ct, ";")
		info.MimeType = strings.TrimSpace(mimeType)
	}

	if lm := h.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.ModifiedAt = t
		}
	}

	// Checksum hints are copied verbatim, never computed or verified here.
	info.ETag = h.Get("ETag")
	info.ContentMD5 = h.Get("Content-MD5")
	info.Digest = h.Get("Digest")

	return info
}

// contentRangeTotal parses the total length out of a Content-Range header
// ("bytes 0-99/500" -> 500). A "*" total means the server does not know.
func contentRangeTotal(cr string) (int64, bool) {
	idx := strings.LastIndexByte(cr, '/')
	if idx < 0 {
		return 0, false
	}
	total := strings.TrimSpace(cr[idx+1:])
	if total == "" || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// fillMissing copies fields known from the HEAD response into the GET result
// when the GET did not provide them.
func fillMissing(dst, src *RemoteFileInfo) {
	if !dst.SizeKnown && src.SizeKnown {
		dst.Size = src.Size
		dst.SizeKnown = true
	}
	if dst.MimeType == "" {
		dst.MimeType = src.MimeType
	}
	if dst.ModifiedAt.IsZero() {
		dst.ModifiedAt = src.ModifiedAt
	}
	if dst.ETag == "" {
		dst.ETag = src.ETag
	}
	if dst.ContentMD5 == "" {
		dst.ContentMD5 = src.ContentMD5
	}
	if dst.Digest == "" {
		dst.Digest = src.Digest
	}
}

func drainBody(resp *req.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes)) //nolint:errcheck
	resp.Body.Close()
}
