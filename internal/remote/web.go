package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/imroc/req/v3"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/probe"
)

// DefaultLinkSelector matches the dataset file anchors on the TLC page.
const DefaultLinkSelector = "a[href*='trip-data']"

type WebConfig struct {
	// PageURL is the dataset page that publishes the file links.
	PageURL string
	// BaseURL is the CDN distribution the files are served from.
	BaseURL string
	// LinkSelector is the CSS selector for dataset anchors.
	LinkSelector string
}

// WebSource discovers fragments from the public dataset website. Candidate
// URLs are synthesized from the fixed naming template; metadata resolution
// defers to the HTTP prober. Probe results are cached per URL so one run
// never probes the rate-limited CDN twice for the same fragment.
type WebSource struct {
	client *req.Client
	prober *probe.Prober
	cfg    WebConfig
	log    *slog.Logger

	mu    sync.RWMutex
	infos map[string]*probe.RemoteFileInfo // url -> probe result
}

func NewWebSource(client *req.Client, cfg WebConfig, log *slog.Logger) *WebSource {
	if log == nil {
		log = slog.Default()
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = DefaultLinkSelector
	}
	return &WebSource{
		client: client,
		prober: probe.New(client, log),
		cfg:    cfg,
		log:    log,
		infos:  make(map[string]*probe.RemoteFileInfo),
	}
}

func (w *WebSource) Backend() dataset.Backend { return dataset.BackendWeb }

// Discover scrapes the dataset page to confirm it still publishes trip-data
// links, then synthesizes one candidate URL per requested month from the
// naming template.
func (w *WebSource) Discover(ctx context.Context, criteria dataset.Criteria) ([]dataset.Fragment, error) {
	links, err := w.scrapeLinks(ctx)
	if err != nil {
		return nil, &DiscoveryError{Backend: dataset.BackendWeb, Err: err}
	}
	w.log.Info("dataset page scraped", "url", w.cfg.PageURL, "links", len(links))

	fragments := make([]dataset.Fragment, 0, len(criteria.Months))
	for _, month := range criteria.Months {
		url := w.CandidateURL(criteria.RecordType, criteria.Year, month)
		frag, err := dataset.NewFragment(url, dataset.BackendWeb)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
	}
	return fragments, nil
}

// CandidateURL builds the fixed-template URL for one fragment.
func (w *WebSource) CandidateURL(recordType string, year, month int) string {
	return fmt.Sprintf("%s/%s_tripdata_%d-%02d.parquet", w.cfg.BaseURL, recordType, year, month)
}

func (w *WebSource) scrapeLinks(ctx context.Context) ([]string, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(w.cfg.PageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsErrorState() {
		return nil, fmt.Errorf("fetch %q: unexpected status %s", w.cfg.PageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", w.cfg.PageURL, err)
	}

	var links []string
	doc.Find(w.cfg.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if href = strings.TrimSpace(href); href != "" {
			links = append(links, href)
		}
	})
	if len(links) == 0 {
		return nil, fmt.Errorf("no anchors matched %q on %s", w.cfg.LinkSelector, w.cfg.PageURL)
	}

	return links, nil
}

func (w *WebSource) Info(ctx context.Context, f dataset.Fragment) (*probe.RemoteFileInfo, error) {
	w.mu.RLock()
	info, ok := w.infos[f.Path]
	w.mu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := w.prober.Probe(ctx, f.Path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.infos[f.Path] = info
	w.mu.Unlock()
	return info, nil
}

func (w *WebSource) Download(ctx context.Context, f dataset.Fragment, dest string) error {
	return DownloadURL(ctx, w.client, f.Path, dest)
}

func (w *WebSource) OpenRange(ctx context.Context, f dataset.Fragment) (io.ReaderAt, int64, error) {
	info, err := w.Info(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if !info.SizeKnown {
		return nil, 0, fmt.Errorf("remote: size unknown for %q", f.Path)
	}
	return &httpReaderAt{ctx: ctx, client: w.client, url: info.ResolvedURL}, info.Size, nil
}

// httpReaderAt serves ReadAt calls with ranged GET requests.
type httpReaderAt struct {
	ctx    context.Context
	client *req.Client
	url    string
}

func (r *httpReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rng := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	resp, err := r.client.R().
		SetContext(r.ctx).
		SetHeader("Range", rng).
		DisableAutoReadResponse().
		Get(r.url)
	if err != nil {
		return 0, fmt.Errorf("remote: ranged get %q %s: %w", r.url, rng, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("remote: %q does not support range requests (status %s)", r.url, resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

var _ Source = (*WebSource)(nil)
