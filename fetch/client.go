package fetch

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/eventpix/media-archiver/common"
	"github.com/eventpix/media-archiver/common/rcontext"
	"github.com/eventpix/media-archiver/common/version"
	"github.com/eventpix/media-archiver/errcache"
	"github.com/eventpix/media-archiver/metrics"
	"github.com/eventpix/media-archiver/util/readers"
	"github.com/eventpix/media-archiver/util/stream_util"
	"github.com/prometheus/client_golang/prometheus"
)

type DownloadedMedia struct {
	Contents        io.ReadCloser
	DesiredFilename string
	ContentType     string
	ContentLength   int64
}

type Client struct {
	hc        *http.Client
	userAgent string
	maxBytes  int64
	errs      *errcache.ErrCache
}

func NewClient(ctx rcontext.RequestContext) *Client {
	ua := ctx.Config.Fetch.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return &Client{
		hc:        &http.Client{},
		userAgent: ua,
		maxBytes:  ctx.Config.Fetch.MaxSizeBytes,
		errs:      errcache.FetchErrors,
	}
}

// DownloadMedia issues a plain GET against the given URL. The URLs handed to
// the archiver are presigned or proxied, so no extra headers are attached
// beyond the user agent. The request inherits whatever deadline is on ctx.
func (c *Client) DownloadMedia(url string, ctx rcontext.RequestContext) (*DownloadedMedia, error) {
	if cachedErr := c.errs.Get(url); cachedErr != nil {
		ctx.Log.Warn("Returning cached error for media download failure")
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "cached"}).Inc()
		return nil, cachedErr
	}

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		// Deadline and cancellation errors are session-scoped; caching them
		// would poison the URL for later sessions.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.errs.Set(url, err)
		}
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "network"}).Inc()
		return nil, err
	}

	if resp.StatusCode == 404 {
		ctx.Log.Info("Remote media not found")
		stream_util.DumpAndCloseStream(resp.Body)

		err = common.ErrMediaNotFound
		c.errs.Set(url, err)
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "not_found"}).Inc()
		return nil, err
	} else if resp.StatusCode != 200 {
		ctx.Log.Info("Unknown error fetching remote media; received status code " + strconv.Itoa(resp.StatusCode))
		stream_util.DumpAndCloseStream(resp.Body)

		err = errors.New("could not fetch remote media")
		c.errs.Set(url, err)
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "status"}).Inc()
		return nil, err
	}

	var contentLength int64 = 0
	if resp.Header.Get("Content-Length") != "" {
		contentLength, err = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
		if err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
	} else {
		ctx.Log.Warn("Missing Content-Length header on response - continuing anyway")
	}

	if contentLength > 0 && c.maxBytes > 0 && contentLength > c.maxBytes {
		ctx.Log.Warn("Attempted to download media that was too large")
		// Not drained on purpose - no point pulling gigabytes just to
		// recycle the connection.
		_ = resp.Body.Close()

		err = common.ErrMediaTooLarge
		c.errs.Set(url, err)
		metrics.MediaFetchFailures.With(prometheus.Labels{"reason": "too_large"}).Inc()
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		ctx.Log.Warn("Remote media has no content type; Assuming application/octet-stream")
		contentType = "application/octet-stream" // binary
	}

	contents := resp.Body
	if c.maxBytes > 0 {
		// Content-Length can lie (or be absent) - enforce the cap on the
		// stream itself as well.
		contents = readers.LimitReaderWithOverrunError(contents, c.maxBytes)
	}

	media := &DownloadedMedia{
		ContentType:   contentType,
		Contents:      contents,
		ContentLength: contentLength,
		// DesiredFilename (calculated below)
	}

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		media.DesiredFilename = params["filename"]
	}

	metrics.MediaFetched.Inc()
	return media, nil
}
