package parl

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EmpoweredVote/mp-sync/internal/logging"
	"github.com/EmpoweredVote/mp-sync/internal/metrics"
)

const component = "parl"

// Options configures a Client. Host may carry a port.
type Options struct {
	Scheme        string
	Host          string
	Path          string
	QueryString   string
	DirectoryPath string

	// OutputDir, when set, receives a copy of every fetched page.
	OutputDir  string
	FilePrefix string

	Timeout           time.Duration
	RequestsPerSecond float64
	// MaxRetries is 0 for a single attempt.
	MaxRetries int
}

// Term selects a parliament and session on the directory listing.
type Term struct {
	Parliament int
	Session    int
}

// Page is a fetched member profile.
type Page struct {
	MemberID  string
	Body      []byte
	AuditPath string
}

// Client fetches member profile pages from the public directory.
type Client struct {
	http      *resty.Client
	opts      Options
	log       *zap.Logger
	outputDir string
}

// NewClient builds a Client. The output directory is created if missing.
func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("parl: host is required")
	}
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}
	if opts.FilePrefix == "" {
		opts.FilePrefix = "mp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	client := resty.New()
	client.SetBaseURL(opts.Scheme + "://" + opts.Host)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("user-agent", "mp-sync/1.0 (+https://empowered.vote)")

	if opts.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	if opts.MaxRetries > 0 {
		// resty backs off exponentially with jitter between attempts.
		client.SetRetryCount(opts.MaxRetries).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(res *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500
			})
	}

	return &Client{
		http:      client,
		opts:      opts,
		log:       log.Named(component),
		outputDir: opts.OutputDir,
	}, nil
}

// ProfileURL returns the request URI for one member, relative to the host.
func (c *Client) ProfileURL(memberID string) string {
	return requestURI(c.opts.Path, c.opts.QueryString, "Key="+url.QueryEscape(memberID))
}

// OutputFile returns the audit path for a member page.
func (c *Client) OutputFile(memberID string) string {
	safe := strings.NewReplacer("/", "_", `\`, "_").Replace(memberID)
	return filepath.Join(c.outputDir, c.opts.FilePrefix+"_"+safe+".html")
}

// Fetch retrieves one member page. Any status other than 200 is a *FetchError.
func (c *Client) Fetch(ctx context.Context, memberID string) (*Page, error) {
	ctx, span := tracer.Start(ctx, "parl.Fetch", trace.WithAttributes(attribute.String("member_id", memberID)))
	defer span.End()

	uri := c.ProfileURL(memberID)
	start := time.Now()
	logging.LogRequest(c.log, component, http.MethodGet, uri, zap.String("member_id", memberID))

	res, err := c.http.R().SetContext(ctx).Get(uri)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchTotal.WithLabelValues("transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		logging.LogError(c.log, component, "fetch", err, zap.String("member_id", memberID))
		return nil, &FetchError{MemberID: memberID, URL: uri, Err: err}
	}

	logging.LogResponse(c.log, component, res.StatusCode(), time.Since(start), len(res.Body()))

	if res.StatusCode() != http.StatusOK {
		metrics.FetchTotal.WithLabelValues("status").Inc()
		span.SetStatus(codes.Error, res.Status())
		c.log.Error("fetch returned non-200",
			zap.String("member_id", memberID),
			zap.Int("status", res.StatusCode()),
			zap.String("message", res.Status()),
		)
		return nil, &FetchError{MemberID: memberID, URL: uri, StatusCode: res.StatusCode(), Status: res.Status()}
	}
	metrics.FetchTotal.WithLabelValues("ok").Inc()

	page := &Page{MemberID: memberID, Body: res.Body()}
	if c.outputDir != "" {
		path := c.OutputFile(memberID)
		if err := os.WriteFile(path, page.Body, 0o644); err != nil {
			c.log.Warn("failed to write audit page", zap.String("path", path), zap.Error(err))
		} else {
			page.AuditPath = path
		}
	}

	return page, nil
}

// ListMemberIDs reads the directory listing for a term and returns every
// member id it links to.
func (c *Client) ListMemberIDs(ctx context.Context, term Term) ([]string, error) {
	ctx, span := tracer.Start(ctx, "parl.ListMemberIDs")
	defer span.End()

	params := url.Values{}
	if term.Parliament > 0 {
		params.Set("Parliament", strconv.Itoa(term.Parliament))
	}
	if term.Session > 0 {
		params.Set("Session", strconv.Itoa(term.Session))
	}
	uri := requestURI(c.opts.DirectoryPath, c.opts.QueryString, params.Encode())
	logging.LogRequest(c.log, component, http.MethodGet, uri)

	res, err := c.http.R().SetContext(ctx).Get(uri)
	if err != nil {
		span.RecordError(err)
		return nil, &FetchError{URL: uri, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, res.Status())
		return nil, &FetchError{URL: uri, StatusCode: res.StatusCode(), Status: res.Status()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	ids := ExtractMemberIDs(doc, c.opts.Path)
	c.log.Info("directory listing read", zap.Int("members", len(ids)), zap.Int("parliament", term.Parliament), zap.Int("session", term.Session))
	return ids, nil
}

func requestURI(path string, query ...string) string {
	var parts []string
	for _, q := range query {
		if q = strings.Trim(q, "&?"); q != "" {
			parts = append(parts, q)
		}
	}
	if len(parts) == 0 {
		return path
	}
	return path + "?" + strings.Join(parts, "&")
}
