// Package scraper reads order history from the arbiko.pl dealer portal.
//
// The portal is a set of server-rendered PHP pages behind a cookie login.
// A fetch logs in, posts the history search form for a date window, follows
// every order link and reads the order's number, date and line items. Each
// line's OEM number comes from a separate catalog search.
//
// The pages carry no stable ids or classes, so parsing is positional. The
// positions follow the portal's layout and are covered by fixtures in
// testdata.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultBaseURL is the portal root. Page paths are relative to it.
	DefaultBaseURL = "http://arbiko.pl/arbos/"

	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	loginPath   = "loguj1.php3"
	historyPath = "search_zam.php3?ref=zamowienia"
	searchPath  = "search_of.php3?ref=oferta"
)

// ErrLogin is returned when the portal refuses the credentials.
var ErrLogin = errors.New("arbiko login failed")

// Config holds the portal credentials and connection settings.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the portal. It keeps the session cookie between calls and
// is not safe for concurrent use.
type Client struct {
	cfg      Config
	http     *resty.Client
	base     *url.URL
	logger   *slog.Logger
	loggedIn bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. Empty config fields take the package defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("scraper: invalid base url %q: %w", cfg.BaseURL, err)
	}

	c := &Client{
		cfg:    cfg,
		base:   base,
		logger: slog.Default(),
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", cfg.UserAgent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login posts the credentials. It reports whether the portal accepted them,
// which it signals by setting the cookie logged=yes. A non-nil error means
// the request itself failed.
func (c *Client) Login(ctx context.Context) (bool, error) {
	_, err := c.post(ctx, loginPath, map[string]string{
		"user":   c.cfg.Username,
		"passwd": c.cfg.Password,
		"Submit": "Loguj >>",
	})
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	c.loggedIn = false
	for _, cookie := range c.http.GetClient().Jar.Cookies(c.base) {
		if cookie.Name == "logged" && cookie.Value == "yes" {
			c.loggedIn = true
			break
		}
	}
	c.logger.Debug("portal login", "user", c.cfg.Username, "ok", c.loggedIn)
	return c.loggedIn, nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	ok, err := c.Login(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLogin
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form map[string]string) (*goquery.Document, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
	if err != nil {
		return nil, err
	}
	return document(resp)
}

func (c *Client) get(ctx context.Context, path string) (*goquery.Document, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, err
	}
	return document(resp)
}

// document parses a response body, decoding the portal's legacy charset
// to UTF-8.
func document(resp *resty.Response) (*goquery.Document, error) {
	if resp.IsError() {
		return nil, fmt.Errorf("%s %s: status %d", resp.Request.Method, resp.Request.URL, resp.StatusCode())
	}
	body, err := charset.NewReader(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", resp.Request.URL, err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.Request.URL, err)
	}
	return doc, nil
}
