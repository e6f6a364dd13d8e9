package ssllabs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAPIURL  = "https://api.ssllabs.com/api/v3/analyze"
	DefaultTimeout = 60 * time.Second
)

// ClientConfig holds the analyze request parameters.
type ClientConfig struct {
	APIURL             string
	Timeout            time.Duration
	Proxy              string
	Publish            bool
	MaxAgeHours        int
	RootCAs            *x509.CertPool
	InsecureSkipVerify bool
}

// Client calls the SSL Labs analyze endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger logrus.FieldLogger
}

// NewClient builds a client. httpClient may be nil, in which case one is
// built from the proxy and TLS settings in cfg.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger logrus.FieldLogger) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			RootCAs:            cfg.RootCAs,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy url: %w", err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.WithField("component", "ssllabs-client"),
	}, nil
}

// AnalyzeURL returns the request URL for host.
func (c *Client) AnalyzeURL(host string) string {
	publish := "off"
	if c.cfg.Publish {
		publish = "on"
	}
	q := url.Values{}
	q.Set("host", host)
	q.Set("publish", publish)
	q.Set("fromCache", "on")
	q.Set("maxAge", strconv.Itoa(c.cfg.MaxAgeHours))
	q.Set("ignoreMismatch", "on")

	u, _ := url.Parse(c.cfg.APIURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// Analyze requests the assessment of host and returns the raw response body.
// Non-2xx responses are returned as well; the API reports its errors in the body.
func (c *Client) Analyze(ctx context.Context, host string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	target := c.AnalyzeURL(host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.WithField("host", host).Debug("requesting assessment")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"host":   host,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}).Debug("assessment response")
	return body, nil
}
