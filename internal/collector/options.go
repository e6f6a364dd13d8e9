package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	corev2 "github.com/sensu/sensu-go/api/core/v2"
	"github.com/sensu/sensu-plugin-sdk/sensu"

	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

// Options are the collector settings shared by the agent and the check.
type Options struct {
	SSLHosts           string
	Proxy              string
	Timeout            int    `validate:"gt=0"`
	Publish            string `validate:"oneof=on off"`
	MaxAge             int    `validate:"gt=0"`
	CacheDir           string `validate:"required"`
	APIURL             string `validate:"required,url"`
	TrustedCAFile      string
	InsecureSkipVerify bool
}

// DefaultCacheDir is where cached responses live unless --cache-dir is set.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "agents", "agent_ssllabs")
}

// ConfigOptions binds o to the plugin flags and SSLLABS_* environment variables.
func ConfigOptions(o *Options) []sensu.ConfigOption {
	return []sensu.ConfigOption{
		&sensu.PluginConfigOption[string]{
			Path:     "ssl-hosts",
			Env:      "SSLLABS_SSL_HOSTS",
			Argument: "ssl-hosts",
			Usage:    "Comma separated list of FQDNs to test for",
			Value:    &o.SSLHosts,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "proxy",
			Env:      "SSLLABS_PROXY",
			Argument: "proxy",
			Usage:    "URL to HTTPS proxy, i.e. https://192.168.1.1:3128",
			Value:    &o.Proxy,
		},
		&sensu.PluginConfigOption[int]{
			Path:      "timeout",
			Env:       "SSLLABS_TIMEOUT",
			Argument:  "timeout",
			Shorthand: "t",
			Default:   60,
			Usage:     "API call timeout in seconds",
			Value:     &o.Timeout,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "publish",
			Env:      "SSLLABS_PUBLISH",
			Argument: "publish",
			Default:  "off",
			Usage:    "Publish test results on ssllabs.com (on|off)",
			Value:    &o.Publish,
		},
		&sensu.PluginConfigOption[int]{
			Path:     "max-age",
			Env:      "SSLLABS_MAX_AGE",
			Argument: "max-age",
			Default:  167,
			Usage:    "Maximum report age in hours, for the ssllabs.com cache and the local cache",
			Value:    &o.MaxAge,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "cache-dir",
			Env:      "SSLLABS_CACHE_DIR",
			Argument: "cache-dir",
			Default:  DefaultCacheDir(),
			Usage:    "Directory holding one cached response per host",
			Value:    &o.CacheDir,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "api-url",
			Env:      "SSLLABS_API_URL",
			Argument: "api-url",
			Default:  ssllabs.DefaultAPIURL,
			Usage:    "SSL Labs analyze endpoint",
			Value:    &o.APIURL,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "trusted-ca-file",
			Env:      "SSLLABS_TRUSTED_CA_FILE",
			Argument: "trusted-ca-file",
			Usage:    "TLS CA certificate bundle in PEM format, for intercepting proxies",
			Value:    &o.TrustedCAFile,
		},
		&sensu.PluginConfigOption[bool]{
			Path:      "insecure-skip-verify",
			Env:       "SSLLABS_INSECURE_SKIP_VERIFY",
			Argument:  "insecure-skip-verify",
			Shorthand: "i",
			Default:   false,
			Usage:     "Skip TLS certificate verification (not recommended!)",
			Value:     &o.InsecureSkipVerify,
		},
	}
}

// Hosts splits the comma separated host list, dropping empty entries.
func (o Options) Hosts() []string {
	var hosts []string
	for _, h := range strings.Split(o.SSLHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Validate checks the options and every host name.
func (o Options) Validate(validate *validator.Validate) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid collector options: %w", err)
	}
	for _, h := range o.Hosts() {
		if err := validate.Var(h, "fqdn"); err != nil {
			return fmt.Errorf("%q is not a valid FQDN", h)
		}
	}
	return nil
}

// ClientConfig converts the options into an API client configuration.
func (o Options) ClientConfig() (ssllabs.ClientConfig, error) {
	cfg := ssllabs.ClientConfig{
		APIURL:             o.APIURL,
		Timeout:            time.Duration(o.Timeout) * time.Second,
		Proxy:              o.Proxy,
		Publish:            o.Publish == "on",
		MaxAgeHours:        o.MaxAge,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
	if len(o.TrustedCAFile) > 0 {
		pool, err := corev2.LoadCACerts(o.TrustedCAFile)
		if err != nil {
			return cfg, fmt.Errorf("error loading specified CA file: %w", err)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// CacheMaxAge is the local cache staleness threshold.
func (o Options) CacheMaxAge() time.Duration {
	return time.Duration(o.MaxAge) * time.Hour
}
