package collector

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmollerup/sensu-check-ssllabs/internal/cache"
	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

type fakeAPI struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeAPI) Analyze(_ context.Context, host string) ([]byte, error) {
	f.calls = append(f.calls, host)
	if err := f.errs[host]; err != nil {
		return nil, err
	}
	return []byte(f.responses[host]), nil
}

const (
	readyBody      = `{"host":"ready.example","status":"READY","testTime":1714559237958,"endpoints":[{"ipAddress":"192.0.2.1","grade":"A+"}]}`
	inProgressBody = `{"host":"busy.example","status":"IN_PROGRESS","startTime":1714563744895}`
	apiErrorBody   = `{"errors":[{"field":"host","message":"Unable to resolve domain name"}]}`
)

func newTestCollector(t *testing.T, api Analyzer, maxAge time.Duration) (*Collector, *cache.Store) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := cache.New(t.TempDir(), maxAge)
	return New(api, store, logger), store
}

func TestCollectFetchesAndCachesReady(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"ready.example": readyBody,
		"busy.example":  inProgressBody,
	}}
	c, store := newTestCollector(t, api, time.Hour)

	records := c.Collect(context.Background(), []string{"ready.example", "busy.example"})
	require.Len(t, records, 2)
	assert.Equal(t, []string{"ready.example", "busy.example"}, api.calls)
	assert.Equal(t, "READY", records[0]["status"])
	assert.NotContains(t, records[0], ssllabs.FromAgentCacheKey)

	readyPath, err := store.Path("ready.example")
	require.NoError(t, err)
	data, err := os.ReadFile(readyPath)
	require.NoError(t, err)
	assert.Equal(t, readyBody, string(data), "raw response text is cached")

	busyPath, err := store.Path("busy.example")
	require.NoError(t, err)
	_, err = os.Stat(busyPath)
	assert.True(t, os.IsNotExist(err), "only READY results are cached")
}

func TestCollectUsesFreshCache(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{"ready.example": readyBody}}
	c, store := newTestCollector(t, api, time.Hour)
	require.NoError(t, store.Write("ready.example", []byte(readyBody)))

	records := c.Collect(context.Background(), []string{"ready.example"})
	assert.Empty(t, api.calls, "fresh cache must not trigger an API call")
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0][ssllabs.FromAgentCacheKey])

	section := ssllabs.NewSection(records)
	h := section["ready.example"]
	require.NotNil(t, h.FromAgentCache)
	assert.True(t, *h.FromAgentCache)
	assert.Equal(t, "A+", *h.Endpoints[0].Grade)
}

func TestCollectRefreshesStaleCache(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{"ready.example": readyBody}}
	c, store := newTestCollector(t, api, time.Hour)
	require.NoError(t, store.Write("ready.example", []byte(readyBody)))
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	records := c.Collect(context.Background(), []string{"ready.example"})
	assert.Equal(t, []string{"ready.example"}, api.calls)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0], ssllabs.FromAgentCacheKey)
}

func TestCollectSkipsUnreadableCache(t *testing.T) {
	api := &fakeAPI{}
	c, store := newTestCollector(t, api, time.Hour)
	require.NoError(t, store.Write("broken.example", []byte(`{"status":`)))

	records := c.Collect(context.Background(), []string{"broken.example"})
	assert.Empty(t, records)
	assert.Empty(t, api.calls)
}

func TestCollectErrorRecords(t *testing.T) {
	api := &fakeAPI{
		responses: map[string]string{
			"garbage.example":  `<html>503</html>`,
			"unknown.example":  apiErrorBody,
			"noerrors.example": `{"status":"DNS","statusMessage":"Resolving domain names"}`,
		},
		errs: map[string]error{"down.example": errors.New("dial tcp: connection refused")},
	}
	c, _ := newTestCollector(t, api, time.Hour)

	records := c.Collect(context.Background(),
		[]string{"down.example", "garbage.example", "unknown.example", "noerrors.example"})
	require.Len(t, records, 4)

	assert.Equal(t, "down.example", records[0]["host"])
	assert.Equal(t, []any{"status: ConnectionError", "dial tcp: connection refused"}, records[0]["errors"])

	assert.Equal(t, "garbage.example", records[1]["host"])
	errs, ok := records[1]["errors"].([]any)
	require.True(t, ok)
	assert.Equal(t, "status: JSONDecodeError", errs[0])

	assert.Equal(t, "unknown.example", records[2]["host"], "api errors are tagged with the host")
	assert.NotContains(t, records[3], "host", "records without errors are passed through")

	section := ssllabs.NewSection(records)
	assert.Equal(t, []string{"host: Unable to resolve domain name"}, section["unknown.example"].Errors)
}

func TestOptions(t *testing.T) {
	validate := validator.New()
	base := Options{
		Timeout:  60,
		Publish:  "off",
		MaxAge:   167,
		CacheDir: DefaultCacheDir(),
		APIURL:   ssllabs.DefaultAPIURL,
	}

	tests := []struct {
		name    string
		modify  func(o *Options)
		hosts   []string
		wantErr bool
	}{
		{
			name:   "valid host list",
			modify: func(o *Options) { o.SSLHosts = "www.example.com, checkmk.com,," },
			hosts:  []string{"www.example.com", "checkmk.com"},
		},
		{
			name:    "invalid fqdn",
			modify:  func(o *Options) { o.SSLHosts = "www.example.com,not a host" },
			hosts:   []string{"www.example.com", "not a host"},
			wantErr: true,
		},
		{
			name:    "publish must be on or off",
			modify:  func(o *Options) { o.SSLHosts = "example.com"; o.Publish = "yes" },
			hosts:   []string{"example.com"},
			wantErr: true,
		},
		{
			name:    "timeout must be positive",
			modify:  func(o *Options) { o.SSLHosts = "example.com"; o.Timeout = 0 },
			hosts:   []string{"example.com"},
			wantErr: true,
		},
		{
			name:    "max age must be positive",
			modify:  func(o *Options) { o.SSLHosts = "example.com"; o.MaxAge = -1 },
			hosts:   []string{"example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.modify(&o)
			assert.Equal(t, tt.hosts, o.Hosts())
			err := o.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptionsClientConfig(t *testing.T) {
	o := Options{Timeout: 30, Publish: "on", MaxAge: 24, APIURL: ssllabs.DefaultAPIURL}
	cfg, err := o.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.Publish)
	assert.Equal(t, 24, cfg.MaxAgeHours)
	assert.Equal(t, 24*time.Hour, o.CacheMaxAge())

	o.TrustedCAFile = "/nonexistent/ca.pem"
	_, err = o.ClientConfig()
	assert.Error(t, err)
}
