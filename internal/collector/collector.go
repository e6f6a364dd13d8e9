// Package collector polls the SSL Labs API for a list of hosts, serving
// recent results from the local cache.
package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nmollerup/sensu-check-ssllabs/internal/cache"
	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

// Analyzer fetches the raw assessment of a host.
type Analyzer interface {
	Analyze(ctx context.Context, host string) ([]byte, error)
}

// Collector gathers one record per host, sequentially.
type Collector struct {
	api    Analyzer
	cache  *cache.Store
	logger logrus.FieldLogger
	now    func() time.Time
}

func New(api Analyzer, store *cache.Store, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		api:    api,
		cache:  store,
		logger: logger.WithField("component", "collector"),
		now:    time.Now,
	}
}

// Collect returns the records for hosts in order. A host whose fresh cache
// entry cannot be parsed is skipped.
func (c *Collector) Collect(ctx context.Context, hosts []string) []ssllabs.Record {
	now := c.now()
	records := make([]ssllabs.Record, 0, len(hosts))
	for _, host := range hosts {
		log := c.logger.WithField("host", host)

		if c.cache.Fresh(host, now) {
			rec, err := c.cache.Read(host)
			if err != nil {
				log.WithError(err).Debug("skipping unreadable cache entry")
				continue
			}
			log.Debug("using cached assessment")
			records = append(records, rec)
			continue
		}

		records = append(records, c.fetch(ctx, host, log))
	}
	return records
}

func (c *Collector) fetch(ctx context.Context, host string, log logrus.FieldLogger) ssllabs.Record {
	body, err := c.api.Analyze(ctx, host)
	if err != nil {
		log.WithError(err).Warn("assessment request failed")
		return errorRecord(host, "status: ConnectionError", err)
	}

	rec, err := ssllabs.DecodeRecord(body)
	if err != nil {
		log.WithError(err).Warn("assessment response is not valid JSON")
		return errorRecord(host, "status: JSONDecodeError", err)
	}

	if status, _ := rec["status"].(string); status == ssllabs.StatusReady {
		if err := c.cache.Write(host, body); err != nil {
			log.WithError(err).Warn("could not cache assessment")
		}
	} else if hasErrors(rec["errors"]) {
		rec["host"] = host
	}
	return rec
}

func errorRecord(host, status string, err error) ssllabs.Record {
	return ssllabs.Record{
		"host":   host,
		"errors": []any{status, err.Error()},
	}
}

func hasErrors(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case string:
		return t != ""
	case bool:
		return t
	}
	return true
}
