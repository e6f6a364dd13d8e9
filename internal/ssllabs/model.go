package ssllabs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Assessment states reported in the status field of an analyze response.
const (
	StatusDNS        = "DNS"
	StatusError      = "ERROR"
	StatusInProgress = "IN_PROGRESS"
	StatusReady      = "READY"
)

// FromAgentCacheKey marks records re-emitted from the local cache.
const FromAgentCacheKey = "from_agent_cache"

// Record is a raw analyze response object as received from the API or the cache.
type Record map[string]any

// Endpoint is one IP address serving a host. Pointer fields are nil when the
// API did not report them.
type Endpoint struct {
	IPAddress            string
	ServerName           string
	StatusMessage        *string
	Grade                *string
	GradeTrustIgnored    *string
	HasWarnings          *bool
	IsExceptional        *bool
	Progress             *int64
	Duration             *int64
	Delegation           *int64
	StatusDetails        string
	StatusDetailsMessage string
}

// Name identifies the endpoint in messages and in the grade history.
func (e Endpoint) Name() string {
	return e.ServerName + "/" + e.IPAddress
}

// HostResult is one assessed hostname.
type HostResult struct {
	Host            string
	Port            *int64
	Protocol        string
	IsPublic        *bool
	Status          *string
	StartTime       *int64
	TestTime        *int64
	EngineVersion   string
	CriteriaVersion string
	StatusMessage   string
	CacheExpiryTime *int64
	FromAgentCache  *bool
	Endpoints       []Endpoint
	Errors          []string
}

// DecodeRecord decodes a single JSON object, keeping numbers exact.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return rec, nil
}

// ParseHost builds a HostResult from a raw record.
func ParseHost(rec Record) HostResult {
	h := HostResult{
		Host:            stringOrEmpty(getString(rec, "host")),
		Port:            getInt(rec, "port"),
		Protocol:        stringOrEmpty(getString(rec, "protocol")),
		IsPublic:        getBool(rec, "isPublic"),
		Status:          getString(rec, "status"),
		StartTime:       getInt(rec, "startTime"),
		TestTime:        getInt(rec, "testTime"),
		EngineVersion:   stringOrEmpty(getString(rec, "engineVersion")),
		CriteriaVersion: stringOrEmpty(getString(rec, "criteriaVersion")),
		StatusMessage:   stringOrEmpty(getString(rec, "statusMessage")),
		CacheExpiryTime: getInt(rec, "cacheExpiryTime"),
		FromAgentCache:  getBool(rec, FromAgentCacheKey),
	}
	if eps, ok := rec["endpoints"].([]any); ok {
		for _, ep := range eps {
			m, ok := ep.(map[string]any)
			if !ok {
				continue
			}
			h.Endpoints = append(h.Endpoints, parseEndpoint(m))
		}
	}
	if errs, ok := rec["errors"].([]any); ok {
		for _, e := range errs {
			h.Errors = append(h.Errors, errorText(e))
		}
	}
	return h
}

func parseEndpoint(m map[string]any) Endpoint {
	return Endpoint{
		IPAddress:            stringOrEmpty(getString(m, "ipAddress")),
		ServerName:           stringOrEmpty(getString(m, "serverName")),
		StatusMessage:        getString(m, "statusMessage"),
		Grade:                getString(m, "grade"),
		GradeTrustIgnored:    getString(m, "gradeTrustIgnored"),
		HasWarnings:          getBool(m, "hasWarnings"),
		IsExceptional:        getBool(m, "isExceptional"),
		Progress:             getInt(m, "progress"),
		Duration:             getInt(m, "duration"),
		Delegation:           getInt(m, "delegation"),
		StatusDetails:        stringOrEmpty(getString(m, "statusDetails")),
		StatusDetailsMessage: stringOrEmpty(getString(m, "statusDetailsMessage")),
	}
}

func getString(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = fmt.Sprint(t)
		} else {
			s = string(b)
		}
	}
	return &s
}

func getBool(m map[string]any, key string) *bool {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case json.Number:
		f, err := t.Float64()
		b = err == nil && f != 0
	case float64:
		b = t != 0
	case string:
		b = t != ""
	case []any:
		b = len(t) > 0
	case map[string]any:
		b = len(t) > 0
	}
	return &b
}

func getInt(m map[string]any, key string) *int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	var i int64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return nil
			}
			n = int64(f)
		}
		i = n
	case float64:
		i = int64(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil
		}
		i = n
	case bool:
		if t {
			i = 1
		}
	default:
		return nil
	}
	return &i
}

func errorText(e any) string {
	switch t := e.(type) {
	case string:
		return t
	case map[string]any:
		msg := stringOrEmpty(getString(t, "message"))
		field := stringOrEmpty(getString(t, "field"))
		switch {
		case msg != "" && field != "":
			return field + ": " + msg
		case msg != "":
			return msg
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprint(e)
	}
	return string(b)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
