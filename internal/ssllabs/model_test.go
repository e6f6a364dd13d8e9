package ssllabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readyResponse = `{
  "host": "thl-cmk.hopto.org",
  "port": 443,
  "protocol": "http",
  "isPublic": false,
  "status": "READY",
  "startTime": 1714559152230,
  "testTime": 1714559237958,
  "engineVersion": "2.3.0",
  "criteriaVersion": "2009q",
  "endpoints": [
    {
      "ipAddress": "91.4.75.201",
      "serverName": "p5b044bc9.dip0.t-ipconnect.de",
      "statusMessage": "Ready",
      "grade": "A+",
      "gradeTrustIgnored": "A+",
      "hasWarnings": false,
      "isExceptional": true,
      "progress": 100,
      "duration": 85530,
      "delegation": 1
    }
  ]
}`

func TestParseHostReady(t *testing.T) {
	rec, err := DecodeRecord([]byte(readyResponse))
	require.NoError(t, err)

	h := ParseHost(rec)
	assert.Equal(t, "thl-cmk.hopto.org", h.Host)
	require.NotNil(t, h.Port)
	assert.EqualValues(t, 443, *h.Port)
	require.NotNil(t, h.Status)
	assert.Equal(t, StatusReady, *h.Status)
	require.NotNil(t, h.TestTime)
	assert.EqualValues(t, 1714559237958, *h.TestTime)
	assert.Equal(t, "2009q", h.CriteriaVersion)
	assert.Nil(t, h.FromAgentCache)
	assert.Nil(t, h.CacheExpiryTime)
	assert.Empty(t, h.Errors)

	require.Len(t, h.Endpoints, 1)
	ep := h.Endpoints[0]
	assert.Equal(t, "p5b044bc9.dip0.t-ipconnect.de/91.4.75.201", ep.Name())
	require.NotNil(t, ep.Grade)
	assert.Equal(t, "A+", *ep.Grade)
	require.NotNil(t, ep.HasWarnings)
	assert.False(t, *ep.HasWarnings)
	require.NotNil(t, ep.IsExceptional)
	assert.True(t, *ep.IsExceptional)
	require.NotNil(t, ep.Duration)
	assert.EqualValues(t, 85530, *ep.Duration)
}

func TestParseHostInProgressEndpoint(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{
		"host": "checkmk.com",
		"status": "IN_PROGRESS",
		"endpoints": [{
			"ipAddress": "45.133.11.28",
			"serverName": "www.checkmk.com",
			"statusMessage": "In progress",
			"statusDetails": "TESTING_SESSION_RESUMPTION",
			"statusDetailsMessage": "Testing session resumption",
			"delegation": 1
		}]
	}`))
	require.NoError(t, err)

	h := ParseHost(rec)
	require.Len(t, h.Endpoints, 1)
	ep := h.Endpoints[0]
	assert.Nil(t, ep.Grade)
	assert.Nil(t, ep.HasWarnings)
	assert.Nil(t, ep.IsExceptional)
	assert.Nil(t, ep.Progress)
	assert.Equal(t, "TESTING_SESSION_RESUMPTION", ep.StatusDetails)
	assert.Nil(t, h.TestTime)
}

func TestParseHostLenientFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, h HostResult)
	}{
		{
			name:  "null fields are absent",
			input: `{"host": "a.example", "status": null, "testTime": null, "port": null}`,
			check: func(t *testing.T, h HostResult) {
				assert.Nil(t, h.Status)
				assert.Nil(t, h.TestTime)
				assert.Nil(t, h.Port)
			},
		},
		{
			name:  "numeric string is an integer",
			input: `{"host": "a.example", "port": "8443"}`,
			check: func(t *testing.T, h HostResult) {
				require.NotNil(t, h.Port)
				assert.EqualValues(t, 8443, *h.Port)
			},
		},
		{
			name:  "non numeric string is not an integer",
			input: `{"host": "a.example", "port": "https"}`,
			check: func(t *testing.T, h HostResult) {
				assert.Nil(t, h.Port)
			},
		},
		{
			name:  "truthy values become booleans",
			input: `{"host": "a.example", "isPublic": 1, "from_agent_cache": "yes"}`,
			check: func(t *testing.T, h HostResult) {
				require.NotNil(t, h.IsPublic)
				assert.True(t, *h.IsPublic)
				require.NotNil(t, h.FromAgentCache)
				assert.True(t, *h.FromAgentCache)
			},
		},
		{
			name:  "number status becomes a string",
			input: `{"host": "a.example", "status": 42}`,
			check: func(t *testing.T, h HostResult) {
				require.NotNil(t, h.Status)
				assert.Equal(t, "42", *h.Status)
			},
		},
		{
			name:  "api error objects are rendered",
			input: `{"errors": [{"field": "host", "message": "Unable to resolve domain name"}, "plain", 7]}`,
			check: func(t *testing.T, h HostResult) {
				assert.Equal(t, []string{"host: Unable to resolve domain name", "plain", "7"}, h.Errors)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeRecord([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, ParseHost(rec))
		})
	}
}

func TestDecodeRecordRejectsNonObjects(t *testing.T) {
	for _, input := range []string{`null`, `[1, 2]`, `not json`, ``} {
		_, err := DecodeRecord([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}
