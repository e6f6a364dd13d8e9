package ssllabs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	SectionHeader = "<<<ssllabs_grade:sep(0)>>>"
	SectionFooter = "<<<>>>"

	maxSectionLine = 16 * 1024 * 1024
)

// ErrNoSection is returned when the agent output carries no ssllabs_grade section.
var ErrNoSection = errors.New("no ssllabs_grade section in agent output")

// Section maps hostnames to their parsed assessment.
type Section map[string]HostResult

// WriteSection frames the records as a single JSON array line.
func WriteSection(w io.Writer, records []Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode section: %w", err)
	}
	if _, err := fmt.Fprintf(w, "\n%s\n%s\n%s\n", SectionHeader, payload, SectionFooter); err != nil {
		return fmt.Errorf("write section: %w", err)
	}
	return nil
}

// ReadSection extracts every ssllabs_grade section from agent output and
// parses the JSON arrays they carry. Records without a host are dropped; a
// later record for the same host replaces an earlier one.
func ReadSection(r io.Reader) (Section, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSectionLine)

	var payloads [][]byte
	inSection := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == SectionHeader:
			inSection = true
		case strings.HasPrefix(line, "<<<") && strings.HasSuffix(line, ">>>"):
			inSection = false
		case inSection && line != "":
			payloads = append(payloads, []byte(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read agent output: %w", err)
	}
	if len(payloads) == 0 {
		return nil, ErrNoSection
	}

	var records []Record
	for _, p := range payloads {
		recs, err := decodeRecords(p)
		if err != nil {
			return nil, fmt.Errorf("parse section: %w", err)
		}
		records = append(records, recs...)
	}
	return NewSection(records), nil
}

// NewSection parses records, keyed by host. Records without a host are dropped.
func NewSection(records []Record) Section {
	section := Section{}
	for _, rec := range records {
		if getString(rec, "host") == nil {
			continue
		}
		h := ParseHost(rec)
		section[h.Host] = h
	}
	return section
}

// Hosts returns the hostnames of the section in sorted order.
func (s Section) Hosts() []string {
	hosts := make([]string, 0, len(s))
	for h := range s {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func decodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			records = append(records, Record(m))
		}
	}
	return records, nil
}
