package quorum

import (
	"encoding/json"
	"strconv"
	"strings"
)

// WorkerReport is the decoded output of one worker invocation: a finding
// list, an overall health score for the shard, and any claimed side effects.
type WorkerReport struct {
	// HealthScore is the worker's 0.0-1.0 assessment of the unit, 0 if the
	// worker did not report one.
	HealthScore float64 `json:"health_score"`

	// Findings are the issues the worker raised.
	Findings []Finding `json:"findings"`

	// Claims are mutations of external state the worker says it performed.
	// Claims are never trusted; the verifier re-checks each one.
	Claims []MutationClaim `json:"mutations"`
}

// rawReport is the strict wire schema for worker output.
type rawReport struct {
	HealthScore float64      `json:"health_score"`
	Findings    []rawFinding `json:"findings"`
	Mutations   []rawClaim   `json:"mutations"`
}

type rawFinding struct {
	Severity       string `json:"severity"`
	Resource       string `json:"resource"`
	Line           int    `json:"line"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

type rawClaim struct {
	Resource       string `json:"resource"`
	ExpectedSignal string `json:"expected_signal"`
}

// ParseWorkerOutput decodes a worker's raw output through a prioritized
// cascade:
//
//  1. strict JSON schema decode
//  2. JSON embedded in surrounding prose
//  3. section-header heuristic (Severity:/Location:/... blocks)
//  4. line-item heuristic (pipe-separated or [SEVERITY] lines)
//
// The first stage yielding at least one well-formed finding wins. A report
// with zero findings but a valid strict decode also wins (a clean shard is a
// legitimate result). If every stage comes up empty, ErrMalformedOutput is
// returned and the invocation is excluded from voting but still counted in
// coverage statistics.
//
// The cascade exists because heterogeneous workers cannot be assumed to
// always emit a single rigid format; dropping a degraded-but-informative
// output would understate coverage.
func ParseWorkerOutput(raw string) (*WorkerReport, error) {
	stages := []func(string) (*WorkerReport, bool){
		parseStrict,
		parseEmbedded,
		parseSections,
		parseLines,
	}
	for _, stage := range stages {
		if report, ok := stage(raw); ok {
			return report, nil
		}
	}
	return nil, ErrMalformedOutput
}

// parseStrict decodes the whole payload as the strict JSON schema.
func parseStrict(raw string) (*WorkerReport, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	var rr rawReport
	if err := json.Unmarshal([]byte(trimmed), &rr); err != nil {
		return nil, false
	}
	return fromRaw(rr)
}

// parseEmbedded extracts the outermost JSON object from a payload that wraps
// it in prose (workers often preface structured output with commentary).
func parseEmbedded(raw string) (*WorkerReport, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}
	var rr rawReport
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rr); err != nil {
		return nil, false
	}
	return fromRaw(rr)
}

// fromRaw validates a strict decode. The decode counts only when it carries
// at least one well-formed finding, a mutation claim, or an explicit health
// score - an arbitrary JSON object that happens to unmarshal into an empty
// rawReport is not a report.
func fromRaw(rr rawReport) (*WorkerReport, bool) {
	report := &WorkerReport{HealthScore: rr.HealthScore}
	for _, rf := range rr.Findings {
		f := Finding{
			Severity:       Severity(strings.ToLower(rf.Severity)),
			Location:       Location{Resource: rf.Resource, Line: rf.Line},
			Description:    rf.Description,
			Recommendation: rf.Recommendation,
		}
		if wellFormed(f) {
			report.Findings = append(report.Findings, f)
		}
	}
	for _, rc := range rr.Mutations {
		if rc.Resource == "" || rc.ExpectedSignal == "" {
			continue
		}
		report.Claims = append(report.Claims, MutationClaim{
			TargetResource: rc.Resource,
			ExpectedSignal: rc.ExpectedSignal,
		})
	}
	if len(report.Findings) == 0 && len(report.Claims) == 0 && rr.HealthScore == 0 {
		return nil, false
	}
	return report, true
}

// parseSections decodes block-structured text output of the form:
//
//	## Finding
//	Severity: high
//	Location: pkg/db/conn.go:42
//	Description: connection pool is never closed
//	Recommendation: close the pool on shutdown
//
// Blocks are separated by header lines ("##" or "finding"). A health score
// line ("Health: 0.8") anywhere in the payload is honored.
func parseSections(raw string) (*WorkerReport, bool) {
	report := &WorkerReport{}
	var current *Finding

	flush := func() {
		if current != nil && wellFormed(*current) {
			report.Findings = append(report.Findings, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)

		if strings.HasPrefix(lower, "##") || strings.HasPrefix(lower, "finding") {
			flush()
			current = &Finding{}
			continue
		}

		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		switch key {
		case "health":
			if score, err := strconv.ParseFloat(value, 64); err == nil {
				report.HealthScore = score
			}
		case "severity":
			if current == nil {
				current = &Finding{}
			}
			current.Severity = Severity(strings.ToLower(value))
		case "location":
			if current == nil {
				current = &Finding{}
			}
			current.Location = parseLocation(value)
		case "description":
			if current != nil {
				current.Description = value
			}
		case "recommendation":
			if current != nil {
				current.Recommendation = value
			}
		}
	}
	flush()

	if len(report.Findings) == 0 {
		return nil, false
	}
	return report, true
}

// parseLines decodes degraded one-finding-per-line output. Two shapes are
// recognized:
//
//	high|pkg/db/conn.go:42|pool is never closed|close it on shutdown
//	[HIGH] pkg/db/conn.go:42 pool is never closed
func parseLines(raw string) (*WorkerReport, bool) {
	report := &WorkerReport{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var f Finding
		switch {
		case strings.Count(line, "|") >= 2:
			parts := strings.SplitN(line, "|", 4)
			f.Severity = Severity(strings.ToLower(strings.TrimSpace(parts[0])))
			f.Location = parseLocation(strings.TrimSpace(parts[1]))
			f.Description = strings.TrimSpace(parts[2])
			if len(parts) == 4 {
				f.Recommendation = strings.TrimSpace(parts[3])
			}
		case strings.HasPrefix(line, "["):
			end := strings.Index(line, "]")
			if end == -1 {
				continue
			}
			rest := strings.Fields(strings.TrimSpace(line[end+1:]))
			if len(rest) < 2 {
				continue
			}
			f.Severity = Severity(strings.ToLower(line[1:end]))
			f.Location = parseLocation(rest[0])
			f.Description = strings.Join(rest[1:], " ")
		default:
			continue
		}

		if wellFormed(f) {
			report.Findings = append(report.Findings, f)
		}
	}
	if len(report.Findings) == 0 {
		return nil, false
	}
	return report, true
}

// wellFormed reports whether a finding carries the minimum required fields.
func wellFormed(f Finding) bool {
	return f.Severity.Valid() && f.Location.Resource != "" && f.Description != ""
}

// splitKeyValue splits "Key: value" lines, lowercasing the key.
func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

// parseLocation parses "path:line" into a Location; a bare path gets line 0.
func parseLocation(s string) Location {
	idx := strings.LastIndex(s, ":")
	if idx > 0 {
		if line, err := strconv.Atoi(s[idx+1:]); err == nil {
			return Location{Resource: s[:idx], Line: line}
		}
	}
	return Location{Resource: s}
}
