// Package ingest implements the record classifier (C1): it parses
// line-delimited JSON log records, normalizes the host-address fields, and
// dispatches each record to the rest of the pipeline by its log-kind tag.
// It is grounded on the teacher's importer/parser.go JSON branch (jsoniter
// line parsing, log-and-continue error handling) stripped of the TSV/Zeek
// header machinery this spec's wire format doesn't need.
package ingest

import (
	"bufio"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
)

var errMissingFields = errors.New("record missing required fields")

// wireRecord mirrors the exact input JSON shape from spec §6.
type wireRecord struct {
	Path         string  `json:"_path"`
	Timestamp    float64 `json:"ts"`
	OrigHost     string  `json:"id.orig_h"`
	RespHost     string  `json:"id.resp_h"`
	OrigPort     int     `json:"id.orig_p"`
	RespPort     int     `json:"id.resp_p"`
	NTLMResponse string  `json:"ntlm_response"`
	Path2        string  `json:"path"`
	Status       string  `json:"status"`
	Endpoint     string  `json:"endpoint"`
	Cookie       string  `json:"cookie"`
	Action       string  `json:"action"`
	Service      string  `json:"service"`
	OrigBytes    int64   `json:"orig_bytes"`
	Duration     float64 `json:"duration"`
}

var recognizedKinds = map[string]bool{
	model.KindConn:       true,
	model.KindNTLM:       true,
	model.KindSMBFiles:   true,
	model.KindSMBMapping: true,
	model.KindDCERPC:     true,
	model.KindRDP:        true,
	model.KindSSL:        true,
}

// Classifier is the stateless record classifier (C1).
type Classifier struct {
	metrics *metrics.Registry
}

// NewClassifier returns a Classifier that reports parse failures to reg.
func NewClassifier(reg *metrics.Registry) *Classifier {
	return &Classifier{metrics: reg}
}

// ClassifyLine parses a single line of line-delimited JSON input.
//
// It returns (nil, nil) when the record's log-kind is unrecognized (ignored
// without error, per spec §4.1), and (nil, err) when the record is
// malformed — the caller counts the parse-failure and continues the
// stream; it must never halt on this error.
func (c *Classifier) ClassifyLine(line []byte) (*model.Record, error) {
	var wire wireRecord
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &wire); err != nil {
		c.metrics.IncParseFailure()
		return nil, err
	}

	if !recognizedKinds[wire.Path] {
		return nil, nil
	}

	if wire.OrigHost == "" || wire.RespHost == "" {
		c.metrics.IncParseFailure()
		return nil, errMissingFields
	}

	return &model.Record{
		Kind:         wire.Path,
		Timestamp:    wire.Timestamp,
		SourceHost:   wire.OrigHost,
		DestHost:     wire.RespHost,
		SourcePort:   wire.OrigPort,
		DestPort:     wire.RespPort,
		Service:      wire.Service,
		NTLMResponse: wire.NTLMResponse,
		Path:         wire.Path2,
		Status:       wire.Status,
		Endpoint:     wire.Endpoint,
		Cookie:       wire.Cookie,
		Action:       wire.Action,
		OrigBytes:    wire.OrigBytes,
		Duration:     wire.Duration,
	}, nil
}

// Stream reads newline-delimited JSON records from r, classifies each, and
// sends classified records on out. It never stops on a single malformed
// line; it logs and counts the failure and continues, matching the
// teacher's parseConn loop.
func (c *Classifier) Stream(r io.Reader, out chan<- *model.Record) {
	log := logger.WithComponent("ingest")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		record, err := c.ClassifyLine(line)
		if err != nil {
			log.Warn().Err(err).Bytes("record", line).Msg("failed to classify record")
			continue
		}
		if record == nil {
			continue
		}
		out <- record
	}

	if err := scanner.Err(); err != nil {
		log.Err(err).Msg("input stream scan failed")
	}
}
