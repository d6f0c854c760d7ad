package ingest_test

import (
	"bufio"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lateralwatch/engine/ingest"
	"github.com/lateralwatch/engine/metrics"
	"github.com/lateralwatch/engine/model"
)

func newClassifier() (*ingest.Classifier, *metrics.Registry) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	return ingest.NewClassifier(reg), reg
}

func parseFailureCount(t *testing.T, reg *metrics.Registry) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, reg.ParseFailures.Write(&m))
	return m.GetCounter().GetValue()
}

func TestClassifyLineConn(t *testing.T) {
	c, _ := newClassifier()
	line := `{"_path":"conn","ts":1700000000.0,"id.orig_h":"10.0.0.5","id.resp_h":"10.0.0.20","id.orig_p":51000,"id.resp_p":445,"orig_bytes":1024,"duration":0.5}`

	record, err := c.ClassifyLine([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, model.KindConn, record.Kind)
	require.Equal(t, "10.0.0.5", record.SourceHost)
	require.Equal(t, "10.0.0.20", record.DestHost)
	require.Equal(t, 445, record.DestPort)
}

func TestClassifyLineUnknownKindIgnoredWithoutError(t *testing.T) {
	c, reg := newClassifier()
	line := `{"_path":"dns","ts":1700000000.0,"id.orig_h":"10.0.0.5","id.resp_h":"10.0.0.20"}`

	record, err := c.ClassifyLine([]byte(line))
	require.NoError(t, err)
	require.Nil(t, record)
	require.Equal(t, float64(0), parseFailureCount(t, reg))
}

func TestClassifyLineMalformedJSONCountsParseFailure(t *testing.T) {
	c, reg := newClassifier()

	record, err := c.ClassifyLine([]byte(`{not json`))
	require.Error(t, err)
	require.Nil(t, record)
	require.Equal(t, float64(1), parseFailureCount(t, reg))
}

func TestClassifyLineMissingRequiredFieldsCountsParseFailure(t *testing.T) {
	c, reg := newClassifier()
	line := `{"_path":"conn","ts":1700000000.0}`

	record, err := c.ClassifyLine([]byte(line))
	require.Error(t, err)
	require.Nil(t, record)
	require.Equal(t, float64(1), parseFailureCount(t, reg))
}

func TestStreamContinuesPastBadLines(t *testing.T) {
	c, _ := newClassifier()
	input := strings.Join([]string{
		`{not json`,
		`{"_path":"dns","ts":1.0,"id.orig_h":"a","id.resp_h":"b"}`,
		`{"_path":"ntlm","ts":1.0,"id.orig_h":"10.0.0.1","id.resp_h":"10.0.0.2","ntlm_response":"abc"}`,
	}, "\n")

	out := make(chan *model.Record, 4)
	c.Stream(bufio.NewReader(strings.NewReader(input)), out)
	close(out)

	var records []*model.Record
	for r := range out {
		records = append(records, r)
	}
	require.Len(t, records, 1)
	require.Equal(t, model.KindNTLM, records[0].Kind)
}
