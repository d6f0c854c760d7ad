package alertsink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/lateralwatch/engine/model"
)

// StdoutForwarder writes each alert as one line of JSON to w, for the
// "ingest" command's stdin-to-stdout pipeline mode. Writes are
// serialized so concurrent lanes never interleave a partial line.
type StdoutForwarder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutForwarder returns a Forwarder that writes to w.
func NewStdoutForwarder(w io.Writer) *StdoutForwarder {
	return &StdoutForwarder{w: w}
}

// Forward writes alert to the underlying writer as a single JSON line.
func (f *StdoutForwarder) Forward(_ context.Context, alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	_, err = f.w.Write(data)
	return err
}
