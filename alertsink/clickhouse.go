package alertsink

import (
	"context"
	"encoding/json"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/lateralwatch/engine/model"
)

// alertRow is the flattened shape written to ClickHouse, grounded on the
// teacher's one-struct-per-table convention (database/tables.go).
type alertRow struct {
	AlertID           string  `ch:"alert_id"`
	Timestamp         int64   `ch:"timestamp"`
	Severity          string  `ch:"severity"`
	Confidence        float64 `ch:"confidence"`
	Score             float64 `ch:"score"`
	Source            string  `ch:"source"`
	Destination       string  `ch:"destination"`
	EventType         string  `ch:"event_type"`
	Description       string  `ch:"description"`
	DetectionsJSON    string  `ch:"detections_json"`
	RepeatOffender    bool    `ch:"repeat_offender"`
	OffHours          bool    `ch:"off_hours"`
	TargetCriticality string  `ch:"target_criticality"`
	RecommendedAction string  `ch:"recommended_action"`
	InvestigationJSON string  `ch:"investigation_json"`
}

func toRow(alert model.Alert) (alertRow, error) {
	detectionsJSON, err := json.Marshal(alert.Detections)
	if err != nil {
		return alertRow{}, err
	}

	var investigationJSON []byte
	if alert.Investigation != nil {
		investigationJSON, err = json.Marshal(alert.Investigation)
		if err != nil {
			return alertRow{}, err
		}
	}

	return alertRow{
		AlertID:           alert.AlertID,
		Timestamp:         alert.Timestamp.Unix(),
		Severity:          string(alert.Severity),
		Confidence:        alert.Confidence,
		Score:             alert.Score,
		Source:            alert.EventSummary.Source,
		Destination:       alert.EventSummary.Destination,
		EventType:         alert.EventSummary.Type,
		Description:       alert.EventSummary.Description,
		DetectionsJSON:    string(detectionsJSON),
		RepeatOffender:    alert.Context.RepeatOffender,
		OffHours:          alert.Context.OffHours,
		TargetCriticality: alert.Context.TargetCriticality,
		RecommendedAction: string(alert.RecommendedAction),
		InvestigationJSON: string(investigationJSON),
	}, nil
}

// ClickHouseForwarder writes each alert as a single-row batch insert
// against the configured table, using the teacher's PrepareBatch/
// AppendStruct/Send idiom (database/writer.go) rather than its
// multi-worker batching, since alerts arrive one at a time off the sink's
// queue instead of in bulk import batches.
type ClickHouseForwarder struct {
	conn     driver.Conn
	database string
	table    string
}

// NewClickHouseForwarder returns a forwarder that inserts into
// database.table over conn.
func NewClickHouseForwarder(conn driver.Conn, database, table string) *ClickHouseForwarder {
	return &ClickHouseForwarder{conn: conn, database: database, table: table}
}

// Forward inserts one alert row.
func (f *ClickHouseForwarder) Forward(ctx context.Context, alert model.Alert) error {
	row, err := toRow(alert)
	if err != nil {
		return err
	}

	chCtx := clickhouse.Context(ctx, clickhouse.WithParameters(clickhouse.Parameters{
		"database": f.database,
	}))

	batch, err := f.conn.PrepareBatch(chCtx, "INSERT INTO "+f.database+"."+f.table)
	if err != nil {
		return err
	}
	if err := batch.AppendStruct(&row); err != nil {
		return err
	}
	return batch.Send()
}
