package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// AdEventRow mirrors the ad_events BigQuery schema.
type AdEventRow struct {
	EventID     string             `bigquery:"event_id"`
	OccurredAt  time.Time          `bigquery:"occurred_at"`
	AdID        string             `bigquery:"ad_id"`
	Type        string             `bigquery:"type"`
	Source      string             `bigquery:"source"`
	Fingerprint string             `bigquery:"fingerprint"`
	Referrer    *string            `bigquery:"referrer"`
	Browser     *string            `bigquery:"browser"`
	OS          *string            `bigquery:"os"`
	Mobile      bool               `bigquery:"mobile"`
	Payload     cbigquery.NullJSON `bigquery:"payload"`
}
