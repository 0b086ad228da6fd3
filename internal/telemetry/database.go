package telemetry

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens an instrumented pool: every query gets a span and pool stats
// are exported as metrics. Ping is left to the caller.
func OpenDB(driverName, dsn string) (*sql.DB, error) {
	attrs := otelsql.WithAttributes(semconv.DBSystemPostgreSQL, semconv.DBNamespace("storefront"))

	db, err := otelsql.Open(driverName, dsn,
		attrs,
		otelsql.WithSpanOptions(otelsql.SpanOptions{
			OmitConnResetSession: true,
			OmitRows:             true,
		}),
	)
	if err != nil {
		return nil, err
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, attrs); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register db stats metrics: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	return db, nil
}
