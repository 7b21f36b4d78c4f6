package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGClass      string `json:"pg_class,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Postgres SQLSTATEs the checkout tables rely on.
var pgClasses = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23514": "check_violation",
	"23502": "not_null_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"57014": "query_canceled",
}

// Dump flattens err for structured logs. Wrappers that only repeat the
// message of their cause are left out of Chain.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	prev := ""
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if msg == prev {
			continue
		}
		prev = msg
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %s", e, msg))
	}

	if pg, ok := postgresDetails(err); ok {
		d.PGCode = pg.code
		d.PGClass = pgClasses[pg.code]
		d.PGConstraint = pg.constraint
		d.PGTable = pg.table
		d.PGColumn = pg.column
		d.PGDetail = pg.detail
		d.PGMessage = pg.message
	}
	return d
}

type pgDetails struct {
	code, constraint, table, column, detail, message string
}

// postgresDetails reads the server error from either driver in the chain.
func postgresDetails(err error) (pgDetails, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgDetails{
			code:       pgxErr.Code,
			constraint: pgxErr.ConstraintName,
			table:      pgxErr.TableName,
			column:     pgxErr.ColumnName,
			detail:     pgxErr.Detail,
			message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgDetails{
			code:       string(pqErr.Code),
			constraint: pqErr.Constraint,
			table:      pqErr.Table,
			column:     pqErr.Column,
			detail:     pqErr.Detail,
			message:    pqErr.Message,
		}, true
	}
	return pgDetails{}, false
}
