package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-only view of an error: the typed code, the wrap chain
// and whatever the database driver said about the failing constraint.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	DBCode       string `json:"db_code,omitempty"`
	DBConstraint string `json:"db_constraint,omitempty"`
	DBTable      string `json:"db_table,omitempty"`
	DBColumn     string `json:"db_column,omitempty"`
	DBDetail     string `json:"db_detail,omitempty"`
	DBMessage    string `json:"db_message,omitempty"`

	// Resource names the ledger entity behind DBTable (member, transaction, ...).
	Resource string `json:"resource,omitempty"`
}

// sqlite reports "UNIQUE constraint failed: pc_members.code" with no code or
// constraint name, only table.column.
var sqliteConstraintRe = regexp.MustCompile(`(UNIQUE|NOT NULL|FOREIGN KEY|CHECK) constraint failed(?::\s*([a-z0-9_]+)\.([a-z0-9_]+))?`)

var ledgerResources = map[string]string{
	"pc_members":      "member",
	"pc_transactions": "transaction",
	"pc_settlements":  "settlement",
	"pc_sequences":    "sequence",
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.DBCode = pgxErr.Code
		d.DBConstraint = pgxErr.ConstraintName
		d.DBTable = pgxErr.TableName
		d.DBColumn = pgxErr.ColumnName
		d.DBDetail = pgxErr.Detail
		d.DBMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.DBCode = string(pqErr.Code)
		d.DBConstraint = pqErr.Constraint
		d.DBTable = pqErr.Table
		d.DBColumn = pqErr.Column
		d.DBDetail = pqErr.Detail
		d.DBMessage = pqErr.Message
	default:
		if m := sqliteConstraintRe.FindStringSubmatch(d.TopMessage); m != nil {
			d.DBMessage = m[0]
			d.DBTable, d.DBColumn = m[2], m[3]
			if d.DBTable != "" {
				d.DBConstraint = strings.ToLower(m[1]) + ":" + d.DBTable + "." + d.DBColumn
			}
		}
	}

	if d.DBTable == "" && d.DBConstraint != "" {
		d.DBTable = tableFromConstraint(d.DBConstraint)
	}
	d.Resource = ledgerResources[d.DBTable]
	return d
}

// tableFromConstraint recovers the table from constraint names that follow
// the <table>_<column>_key / idx_<table>_... conventions of the migrations.
func tableFromConstraint(constraint string) string {
	name := strings.TrimPrefix(constraint, "idx_")
	for table := range ledgerResources {
		if strings.HasPrefix(name, table+"_") {
			return table
		}
	}
	return ""
}
