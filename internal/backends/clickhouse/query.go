package clickhouse

import (
	"errors"
	"fmt"
	"strings"

	clickhouseparser "github.com/AfterShip/clickhouse-sql-parser/parser"
)

// ErrInvalidQuery is returned for SQL that is not a single SELECT over the rule target.
var ErrInvalidQuery = errors.New("invalid clickhouse query")

// QueryMode defines the validation strictness for SQL queries.
type QueryMode int

const (
	// RestrictedMode validates the table reference and blocks JOINs.
	// Used for condition queries generated from a rule target.
	RestrictedMode QueryMode = iota
	// ExtendedMode allows any SELECT query without table validation.
	// The ClickHouse connection permissions are the security boundary.
	ExtendedMode
)

// QueryBuilder builds and validates the SQL an alert rule runs.
type QueryBuilder struct {
	tableName string
	mode      QueryMode
}

// NewQueryBuilder creates a restricted QueryBuilder for tableName.
func NewQueryBuilder(tableName string) *QueryBuilder {
	return &QueryBuilder{tableName: tableName, mode: RestrictedMode}
}

// NewExtendedQueryBuilder creates a QueryBuilder that accepts any SELECT.
func NewExtendedQueryBuilder(tableName string) *QueryBuilder {
	return &QueryBuilder{tableName: tableName, mode: ExtendedMode}
}

// BuildSearchQuery turns a rule query into SQL. A query that is already a
// SELECT (or WITH ... SELECT) runs as is in extended mode; anything else is a
// WHERE condition over target.
func BuildSearchQuery(target, query string, limit int) (string, error) {
	target = strings.TrimSpace(target)
	query = strings.TrimSpace(query)
	if isFullQuery(query) {
		return NewExtendedQueryBuilder(target).BuildRawQuery(query, limit)
	}
	if target == "" {
		return "", fmt.Errorf("%w: condition queries need a target table", ErrInvalidQuery)
	}
	sql := "SELECT * FROM " + target
	if query != "" {
		sql += " WHERE (" + query + ")"
	}
	return NewQueryBuilder(target).BuildRawQuery(sql, limit)
}

func isFullQuery(query string) bool {
	upper := strings.ToUpper(query)
	return strings.HasPrefix(upper, "SELECT ") || strings.HasPrefix(upper, "WITH ")
}

// BuildRawQuery parses, validates, and adds LIMIT to a SQL query.
func (qb *QueryBuilder) BuildRawQuery(rawSQL string, limit int) (string, error) {
	const placeholder = "___ESCAPED_QUOTE___"
	processedSQL := strings.ReplaceAll(rawSQL, "''", placeholder)

	parser := clickhouseparser.NewParser(processedSQL)
	stmts, err := parser.ParseStmts()
	if err != nil {
		return "", fmt.Errorf("%w: invalid SQL syntax: %w", ErrInvalidQuery, err)
	}

	if len(stmts) == 0 {
		return "", fmt.Errorf("%w: no SQL statements found", ErrInvalidQuery)
	}
	if len(stmts) > 1 {
		return "", fmt.Errorf("%w: multiple SQL statements are not supported", ErrInvalidQuery)
	}

	stmt := stmts[0]
	selectQuery, ok := stmt.(*clickhouseparser.SelectQuery)
	if !ok {
		return "", fmt.Errorf("only SELECT queries are supported: %w", ErrInvalidQuery)
	}

	if qb.mode == RestrictedMode && qb.tableName != "" {
		if err := qb.validateTableReference(selectQuery); err != nil {
			return "", err
		}
	}

	if limit > 0 {
		ensureLimit(selectQuery, limit)
	}

	result := stmt.String()
	result = strings.ReplaceAll(result, placeholder, "''")
	return result, nil
}

// validateTableReference checks that FROM names the expected table.
func (qb *QueryBuilder) validateTableReference(stmt *clickhouseparser.SelectQuery) error {
	if stmt.From == nil || stmt.From.Expr == nil {
		return fmt.Errorf("%w: missing FROM clause", ErrInvalidQuery)
	}

	expectedDB, expectedTable := "", qb.tableName
	if parts := strings.Split(qb.tableName, "."); len(parts) == 2 {
		expectedDB, expectedTable = parts[0], parts[1]
	}

	var tableID *clickhouseparser.TableIdentifier

	switch expr := stmt.From.Expr.(type) {
	case *clickhouseparser.JoinTableExpr:
		if expr.Table == nil || expr.Table.Expr == nil {
			return fmt.Errorf("%w: invalid table expression in FROM clause", ErrInvalidQuery)
		}
		switch tableExpr := expr.Table.Expr.(type) {
		case *clickhouseparser.TableIdentifier:
			tableID = tableExpr
		case *clickhouseparser.AliasExpr:
			if tid, ok := tableExpr.Expr.(*clickhouseparser.TableIdentifier); ok {
				tableID = tid
			}
		}
	case *clickhouseparser.TableExpr:
		if expr.Expr == nil {
			return fmt.Errorf("%w: invalid table expression in FROM clause", ErrInvalidQuery)
		}
		if tid, ok := expr.Expr.(*clickhouseparser.TableIdentifier); ok {
			tableID = tid
		}
	case *clickhouseparser.JoinExpr:
		return fmt.Errorf("%w: JOIN clauses are not allowed in condition queries", ErrInvalidQuery)
	default:
		return fmt.Errorf("%w: unsupported FROM clause type: %T", ErrInvalidQuery, expr)
	}

	if tableID == nil {
		return fmt.Errorf("%w: could not identify table in FROM clause", ErrInvalidQuery)
	}
	return validateTableIdentifier(tableID, expectedDB, expectedTable)
}

func validateTableIdentifier(tableID *clickhouseparser.TableIdentifier, expectedDB, expectedTable string) error {
	if tableID.Table == nil {
		return fmt.Errorf("%w: invalid table identifier", ErrInvalidQuery)
	}
	tableName := tableID.Table.String()

	if tableID.Database != nil {
		dbName := tableID.Database.String()
		if expectedDB != "" && dbName != expectedDB {
			return fmt.Errorf("%w: invalid database reference '%s' (expected '%s')", ErrInvalidQuery, dbName, expectedDB)
		}
		if tableName != expectedTable {
			return fmt.Errorf("%w: invalid table reference '%s.%s' (expected '%s')", ErrInvalidQuery, dbName, tableName, expectedTable)
		}
	} else if tableName != expectedTable {
		return fmt.Errorf("%w: invalid table reference '%s' (expected '%s')", ErrInvalidQuery, tableName, qualified(expectedDB, expectedTable))
	}
	return nil
}

func qualified(db, table string) string {
	if db == "" {
		return table
	}
	return db + "." + table
}

// ensureLimit adds or replaces the LIMIT clause.
func ensureLimit(stmt *clickhouseparser.SelectQuery, limit int) {
	stmt.Limit = &clickhouseparser.LimitClause{
		Limit: &clickhouseparser.NumberLiteral{Literal: fmt.Sprintf("%d", limit)},
	}
}
