package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/sourceswitch/internal/schema"
)

// PostgresClient manages the connection to PostgreSQL
type PostgresClient struct {
	conn *pgx.Conn
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{conn: conn}, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (c *PostgresClient) GetConnection() *pgx.Conn {
	return c.conn
}

// PostgresExtractor reads the physical catalog of a PostgreSQL database.
// Tables and views of every non-system schema are included unless schemas
// narrows the set.
type PostgresExtractor struct {
	client  *PostgresClient
	schemas []string
}

// NewPostgresExtractor creates a new PostgreSQL catalog extractor
func NewPostgresExtractor(client *PostgresClient, schemas []string) *PostgresExtractor {
	return &PostgresExtractor{client: client, schemas: schemas}
}

// ExtractCatalog extracts every table and view with its columns
func (e *PostgresExtractor) ExtractCatalog(ctx context.Context) (*schema.Schema, error) {
	tables, err := e.getTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	for i := range tables {
		columns, err := e.extractColumns(ctx, tables[i].Schema, tables[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s.%s: %w", tables[i].Schema, tables[i].Name, err)
		}
		tables[i].Columns = columns
	}

	return &schema.Schema{Tables: tables}, nil
}

func (e *PostgresExtractor) getTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
			AND table_schema NOT LIKE 'pg_toast%'
			AND table_type IN ('BASE TABLE', 'VIEW')
			AND (cardinality($1::text[]) = 0 OR table_schema = ANY($1))
		ORDER BY table_schema, table_name
	`

	schemas := e.schemas
	if schemas == nil {
		schemas = []string{}
	}

	rows, err := e.client.GetConnection().Query(ctx, query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

func (e *PostgresExtractor) extractColumns(ctx context.Context, schemaName, tableName string) ([]schema.Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetConnection().Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	return columns, rows.Err()
}
