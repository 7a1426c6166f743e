package providers

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"text/template"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/timespan"
	"github.com/opensoc/notebooklets/pkg/types"
)

// ClickHouseConfig holds connection settings for the ClickHouse query
// backend.
type ClickHouseConfig struct {
	Addresses []string          `yaml:"addresses"`
	Database  string            `yaml:"database"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Timeout   time.Duration     `yaml:"timeout"`
	Queries   map[string]string `yaml:"queries,omitempty"`
}

// ClickHouse is a QueryProvider backed by a ClickHouse server. Query
// templates are registered by name and expanded with the timespan and
// any bound parameters before execution.
type ClickHouse struct {
	log     logrus.FieldLogger
	conn    driver.Conn
	queries map[string]*template.Template
}

// NewClickHouse opens a connection and registers the configured query
// templates on top of the built-in defaults.
func NewClickHouse(log logrus.FieldLogger, cfg ClickHouseConfig) (*ClickHouse, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("clickhouse: at least one address is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: opening connection: %w", err)
	}

	ch := &ClickHouse{
		log:     log.WithField("component", "clickhouse_provider"),
		conn:    conn,
		queries: make(map[string]*template.Template),
	}

	for name, text := range defaultQueries {
		if err := ch.RegisterQuery(name, text); err != nil {
			return nil, err
		}
	}

	for name, text := range cfg.Queries {
		if err := ch.RegisterQuery(name, text); err != nil {
			return nil, err
		}
	}

	return ch, nil
}

// Name implements Provider.
func (c *ClickHouse) Name() string { return "clickhouse" }

// RegisterQuery adds or replaces a named query template. Templates see
// `.Start`, `.End` and every bound parameter by name.
func (c *ClickHouse) RegisterQuery(name, text string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("clickhouse: parsing query template %q: %w", name, err)
	}

	c.queries[name] = tmpl

	return nil
}

// Query implements QueryProvider. A query matching no rows returns an
// empty table.
func (c *ClickHouse) Query(
	ctx context.Context,
	name string,
	ts timespan.TimeSpan,
	params map[string]any,
) (*types.Table, error) {
	tmpl, ok := c.queries[name]
	if !ok {
		return nil, fmt.Errorf("clickhouse: unknown query %q", name)
	}

	bound := map[string]any{
		"Start": ts.Start.Format("2006-01-02 15:04:05"),
		"End":   ts.End.Format("2006-01-02 15:04:05"),
	}
	for key, val := range params {
		bound[key] = val
	}

	var sql strings.Builder
	if err := tmpl.Execute(&sql, bound); err != nil {
		return nil, fmt.Errorf("clickhouse: expanding query %q: %w", name, err)
	}

	started := time.Now()

	rows, err := c.conn.Query(ctx, sql.String())
	if err != nil {
		return nil, fmt.Errorf("clickhouse: executing query %q: %w", name, err)
	}
	defer rows.Close()

	table := types.NewTable(rows.Columns()...)
	colTypes := rows.ColumnTypes()

	for rows.Next() {
		cells := make([]any, len(colTypes))
		for i, ct := range colTypes {
			cells[i] = reflect.New(ct.ScanType()).Interface()
		}

		if err := rows.Scan(cells...); err != nil {
			return nil, fmt.Errorf("clickhouse: scanning row for query %q: %w", name, err)
		}

		values := make([]any, len(cells))
		for i, cell := range cells {
			values[i] = reflect.ValueOf(cell).Elem().Interface()
		}

		table.Rows = append(table.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: reading rows for query %q: %w", name, err)
	}

	c.log.WithFields(logrus.Fields{
		"query":       name,
		"rows":        table.Len(),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("Query completed")

	return table, nil
}

// Close releases the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

// defaultQueries are the built-in query templates used by the bundled
// notebooklets. Deployments override or extend them via configuration
// to match their own schema.
var defaultQueries = map[string]string{
	"host_heartbeat": `SELECT * FROM heartbeat
WHERE computer = '{{.host_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'
ORDER BY timestamp DESC LIMIT 1`,
	"az_net_topology": `SELECT * FROM az_network_interfaces
WHERE computer = '{{.host_name}}'`,
	"related_alerts": `SELECT * FROM security_alerts
WHERE timestamp BETWEEN '{{.Start}}' AND '{{.End}}'
  AND (entities LIKE '%{{.value}}%' OR compromised_entity = '{{.value}}')`,
	"related_bookmarks": `SELECT * FROM hunting_bookmarks
WHERE timestamp BETWEEN '{{.Start}}' AND '{{.End}}'
  AND entities LIKE '%{{.value}}%'`,
	"host_logons": `SELECT * FROM logon_events
WHERE computer = '{{.host_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"win_security_events": `SELECT * FROM security_events
WHERE computer = '{{.host_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"account_mgmt_events": `SELECT * FROM security_events
WHERE computer = '{{.host_name}}'
  AND event_id IN (4720, 4722, 4723, 4724, 4725, 4726, 4728, 4732, 4756)
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"process_events": `SELECT * FROM process_events
WHERE computer = '{{.host_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"network_flows": `SELECT * FROM network_flows
WHERE (src_ip = '{{.ip_address}}' OR dest_ip = '{{.ip_address}}')
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"ip_heartbeat": `SELECT * FROM heartbeat
WHERE computer_ip = '{{.ip_address}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'
ORDER BY timestamp DESC LIMIT 1`,
	"account_activity": `SELECT * FROM logon_events
WHERE account = '{{.account_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"aad_signins": `SELECT * FROM aad_signin_logs
WHERE user_principal_name = '{{.account_name}}'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"dns_lookups_url": `SELECT * FROM dns_events
WHERE query LIKE '%{{.domain}}%'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"url_network_events": `SELECT * FROM network_flows
WHERE remote_url LIKE '%{{.url}}%'
  AND timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
	"alerts_window": `SELECT * FROM security_alerts
WHERE timestamp BETWEEN '{{.Start}}' AND '{{.End}}'`,
}
