package postgres

import (
	"database/sql"
	"math"
	"strings"

	_ "github.com/lib/pq"
)

const (
	createReadingsStmt     = `CREATE TABLE IF NOT EXISTS readings(measurement text, tag text, value double precision, metadata text, timestamp text);`
	createStateChangesStmt = `CREATE TABLE IF NOT EXISTS state_changes(old_state text, new_state text, timestamp text);`
	limit                  = 100
)

// Reading is one time-series point. Timestamp is RFC3339 text.
type Reading struct {
	Measurement string  `json:"measurement"`
	Tag         string  `json:"tag"`
	Value       float64 `json:"value"`
	Metadata    string  `json:"metadata"`
	Timestamp   string  `json:"timestamp"`
}

// StateChange is one observed heater state transition.
type StateChange struct {
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
	Timestamp string `json:"timestamp"`
}

type Client struct {
	sqlDB *sql.DB
}

func NewPostgresClient(databaseURL string) (Client, error) {
	postgresClient := Client{}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return postgresClient, err
	}
	postgresClient.sqlDB = db

	for _, stmt := range []string{createReadingsStmt, createStateChangesStmt} {
		if _, err := db.Exec(stmt); err != nil {
			return postgresClient, err
		}
	}
	return postgresClient, nil
}

func (c *Client) WriteReading(r Reading) error {
	stmt := "INSERT INTO readings(measurement, tag, value, metadata, timestamp) VALUES($1, $2, $3, $4, $5)"
	_, err := c.sqlDB.Exec(stmt, r.Measurement, r.Tag, r.Value, r.Metadata, r.Timestamp)
	return err
}

func (c *Client) WriteStateChange(s StateChange) error {
	stmt := "INSERT INTO state_changes(old_state, new_state, timestamp) VALUES($1, $2, $3)"
	_, err := c.sqlDB.Exec(stmt, s.OldState, s.NewState, s.Timestamp)
	return err
}

// GetReadings returns one page of readings for a measurement, newest first.
// Pass "all" to page across every measurement. Also returns the total
// number of pages.
func (c *Client) GetReadings(measurement string, page int) ([]Reading, int, error) {
	if page < 1 {
		page = 1
	}
	offset := limit * (page - 1)

	var rows *sql.Rows
	var countRow *sql.Row
	var err error
	numPages := 0
	if strings.ToLower(measurement) == "all" {
		stmt := "SELECT * FROM readings ORDER by timestamp DESC LIMIT $1 OFFSET $2"
		rows, err = c.sqlDB.Query(stmt, limit, offset)
		countRow = c.sqlDB.QueryRow("SELECT COUNT(*) FROM readings")
	} else {
		stmt := `SELECT * FROM readings WHERE measurement = $1 ORDER by timestamp DESC LIMIT $2 OFFSET $3`
		rows, err = c.sqlDB.Query(stmt, measurement, limit, offset)
		countRow = c.sqlDB.QueryRow("SELECT COUNT(*) FROM readings WHERE measurement = $1", measurement)
	}

	if err != nil {
		return nil, numPages, err
	}
	defer rows.Close()

	if countRow.Err() != nil {
		return nil, numPages, countRow.Err()
	}

	var count int
	if err := countRow.Scan(&count); err != nil {
		return nil, 0, err
	}
	numPages = int(math.Ceil(float64(count) / float64(limit)))

	var readings []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.Measurement, &r.Tag, &r.Value, &r.Metadata, &r.Timestamp); err != nil {
			return nil, numPages, err
		}
		readings = append(readings, r)
	}
	return readings, numPages, rows.Err()
}

func (c *Client) GetRowCount() (int, error) {
	var count int
	err := c.sqlDB.QueryRow("SELECT COUNT(*) FROM readings").Scan(&count)
	return count, err
}

// GetAllRows returns the full readings table, oldest first, for backups.
func (c *Client) GetAllRows() ([]Reading, error) {
	rows, err := c.sqlDB.Query("SELECT * FROM readings ORDER by timestamp ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.Measurement, &r.Tag, &r.Value, &r.Metadata, &r.Timestamp); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
