package sqlstore

import (
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// dialect holds the statements that differ between the supported engines.
// Both drivers use ? placeholders.
type dialect struct {
	name   string
	schema []string
	// upsertIssuance inserts an issuance or refreshes the row with the same
	// template and student.
	upsertIssuance string
	touchRoom      string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			thumbnail TEXT,
			turma_id TEXT,
			orientation TEXT NOT NULL,
			background_image TEXT,
			schema_version INTEGER NOT NULL,
			elements TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS issuances (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			aluno_id TEXT NOT NULL,
			turma_id TEXT,
			student_name TEXT,
			issued_at INTEGER NOT NULL,
			UNIQUE (template_id, aluno_id)
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			last_active INTEGER NOT NULL
		);`,
	},
	upsertIssuance: `INSERT INTO issuances (id, template_id, aluno_id, turma_id, student_name, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (template_id, aluno_id) DO UPDATE SET
			turma_id = excluded.turma_id,
			student_name = excluded.student_name,
			issued_at = excluded.issued_at`,
	touchRoom: `INSERT INTO rooms (room_id, last_active) VALUES (?, ?)
		ON CONFLICT (room_id) DO UPDATE SET last_active = excluded.last_active`,
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id VARCHAR(32) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			thumbnail LONGTEXT,
			turma_id VARCHAR(64) NULL,
			orientation VARCHAR(16) NOT NULL,
			background_image LONGTEXT,
			schema_version INT NOT NULL,
			elements LONGTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		) DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS issuances (
			id VARCHAR(32) PRIMARY KEY,
			template_id VARCHAR(32) NOT NULL,
			aluno_id VARCHAR(64) NOT NULL,
			turma_id VARCHAR(64),
			student_name VARCHAR(255),
			issued_at BIGINT NOT NULL,
			UNIQUE KEY uq_issuance (template_id, aluno_id)
		) DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id VARCHAR(64) PRIMARY KEY,
			last_active BIGINT NOT NULL
		) DEFAULT CHARSET=utf8mb4;`,
	},
	upsertIssuance: `INSERT INTO issuances (id, template_id, aluno_id, turma_id, student_name, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			turma_id = VALUES(turma_id),
			student_name = VALUES(student_name),
			issued_at = VALUES(issued_at)`,
	touchRoom: `INSERT INTO rooms (room_id, last_active) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE last_active = VALUES(last_active)`,
}

func openSQLite(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across queries.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "configure sqlite database")
	}
	return db, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create mysql connector")
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxIdleConns(10)
	return db, nil
}
