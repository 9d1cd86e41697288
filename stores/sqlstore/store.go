// Package sqlstore persists templates, issuances and room activity in a SQL
// database through database/sql. SQLite (modernc.org/sqlite) and MySQL
// (go-sql-driver/mysql) are supported.
package sqlstore

import (
	"certificate-server/core"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLiteStore opens (or creates) the SQLite database at dataSourceName.
func NewSQLiteStore(dataSourceName string) (*sqlStore, error) {
	db, err := openSQLite(dataSourceName)
	if err != nil {
		return nil, err
	}
	return newStore(db, sqliteDialect)
}

// NewMySQLStore connects to MySQL using a go-sql-driver DSN such as
// "user:pass@tcp(localhost:3306)/certificates".
func NewMySQLStore(dsn string) (*sqlStore, error) {
	db, err := openMySQL(dsn)
	if err != nil {
		return nil, err
	}
	return newStore(db, mysqlDialect)
}

func newStore(db *sql.DB, d dialect) (*sqlStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "create %s schema", d.name)
		}
	}
	return &sqlStore{db: db, dialect: d}, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func toNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNull(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func elementsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}

type scanner interface {
	Scan(dest ...any) error
}

const templateColumns = "id, name, thumbnail, turma_id, orientation, background_image, schema_version, elements, created_at, updated_at"

func scanTemplate(row scanner) (*core.Template, error) {
	var (
		t                  core.Template
		thumbnail, bg      sql.NullString
		turmaID            sql.NullString
		elements           string
		createdAt, updated int64
	)
	if err := row.Scan(&t.ID, &t.Name, &thumbnail, &turmaID, &t.Orientation, &bg, &t.SchemaVersion, &elements, &createdAt, &updated); err != nil {
		return nil, err
	}
	t.Thumbnail = thumbnail.String
	t.BackgroundImage = bg.String
	t.TurmaID = fromNull(turmaID)
	t.Elements = json.RawMessage(elements)
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return &t, nil
}

func (s *sqlStore) List(ctx context.Context) ([]*core.Template, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+templateColumns+" FROM templates ORDER BY created_at DESC, id DESC")
	if err != nil {
		logrus.WithError(err).Error("Failed to list templates")
		return nil, errors.Wrap(err, "list templates")
	}
	defer rows.Close()

	templates := []*core.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan template")
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list templates")
	}
	logrus.WithField("count", len(templates)).Debug("Listed templates")
	return templates, nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*core.Template, error) {
	log := logrus.WithField("template_id", id)
	log.Debug("Retrieving template by ID")

	t, err := scanTemplate(s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Template with specified ID not found")
			return nil, errors.Wrapf(core.ErrNotFound, "template with id %s", id)
		}
		log.WithError(err).Error("Failed to retrieve template")
		return nil, errors.Wrap(err, "get template")
	}
	log.Info("Template retrieved successfully")
	return t, nil
}

func (s *sqlStore) Create(ctx context.Context, t *core.Template) (string, error) {
	id := ulid.Make().String()
	now := time.Now().UTC().UnixNano()
	log := logrus.WithFields(logrus.Fields{
		"template_id":    id,
		"elements_bytes": len(t.Elements),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO templates ("+templateColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, t.Name, t.Thumbnail, toNull(t.TurmaID), t.Orientation, t.BackgroundImage, t.SchemaVersion, elementsText(t.Elements), now, now)
	if err != nil {
		log.WithError(err).Error("Failed to create template")
		return "", errors.Wrap(err, "insert template")
	}
	log.Info("Template created successfully")
	return id, nil
}

func (s *sqlStore) Update(ctx context.Context, t *core.Template) error {
	log := logrus.WithField("template_id", t.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, thumbnail = ?, turma_id = ?, orientation = ?, background_image = ?,
			schema_version = ?, elements = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Thumbnail, toNull(t.TurmaID), t.Orientation, t.BackgroundImage,
		t.SchemaVersion, elementsText(t.Elements), time.Now().UTC().UnixNano(), t.ID)
	if err != nil {
		log.WithError(err).Error("Failed to update template")
		return errors.Wrap(err, "update template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero affected rows for an update that changes
		// nothing, so tell that apart from a missing row.
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM templates WHERE id = ?", t.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				log.Warn("Template with specified ID not found")
				return errors.Wrapf(core.ErrNotFound, "template with id %s", t.ID)
			}
			return errors.Wrap(err, "update template")
		}
	}
	log.Info("Template updated successfully")
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	log := logrus.WithField("template_id", id)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		log.WithError(err).Error("Failed to delete template")
		return errors.Wrap(err, "delete template")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "delete template")
	} else if n == 0 {
		log.Warn("Template with specified ID not found")
		return errors.Wrapf(core.ErrNotFound, "template with id %s", id)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM issuances WHERE template_id = ?", id); err != nil {
		return errors.Wrap(err, "delete issuances")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete")
	}
	log.Info("Template deleted successfully")
	return nil
}

func (s *sqlStore) RecordIssuance(ctx context.Context, issuance *core.Issuance) error {
	if issuance.TemplateID == "" || issuance.StudentID == "" {
		return errors.Wrap(core.ErrInvalidID, "template id and student id are required")
	}
	log := logrus.WithFields(logrus.Fields{
		"template_id": issuance.TemplateID,
		"aluno_id":    issuance.StudentID,
	})

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM templates WHERE id = ?", issuance.TemplateID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(core.ErrNotFound, "template with id %s", issuance.TemplateID)
		}
		return errors.Wrap(err, "record issuance")
	}

	if issuance.IssuedAt.IsZero() {
		issuance.IssuedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.upsertIssuance,
		ulid.Make().String(), issuance.TemplateID, issuance.StudentID, issuance.TurmaID,
		issuance.StudentName, issuance.IssuedAt.UnixNano())
	if err != nil {
		log.WithError(err).Error("Failed to record issuance")
		return errors.Wrap(err, "upsert issuance")
	}

	err = s.db.QueryRowContext(ctx, "SELECT id FROM issuances WHERE template_id = ? AND aluno_id = ?",
		issuance.TemplateID, issuance.StudentID).Scan(&issuance.ID)
	if err != nil {
		return errors.Wrap(err, "read issuance id")
	}
	log.WithField("issuance_id", issuance.ID).Info("Issuance recorded successfully")
	return nil
}

func (s *sqlStore) ListIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, aluno_id, turma_id, student_name, issued_at
		FROM issuances WHERE template_id = ? ORDER BY issued_at DESC, id DESC`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, "list issuances")
	}
	defer rows.Close()

	issuances := []core.Issuance{}
	for rows.Next() {
		var (
			i           core.Issuance
			turma, name sql.NullString
			issuedAt    int64
		)
		if err := rows.Scan(&i.ID, &i.TemplateID, &i.StudentID, &turma, &name, &issuedAt); err != nil {
			return nil, errors.Wrap(err, "scan issuance")
		}
		i.TurmaID = turma.String
		i.StudentName = name.String
		i.IssuedAt = time.Unix(0, issuedAt).UTC()
		issuances = append(issuances, i)
	}
	return issuances, errors.Wrap(rows.Err(), "list issuances")
}

func (s *sqlStore) DeleteIssuance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM issuances WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete issuance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete issuance")
	}
	if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "issuance with id %s", id)
	}
	logrus.WithField("issuance_id", id).Info("Issuance deleted successfully")
	return nil
}

func (s *sqlStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.touchRoom, roomID, time.Now().UnixMilli())
	return errors.Wrap(err, "touch room")
}

func (s *sqlStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT room_id, last_active FROM rooms ORDER BY last_active DESC, room_id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}
	defer rows.Close()

	rooms := []core.Room{}
	for rows.Next() {
		var r core.Room
		if err := rows.Scan(&r.ID, &r.LastActive); err != nil {
			return nil, errors.Wrap(err, "scan room")
		}
		rooms = append(rooms, r)
	}
	return rooms, errors.Wrap(rows.Err(), "list rooms")
}
