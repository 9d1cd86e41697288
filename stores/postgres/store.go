// Package postgres persists templates and issuances in PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"certificate-server/core"
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	thumbnail TEXT NOT NULL DEFAULT '',
	turma_id TEXT,
	orientation TEXT NOT NULL,
	background_image TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL,
	elements JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS issuances (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
	aluno_id TEXT NOT NULL,
	turma_id TEXT NOT NULL DEFAULT '',
	student_name TEXT NOT NULL DEFAULT '',
	issued_at TIMESTAMPTZ NOT NULL,
	UNIQUE (template_id, aluno_id)
);
CREATE TABLE IF NOT EXISTS rooms (
	room_id TEXT PRIMARY KEY,
	last_active BIGINT NOT NULL
);`

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and creates the schema.
func NewStore(ctx context.Context, dsn string) (*pgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse pgx config")
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 3 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect pgx pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping failed")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create postgres schema")
	}
	logrus.Info("Postgres store initialized")
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func now() time.Time {
	// TIMESTAMPTZ keeps microseconds.
	return time.Now().UTC().Truncate(time.Microsecond)
}

func elementsJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return raw
}

const templateColumns = "id, name, thumbnail, turma_id, orientation, background_image, schema_version, elements, created_at, updated_at"

func scanTemplate(row pgx.Row) (*core.Template, error) {
	var (
		t        core.Template
		elements []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Thumbnail, &t.TurmaID, &t.Orientation, &t.BackgroundImage,
		&t.SchemaVersion, &elements, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Elements = json.RawMessage(elements)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *pgStore) List(ctx context.Context) ([]*core.Template, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+templateColumns+" FROM templates ORDER BY created_at DESC, id DESC")
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
	return templates, errors.Wrap(rows.Err(), "list templates")
}

func (s *pgStore) Get(ctx context.Context, id string) (*core.Template, error) {
	log := logrus.WithField("template_id", id)
	t, err := scanTemplate(s.pool.QueryRow(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Template with specified ID not found")
			return nil, errors.Wrapf(core.ErrNotFound, "template with id %s", id)
		}
		log.WithError(err).Error("Failed to retrieve template")
		return nil, errors.Wrap(err, "get template")
	}
	log.Info("Template retrieved successfully")
	return t, nil
}

func (s *pgStore) Create(ctx context.Context, t *core.Template) (string, error) {
	id := ulid.Make().String()
	ts := now()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO templates ("+templateColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		id, t.Name, t.Thumbnail, t.TurmaID, t.Orientation, t.BackgroundImage, t.SchemaVersion, elementsJSON(t.Elements), ts, ts)
	if err != nil {
		logrus.WithError(err).WithField("template_id", id).Error("Failed to create template")
		return "", errors.Wrap(err, "insert template")
	}
	logrus.WithField("template_id", id).Info("Template created successfully")
	return id, nil
}

func (s *pgStore) Update(ctx context.Context, t *core.Template) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET name = $1, thumbnail = $2, turma_id = $3, orientation = $4, background_image = $5,
			schema_version = $6, elements = $7, updated_at = $8 WHERE id = $9`,
		t.Name, t.Thumbnail, t.TurmaID, t.Orientation, t.BackgroundImage, t.SchemaVersion, elementsJSON(t.Elements), now(), t.ID)
	if err != nil {
		return errors.Wrap(err, "update template")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(core.ErrNotFound, "template with id %s", t.ID)
	}
	logrus.WithField("template_id", t.ID).Info("Template updated successfully")
	return nil
}

func (s *pgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM templates WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete template")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(core.ErrNotFound, "template with id %s", id)
	}
	logrus.WithField("template_id", id).Info("Template deleted successfully")
	return nil
}

func (s *pgStore) RecordIssuance(ctx context.Context, issuance *core.Issuance) error {
	if issuance.TemplateID == "" || issuance.StudentID == "" {
		return errors.Wrap(core.ErrInvalidID, "template id and student id are required")
	}
	if issuance.IssuedAt.IsZero() {
		issuance.IssuedAt = now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO issuances (id, template_id, aluno_id, turma_id, student_name, issued_at)
		SELECT $1, id, $3, $4, $5, $6 FROM templates WHERE id = $2
		ON CONFLICT (template_id, aluno_id) DO UPDATE SET
			turma_id = EXCLUDED.turma_id,
			student_name = EXCLUDED.student_name,
			issued_at = EXCLUDED.issued_at
		RETURNING id`,
		ulid.Make().String(), issuance.TemplateID, issuance.StudentID, issuance.TurmaID,
		issuance.StudentName, issuance.IssuedAt).Scan(&issuance.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(core.ErrNotFound, "template with id %s", issuance.TemplateID)
		}
		return errors.Wrap(err, "upsert issuance")
	}
	logrus.WithFields(logrus.Fields{"issuance_id": issuance.ID, "template_id": issuance.TemplateID}).Info("Issuance recorded successfully")
	return nil
}

func (s *pgStore) ListIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, template_id, aluno_id, turma_id, student_name, issued_at
		FROM issuances WHERE template_id = $1 ORDER BY issued_at DESC, id DESC`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, "list issuances")
	}
	issuances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Issuance, error) {
		var i core.Issuance
		err := row.Scan(&i.ID, &i.TemplateID, &i.StudentID, &i.TurmaID, &i.StudentName, &i.IssuedAt)
		i.IssuedAt = i.IssuedAt.UTC()
		return i, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan issuances")
	}
	if issuances == nil {
		issuances = []core.Issuance{}
	}
	return issuances, nil
}

func (s *pgStore) DeleteIssuance(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM issuances WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete issuance")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(core.ErrNotFound, "issuance with id %s", id)
	}
	logrus.WithField("issuance_id", id).Info("Issuance deleted successfully")
	return nil
}

func (s *pgStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (room_id, last_active) VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET last_active = EXCLUDED.last_active`,
		roomID, time.Now().UnixMilli())
	return errors.Wrap(err, "touch room")
}

func (s *pgStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.pool.Query(ctx, "SELECT room_id, last_active FROM rooms ORDER BY last_active DESC, room_id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Room, error) {
		var r core.Room
		err := row.Scan(&r.ID, &r.LastActive)
		return r, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan rooms")
	}
	if rooms == nil {
		rooms = []core.Room{}
	}
	return rooms, nil
}
