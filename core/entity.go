package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalidID = errors.New("invalid id")
)

type (
	// Issuance records that a certificate was generated for a student from a
	// template. There is at most one issuance per (TemplateID, StudentID).
	Issuance struct {
		ID          string    `json:"id"`
		TemplateID  string    `json:"template_id"`
		StudentID   string    `json:"aluno_id"`
		TurmaID     string    `json:"turma_id,omitempty"`
		StudentName string    `json:"student_name,omitempty"`
		IssuedAt    time.Time `json:"issued_at"`
	}

	IssuanceStore interface {
		// RecordIssuance inserts the issuance or refreshes the existing one for
		// the same template and student. The stored id is written back.
		RecordIssuance(ctx context.Context, issuance *Issuance) error
		ListIssuances(ctx context.Context, templateID string) ([]Issuance, error)
		DeleteIssuance(ctx context.Context, id string) error
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}
)
