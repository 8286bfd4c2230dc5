package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mpgrupo/internal/models"
	"time"
)

// InsertLead stores a contact request and returns its id. A zero CreatedAt is
// set to now.
func (s *Store) InsertLead(ctx context.Context, lead models.Lead) (int64, error) {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	var sim sql.NullString
	if lead.Simulation != nil {
		b, err := json.Marshal(lead.Simulation)
		if err != nil {
			return 0, fmt.Errorf("marshal lead simulation: %w", err)
		}
		sim = sql.NullString{String: string(b), Valid: true}
	}

	var (
		attName, attType sql.NullString
		attSize          sql.NullInt64
		attData          []byte
	)
	if a := lead.Attachment; a != nil {
		attName = sql.NullString{String: a.Filename, Valid: true}
		attType = sql.NullString{String: a.ContentType, Valid: true}
		attSize = sql.NullInt64{Int64: a.Size, Valid: true}
		attData = a.Data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `INSERT INTO pedidos_contacto
		(nome, email, telefone, assunto, mensagem, simulacao,
		 anexo_nome, anexo_tipo, anexo_tamanho, anexo_dados, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.Name, lead.Email, lead.Phone, lead.Subject, lead.Message, sim,
		attName, attType, attSize, attData, lead.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert lead: %w", err)
	}
	return res.LastInsertId()
}

// ListLeads returns the newest leads first, without attachment contents.
// limit <= 0 means no limit.
func (s *Store) ListLeads(ctx context.Context, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, nome, email, telefone, assunto, mensagem, simulacao,
		anexo_nome, anexo_tipo, anexo_tamanho, created_at
		FROM pedidos_contacto ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		var (
			l                models.Lead
			sim              sql.NullString
			attName, attType sql.NullString
			attSize          sql.NullInt64
			created          int64
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Subject, &l.Message, &sim,
			&attName, &attType, &attSize, &created); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if sim.Valid {
			var ls models.LeadSimulation
			if err := json.Unmarshal([]byte(sim.String), &ls); err != nil {
				return nil, fmt.Errorf("decode simulation of lead %d: %w", l.ID, err)
			}
			l.Simulation = &ls
		}
		if attName.Valid {
			l.Attachment = &models.Attachment{
				Filename:    attName.String,
				ContentType: attType.String,
				Size:        attSize.Int64,
			}
		}
		l.CreatedAt = unixTime(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LeadAttachment returns the file uploaded with lead id, or ErrNotFound when
// the lead does not exist or has no attachment.
func (s *Store) LeadAttachment(ctx context.Context, id int64) (models.Attachment, error) {
	var (
		name, typ sql.NullString
		size      sql.NullInt64
		data      []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT anexo_nome, anexo_tipo, anexo_tamanho, anexo_dados
		FROM pedidos_contacto WHERE id = ?`, id).Scan(&name, &typ, &size, &data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !name.Valid) {
		return models.Attachment{}, ErrNotFound
	}
	if err != nil {
		return models.Attachment{}, fmt.Errorf("get attachment of lead %d: %w", id, err)
	}
	return models.Attachment{
		Filename:    name.String,
		ContentType: typ.String,
		Size:        size.Int64,
		Data:        data,
	}, nil
}

// PurgeLeadsBefore deletes leads created before t and returns how many were removed.
func (s *Store) PurgeLeadsBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM pedidos_contacto WHERE created_at < ?`, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge leads: %w", err)
	}
	return res.RowsAffected()
}
