package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mpgrupo/internal/models"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tariffColumn is the JSON shape of operadoras.tarifas.
type tariffColumn struct {
	Simple       *models.SimpleRates    `json:"simples,omitempty"`
	BiHourly     *models.BiHourlyRates  `json:"bi_horario,omitempty"`
	TriHourly    *models.TriHourlyRates `json:"tri_horario,omitempty"`
	PowerCharges map[string]float64     `json:"valor_diario_potencias"`
}

const operatorColumns = `id, nome, logotipo_url, ativa, tarifas, updated_at`

// ListOperators returns every operator ordered by name.
func (s *Store) ListOperators(ctx context.Context) ([]models.OperatorTariff, error) {
	return s.queryOperators(ctx, `SELECT `+operatorColumns+` FROM operadoras ORDER BY nome, id`)
}

// ListActiveOperators returns the operators offered to customers, ordered by name.
func (s *Store) ListActiveOperators(ctx context.Context) ([]models.OperatorTariff, error) {
	return s.queryOperators(ctx, `SELECT `+operatorColumns+` FROM operadoras WHERE ativa = 1 ORDER BY nome, id`)
}

// CountOperators returns the number of stored operators.
func (s *Store) CountOperators(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operadoras`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count operators: %w", err)
	}
	return n, nil
}

// GetOperator returns one operator or ErrNotFound.
func (s *Store) GetOperator(ctx context.Context, id string) (models.OperatorTariff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operadoras WHERE id = ?`, id)
	op, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OperatorTariff{}, ErrNotFound
	}
	if err != nil {
		return models.OperatorTariff{}, fmt.Errorf("get operator %s: %w", id, err)
	}
	return op, nil
}

// SaveOperator inserts op, or updates it when op.ID already exists. An empty
// ID gets a new UUID. The stored record is returned.
func (s *Store) SaveOperator(ctx context.Context, op models.OperatorTariff) (models.OperatorTariff, error) {
	op.Name = strings.TrimSpace(op.Name)
	if op.Name == "" {
		return models.OperatorTariff{}, errors.New("operator name is required")
	}
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.PowerCharges == nil {
		op.PowerCharges = map[string]float64{}
	}
	op.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	rates, err := json.Marshal(tariffColumn{
		Simple:       op.Simple,
		BiHourly:     op.BiHourly,
		TriHourly:    op.TriHourly,
		PowerCharges: op.PowerCharges,
	})
	if err != nil {
		return models.OperatorTariff{}, fmt.Errorf("marshal rates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO operadoras (`+operatorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nome = excluded.nome,
			logotipo_url = excluded.logotipo_url,
			ativa = excluded.ativa,
			tarifas = excluded.tarifas,
			updated_at = excluded.updated_at`,
		op.ID, op.Name, op.LogoURL, boolInt(op.Active), string(rates), op.UpdatedAt.Unix())
	if err != nil {
		return models.OperatorTariff{}, fmt.Errorf("save operator %s: %w", op.ID, err)
	}
	return op, nil
}

// DeleteOperator removes an operator and its discount configuration.
func (s *Store) DeleteOperator(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM configuracoes_descontos WHERE operadora_id = ?`, id); err != nil {
		return fmt.Errorf("delete discount of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM operadoras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete operator %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) queryOperators(ctx context.Context, query string) ([]models.OperatorTariff, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query operators: %w", err)
	}
	defer rows.Close()

	var out []models.OperatorTariff
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOperator(sc scanner) (models.OperatorTariff, error) {
	var (
		op      models.OperatorTariff
		active  int
		rates   string
		updated int64
	)
	if err := sc.Scan(&op.ID, &op.Name, &op.LogoURL, &active, &rates, &updated); err != nil {
		return models.OperatorTariff{}, err
	}

	var tc tariffColumn
	if err := json.Unmarshal([]byte(rates), &tc); err != nil {
		return models.OperatorTariff{}, fmt.Errorf("decode rates of %s: %w", op.ID, err)
	}
	op.Active = active != 0
	op.Simple = tc.Simple
	op.BiHourly = tc.BiHourly
	op.TriHourly = tc.TriHourly
	op.PowerCharges = tc.PowerCharges
	if op.PowerCharges == nil {
		op.PowerCharges = map[string]float64{}
	}
	op.UpdatedAt = unixTime(updated)
	return op, nil
}
