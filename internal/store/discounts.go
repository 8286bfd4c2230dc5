package store

import (
	"context"
	"errors"
	"fmt"
	"mpgrupo/internal/models"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListDiscounts returns every discount configuration keyed by operator id.
func (s *Store) ListDiscounts(ctx context.Context) (map[string]models.DiscountConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		operadora_id, id,
		base_potencia, base_energia, dd_potencia, dd_energia,
		fe_potencia, fe_energia, dd_fe_potencia, dd_fe_energia,
		desconto_mensal_temporario, duracao_meses_desconto, descricao_desconto_temporario,
		requer_dd, requer_fe, updated_at
		FROM configuracoes_descontos`)
	if err != nil {
		return nil, fmt.Errorf("query discounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.DiscountConfig)
	for rows.Next() {
		var (
			d            models.DiscountConfig
			reqDD, reqFE int
			updated      int64
		)
		if err := rows.Scan(
			&d.OperatorID, &d.ID,
			&d.BasePower, &d.BaseEnergy, &d.DDPower, &d.DDEnergy,
			&d.FEPower, &d.FEEnergy, &d.DDFEPower, &d.DDFEEnergy,
			&d.MonthlyRebate, &d.RebateMonths, &d.RebateDescription,
			&reqDD, &reqFE, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		d.RebateRequiresDD = reqDD != 0
		d.RebateRequiresFE = reqFE != 0
		d.UpdatedAt = unixTime(updated)
		out[d.OperatorID] = d
	}
	return out, rows.Err()
}

// SaveDiscount inserts or replaces the configuration of d.OperatorID, which
// must reference a stored operator.
func (s *Store) SaveDiscount(ctx context.Context, d models.DiscountConfig) (models.DiscountConfig, error) {
	d.OperatorID = strings.TrimSpace(d.OperatorID)
	if d.OperatorID == "" {
		return models.DiscountConfig{}, errors.New("operator id is required")
	}
	if _, err := s.GetOperator(ctx, d.OperatorID); err != nil {
		return models.DiscountConfig{}, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO configuracoes_descontos (
			operadora_id, id,
			base_potencia, base_energia, dd_potencia, dd_energia,
			fe_potencia, fe_energia, dd_fe_potencia, dd_fe_energia,
			desconto_mensal_temporario, duracao_meses_desconto, descricao_desconto_temporario,
			requer_dd, requer_fe, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operadora_id) DO UPDATE SET
			id = excluded.id,
			base_potencia = excluded.base_potencia,
			base_energia = excluded.base_energia,
			dd_potencia = excluded.dd_potencia,
			dd_energia = excluded.dd_energia,
			fe_potencia = excluded.fe_potencia,
			fe_energia = excluded.fe_energia,
			dd_fe_potencia = excluded.dd_fe_potencia,
			dd_fe_energia = excluded.dd_fe_energia,
			desconto_mensal_temporario = excluded.desconto_mensal_temporario,
			duracao_meses_desconto = excluded.duracao_meses_desconto,
			descricao_desconto_temporario = excluded.descricao_desconto_temporario,
			requer_dd = excluded.requer_dd,
			requer_fe = excluded.requer_fe,
			updated_at = excluded.updated_at`,
		d.OperatorID, d.ID,
		d.BasePower, d.BaseEnergy, d.DDPower, d.DDEnergy,
		d.FEPower, d.FEEnergy, d.DDFEPower, d.DDFEEnergy,
		d.MonthlyRebate, d.RebateMonths, d.RebateDescription,
		boolInt(d.RebateRequiresDD), boolInt(d.RebateRequiresFE), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return models.DiscountConfig{}, fmt.Errorf("save discount for %s: %w", d.OperatorID, err)
	}
	return d, nil
}
