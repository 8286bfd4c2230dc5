package store

import (
	"context"
	"fmt"
	"log"
	"mpgrupo/internal/models"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the initial operator catalogue loaded on an empty database.
type Seed struct {
	Operators []SeedOperator `yaml:"operadoras"`
}

// SeedOperator is one operator with its optional discount configuration.
type SeedOperator struct {
	models.OperatorTariff `yaml:",inline"`
	Discount              *models.DiscountConfig `yaml:"descontos"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML. Every operator needs an id and a name.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	seen := make(map[string]bool, len(s.Operators))
	for i, op := range s.Operators {
		if op.ID == "" || op.Name == "" {
			return Seed{}, fmt.Errorf("seed operator #%d: id and nome are required", i+1)
		}
		if seen[op.ID] {
			return Seed{}, fmt.Errorf("seed operator %q is duplicated", op.ID)
		}
		seen[op.ID] = true
	}
	return s, nil
}

// ApplySeed inserts the seed when the operator table is empty and returns the
// number of operators written. A populated database is left untouched.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (int, error) {
	n, err := s.CountOperators(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[store] %d operators already stored, seed skipped", n)
		return 0, nil
	}

	written := 0
	for _, so := range seed.Operators {
		op, err := s.SaveOperator(ctx, so.OperatorTariff)
		if err != nil {
			return written, fmt.Errorf("seed operator %s: %w", so.ID, err)
		}
		written++
		if so.Discount == nil {
			continue
		}
		d := *so.Discount
		d.OperatorID = op.ID
		if _, err := s.SaveDiscount(ctx, d); err != nil {
			return written, fmt.Errorf("seed discount %s: %w", so.ID, err)
		}
	}
	log.Printf("[store] Seeded %d operators", written)
	return written, nil
}
