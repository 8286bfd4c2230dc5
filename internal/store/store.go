// Package store persists operators, discount configurations and leads in a
// local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite handle. Writes are serialised through mu.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the database at path and creates missing tables.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[store] SQLite database opened: %s", path)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operadoras (
			id           TEXT PRIMARY KEY,
			nome         TEXT NOT NULL,
			logotipo_url TEXT NOT NULL DEFAULT '',
			ativa        INTEGER NOT NULL DEFAULT 1,
			tarifas      TEXT NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operadoras_nome ON operadoras(nome)`,

		`CREATE TABLE IF NOT EXISTS configuracoes_descontos (
			operadora_id                  TEXT PRIMARY KEY REFERENCES operadoras(id) ON DELETE CASCADE,
			id                            TEXT NOT NULL,
			base_potencia                 REAL NOT NULL DEFAULT 0,
			base_energia                  REAL NOT NULL DEFAULT 0,
			dd_potencia                   REAL NOT NULL DEFAULT 0,
			dd_energia                    REAL NOT NULL DEFAULT 0,
			fe_potencia                   REAL NOT NULL DEFAULT 0,
			fe_energia                    REAL NOT NULL DEFAULT 0,
			dd_fe_potencia                REAL NOT NULL DEFAULT 0,
			dd_fe_energia                 REAL NOT NULL DEFAULT 0,
			desconto_mensal_temporario    REAL NOT NULL DEFAULT 0,
			duracao_meses_desconto        INTEGER NOT NULL DEFAULT 0,
			descricao_desconto_temporario TEXT NOT NULL DEFAULT '',
			requer_dd                     INTEGER NOT NULL DEFAULT 0,
			requer_fe                     INTEGER NOT NULL DEFAULT 0,
			updated_at                    INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS pedidos_contacto (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			nome          TEXT NOT NULL,
			email         TEXT NOT NULL,
			telefone      TEXT NOT NULL,
			assunto       TEXT NOT NULL,
			mensagem      TEXT NOT NULL DEFAULT '',
			simulacao     TEXT,
			anexo_nome    TEXT,
			anexo_tipo    TEXT,
			anexo_tamanho INTEGER,
			anexo_dados   BLOB,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_created ON pedidos_contacto(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
