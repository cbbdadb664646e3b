package durability

import (
	"context"

	"github.com/jackc/pgx"

	"github.com/meridian-dds/meridian/sdata"
)

const schema = `
CREATE TABLE IF NOT EXISTS whc_samples (
	topic       text NOT NULL,
	seq         bigint NOT NULL,
	key_hash    bytea NOT NULL,
	kind        smallint NOT NULL,
	payload     bytea NOT NULL,
	status      integer NOT NULL,
	ts_nanos    bigint NOT NULL,
	lifespan_ns bigint NOT NULL,
	PRIMARY KEY (topic, seq)
)`

// PersistentStore persists WHC entries to PostgreSQL, the backend for
// the PERSISTENT durability kind: history survives a full deployment
// restart, not just a single writer process.
type PersistentStore struct {
	pool *pgx.ConnPool
}

// OpenPersistent connects to PostgreSQL using cfg and ensures the
// backing table exists.
func OpenPersistent(cfg pgx.ConnConfig, maxConns int) (*PersistentStore, error) {
	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     cfg,
		MaxConnections: maxConns,
	})
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &PersistentStore{pool: pool}, nil
}

// Put implements Store.
func (s *PersistentStore) Put(_ context.Context, topic string, rec Record) error {
	_, err := s.pool.Exec(`
		INSERT INTO whc_samples (topic, seq, key_hash, kind, payload, status, ts_nanos, lifespan_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (topic, seq) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			ts_nanos = EXCLUDED.ts_nanos,
			lifespan_ns = EXCLUDED.lifespan_ns`,
		topic, rec.Seq, rec.KeyHash[:], int16(rec.Kind), rec.Payload, int32(rec.Status), rec.TimestampNanos, rec.LifespanNanos)
	return err
}

// Load implements Store.
func (s *PersistentStore) Load(_ context.Context, topic string) ([]Record, error) {
	rows, err := s.pool.Query(`
		SELECT seq, key_hash, kind, payload, status, ts_nanos, lifespan_ns
		FROM whc_samples WHERE topic = $1 ORDER BY seq ASC`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var kh []byte
		var kind int16
		var status int32
		if err := rows.Scan(&rec.Seq, &kh, &kind, &rec.Payload, &status, &rec.TimestampNanos, &rec.LifespanNanos); err != nil {
			return nil, err
		}
		copy(rec.KeyHash[:], kh)
		rec.Kind = sdata.Kind(kind)
		rec.Status = sdata.StatusInfo(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *PersistentStore) Delete(_ context.Context, topic string, seq int64) error {
	_, err := s.pool.Exec(`DELETE FROM whc_samples WHERE topic = $1 AND seq = $2`, topic, seq)
	return err
}

// Close implements Store.
func (s *PersistentStore) Close() error {
	s.pool.Close()
	return nil
}
