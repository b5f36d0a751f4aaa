package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/smt"
	"github.com/certen/statechain-entity/pkg/store"
)

// Store is the production StateStore: the seven relational entities
// live in Postgres via Client; the Smt logical table is delegated to
// a cometbft-db-backed smt.KVStore exactly as SPEC_FULL.md §4.7
// grounds it, independent of which relational backend the rest of the
// StateStore uses.
type Store struct {
	*smt.KVStore
	client *Client
	q      querier // c.write by default; a *sql.Tx when bound by WithTx
}

// New constructs a pgstore.Store. smtDB is typically a
// dbm.NewGoLevelDB in production, dbm.NewMemDB in integration tests
// that still want the Postgres relational layer exercised.
func New(client *Client, smtDB dbm.DB) *Store {
	return &Store{
		KVStore: smt.NewKVStore(smtDB),
		client:  client,
		q:       client.write,
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

// WithTx opens a *sql.Tx on the write pool and binds a derived Store
// to it so every entity call fn makes runs inside the same
// transaction, per §4.4's "all-or-nothing under one store transaction"
// requirement.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.StateStore) error) error {
	sqlTx, err := s.client.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	bound := &Store{KVStore: s.KVStore, client: s.client, q: sqlTx}
	if err := fn(ctx, bound); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// UserSession
// ----------------------------------------------------------------------------

type userSessionJSON struct {
	ProofKey      []byte       `json:"proof_key"`
	StateChainID  *uuid.UUID   `json:"state_chain_id,omitempty"`
	TxBackup      []byte       `json:"tx_backup,omitempty"`
	TxWithdraw    []byte       `json:"tx_withdraw,omitempty"`
	SigHash       []byte       `json:"sig_hash,omitempty"`
	WithdrawSCSig *entryJSON   `json:"withdraw_sc_sig,omitempty"`
	S2            *bigIntJSON  `json:"s2,omitempty"`
	Theta         *bigIntJSON  `json:"theta,omitempty"`
}

func (s *Store) GetUserSession(ctx context.Context, id uuid.UUID) (*store.UserSession, error) {
	var auth string
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT auth, data FROM user_sessions WHERE id = $1`, id).Scan(&auth, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user session: %w", err)
	}
	var j userSessionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode user session: %w", err)
	}
	return &store.UserSession{
		ID:            id,
		Auth:          auth,
		ProofKey:      j.ProofKey,
		StateChainID:  j.StateChainID,
		TxBackup:      j.TxBackup,
		TxWithdraw:    j.TxWithdraw,
		SigHash:       j.SigHash,
		WithdrawSCSig: j.WithdrawSCSig.toEntry(),
		S2:            j.S2.toBigInt(),
		Theta:         j.Theta.toBigInt(),
	}, nil
}

func (s *Store) PutUserSession(ctx context.Context, v *store.UserSession) error {
	j := userSessionJSON{
		ProofKey:      v.ProofKey,
		StateChainID:  v.StateChainID,
		TxBackup:      v.TxBackup,
		TxWithdraw:    v.TxWithdraw,
		SigHash:       v.SigHash,
		WithdrawSCSig: entryJSONFrom(v.WithdrawSCSig),
		S2:            bigIntJSONFrom(v.S2),
		Theta:         bigIntJSONFrom(v.Theta),
	}
	data, err := canonicalJSON(j)
	if err != nil {
		return fmt.Errorf("encode user session: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO user_sessions (id, auth, data, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET auth = EXCLUDED.auth, data = EXCLUDED.data, updated_at = now()`,
		v.ID, v.Auth, data)
	if err != nil {
		return fmt.Errorf("put user session: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user session: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// StateChain
// ----------------------------------------------------------------------------

func (s *Store) GetStateChain(ctx context.Context, id uuid.UUID) (*store.StateChain, error) {
	var ownerID uuid.UUID
	var lockedUntil sql.NullTime
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT owner_id, locked_until, data FROM state_chains WHERE id = $1`, id).
		Scan(&ownerID, &lockedUntil, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrStateChainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state chain: %w", err)
	}
	var sc store.StateChain
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode state chain: %w", err)
	}
	sc.ID = id
	sc.OwnerID = ownerID
	sc.LockedUntil = lockedUntil.Time
	return &sc, nil
}

func (s *Store) PutStateChain(ctx context.Context, v *store.StateChain) error {
	data, err := canonicalJSON(v)
	if err != nil {
		return fmt.Errorf("encode state chain: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO state_chains (id, owner_id, locked_until, data, updated_at) VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, locked_until = EXCLUDED.locked_until,
			data = EXCLUDED.data, updated_at = now()`,
		v.ID, v.OwnerID, v.LockedUntil, data)
	if err != nil {
		return fmt.Errorf("put state chain: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// BackupTx
// ----------------------------------------------------------------------------

func (s *Store) GetBackupTx(ctx context.Context, stateChainID uuid.UUID) (*store.BackupTx, error) {
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT data FROM backup_txs WHERE state_chain_id = $1`, stateChainID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBackupTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backup tx: %w", err)
	}
	var tx []byte
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("decode backup tx: %w", err)
	}
	return &store.BackupTx{StateChainID: stateChainID, Tx: tx}, nil
}

func (s *Store) PutBackupTx(ctx context.Context, v *store.BackupTx) error {
	data, err := canonicalJSON(v.Tx)
	if err != nil {
		return fmt.Errorf("encode backup tx: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO backup_txs (state_chain_id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (state_chain_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		v.StateChainID, data)
	if err != nil {
		return fmt.Errorf("put backup tx: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// EcdsaSession (ecdsa2p.SessionStore)
// ----------------------------------------------------------------------------

func (s *Store) GetEcdsaSession(userID string) (*ecdsa2p.Session, error) {
	ctx := context.Background()
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT data FROM ecdsa_sessions WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrEcdsaSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ecdsa session: %w", err)
	}
	var sess ecdsaSessionJSON
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode ecdsa session: %w", err)
	}
	return sess.toSession(userID), nil
}

func (s *Store) PutEcdsaSession(v *ecdsa2p.Session) error {
	ctx := context.Background()
	data, err := canonicalJSON(ecdsaSessionJSONFrom(v))
	if err != nil {
		return fmt.Errorf("encode ecdsa session: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO ecdsa_sessions (user_id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		v.UserID, data)
	if err != nil {
		return fmt.Errorf("put ecdsa session: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// TransferData
// ----------------------------------------------------------------------------

func (s *Store) GetTransferData(ctx context.Context, stateChainID uuid.UUID) (*store.TransferData, error) {
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT data FROM transfer_data WHERE state_chain_id = $1`, stateChainID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTransferDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer data: %w", err)
	}
	var td store.TransferData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("decode transfer data: %w", err)
	}
	td.StateChainID = stateChainID
	return &td, nil
}

func (s *Store) PutTransferData(ctx context.Context, v *store.TransferData) error {
	data, err := canonicalJSON(v)
	if err != nil {
		return fmt.Errorf("encode transfer data: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO transfer_data (state_chain_id, data) VALUES ($1, $2)`,
		v.StateChainID, data)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return store.ErrTransferDataExists
	}
	if err != nil {
		return fmt.Errorf("put transfer data: %w", err)
	}
	return nil
}

func (s *Store) CompleteTransferData(ctx context.Context, stateChainID uuid.UUID) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE transfer_data SET data = jsonb_set(data, '{Completed}', 'true', true) WHERE state_chain_id = $1`,
		stateChainID)
	if err != nil {
		return fmt.Errorf("complete transfer data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete transfer data: %w", err)
	}
	if n == 0 {
		return store.ErrTransferDataNotFound
	}
	return nil
}

func (s *Store) DeleteTransferData(ctx context.Context, stateChainID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM transfer_data WHERE state_chain_id = $1`, stateChainID)
	if err != nil {
		return fmt.Errorf("delete transfer data: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// TransferBatch
// ----------------------------------------------------------------------------

func (s *Store) GetTransferBatch(ctx context.Context, id uuid.UUID) (*store.TransferBatch, error) {
	var data []byte
	err := s.q.QueryRowContext(ctx, `SELECT data FROM transfer_batches WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTransferBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer batch: %w", err)
	}
	var b store.TransferBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode transfer batch: %w", err)
	}
	b.ID = id
	return &b, nil
}

func (s *Store) PutTransferBatch(ctx context.Context, v *store.TransferBatch) error {
	data, err := canonicalJSON(v)
	if err != nil {
		return fmt.Errorf("encode transfer batch: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO transfer_batches (id, finalized, data, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET finalized = EXCLUDED.finalized, data = EXCLUDED.data, updated_at = now()`,
		v.ID, v.Finalized, data)
	if err != nil {
		return fmt.Errorf("put transfer batch: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Root
// ----------------------------------------------------------------------------

func (s *Store) LatestRoot(ctx context.Context) (*store.Root, error) {
	return s.scanRoot(s.q.QueryRowContext(ctx, `SELECT id, hash, commitment_info FROM roots ORDER BY id DESC LIMIT 1`))
}

// LatestConfirmedRoot implements get_confirmed_smt_root (§4.8): newest
// to oldest, first row with commitment_info set.
func (s *Store) LatestConfirmedRoot(ctx context.Context) (*store.Root, error) {
	return s.scanRoot(s.q.QueryRowContext(ctx,
		`SELECT id, hash, commitment_info FROM roots WHERE commitment_info IS NOT NULL ORDER BY id DESC LIMIT 1`))
}

func (s *Store) scanRoot(row *sql.Row) (*store.Root, error) {
	var id int64
	var hash []byte
	var commitmentInfo []byte
	if err := row.Scan(&id, &hash, &commitmentInfo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRootNotFound
		}
		return nil, fmt.Errorf("scan root: %w", err)
	}
	r := &store.Root{ID: id}
	copy(r.Hash[:], hash)
	if commitmentInfo != nil {
		var ci store.CommitmentInfo
		if err := json.Unmarshal(commitmentInfo, &ci); err != nil {
			return nil, fmt.Errorf("decode commitment info: %w", err)
		}
		r.CommitmentInfo = &ci
	}
	return r, nil
}

func (s *Store) AppendRoot(ctx context.Context, hash [32]byte) (*store.Root, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `INSERT INTO roots (hash) VALUES ($1) RETURNING id`, hash[:]).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("append root: %w", err)
	}
	return &store.Root{ID: id, Hash: hash}, nil
}

func (s *Store) SetRootCommitment(ctx context.Context, hash [32]byte, info store.CommitmentInfo) error {
	data, err := canonicalJSON(info)
	if err != nil {
		return fmt.Errorf("encode commitment info: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE roots SET commitment_info = $1 WHERE hash = $2`, data, hash[:])
	if err != nil {
		return fmt.Errorf("set root commitment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set root commitment: %w", err)
	}
	if n == 0 {
		return store.ErrRootNotFound
	}
	return nil
}

func (s *Store) UnconfirmedRoots(ctx context.Context) ([]store.Root, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, hash FROM roots WHERE commitment_info IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("unconfirmed roots: %w", err)
	}
	defer rows.Close()

	var out []store.Root
	for rows.Next() {
		var r store.Root
		var hash []byte
		if err := rows.Scan(&r.ID, &hash); err != nil {
			return nil, fmt.Errorf("scan unconfirmed root: %w", err)
		}
		copy(r.Hash[:], hash)
		out = append(out, r)
	}
	return out, rows.Err()
}
