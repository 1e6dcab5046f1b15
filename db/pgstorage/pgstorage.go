package pgstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
)

// Unresolved records have an empty nonce and are unique by tx hash instead
const (
	onNonceConflict  = "ON CONFLICT (chain, nonce) WHERE nonce <> ''"
	onTxHashConflict = "ON CONFLICT (chain, tx_hash) WHERE nonce = ''"
)

func conflictTarget(nonce string) string {
	if nonce == "" {
		return onTxHashConflict
	}
	return onNonceConflict
}

const (
	depositColumns  = "chain, nonce, token, amount::TEXT, receiver, sender, intent_account, tx_hash, reference, timestamp, status"
	withdrawColumns = "chain, nonce, token, receiver, amount::TEXT, timestamp, completed, signature, tx_hash, sender, status"
)

// PostgresStorage implements db.Storage on top of a pgx pool
type PostgresStorage struct {
	*pgxpool.Pool
}

// NewPostgresStorage creates a new Storage DB
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	log.Debugf("Create PostgresStorage with host %s:%s db %s", cfg.Host, cfg.Port, cfg.Name)
	config, err := pgxpool.ParseConfig(fmt.Sprintf("%s?pool_max_conns=%d", cfg.url(), maxConns(cfg.MaxConns)))
	if err != nil {
		log.Errorf("Unable to parse DB config: %v", err)
		return nil, err
	}
	db, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("Unable to connect to database: %v", err)
		return nil, err
	}
	return &PostgresStorage{db}, nil
}

func maxConns(n int) int {
	if n <= 0 {
		return 20 //nolint:gomnd
	}
	return n
}

// getExecQuerier determines which execQuerier to use, dbTx or the main pgxpool
func (p *PostgresStorage) getExecQuerier(dbTx pgx.Tx) execQuerier {
	if dbTx != nil {
		return &execQuerierWrapper{dbTx}
	}
	return &execQuerierWrapper{p}
}

// BeginDBTransaction starts a transaction block.
func (p *PostgresStorage) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return p.Begin(ctx)
}

// Commit commits a db transaction.
func (p *PostgresStorage) Commit(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Commit(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// Rollback rollbacks a db transaction.
func (p *PostgresStorage) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Rollback(ctx)
	}
	return gerror.ErrNilDBTransaction
}

func numeric(amount string) string {
	if amount == "" {
		return "0"
	}
	return amount
}

// AddDeposit inserts a deposit or replaces the stored one with the same chain and nonce,
// or the same chain and tx hash while the nonce is empty
func (p *PostgresStorage) AddDeposit(ctx context.Context, deposit *models.PendingDeposit) error {
	return p.AddDepositTx(ctx, deposit, nil)
}

// AddDepositTx is AddDeposit inside an optional db transaction
func (p *PostgresStorage) AddDepositTx(ctx context.Context, d *models.PendingDeposit, dbTx pgx.Tx) error {
	addDepositSQL := `INSERT INTO bridge.deposit (chain, nonce, token, amount, receiver, sender, intent_account, tx_hash, reference, timestamp, status)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9, $10, $11) ` + conflictTarget(d.Nonce) + `
		DO UPDATE SET token = EXCLUDED.token, amount = EXCLUDED.amount, receiver = EXCLUDED.receiver,
		sender = EXCLUDED.sender, intent_account = EXCLUDED.intent_account, tx_hash = EXCLUDED.tx_hash,
		reference = EXCLUDED.reference, timestamp = EXCLUDED.timestamp, status = EXCLUDED.status`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addDepositSQL, int64(d.Chain), d.Nonce, d.Token, numeric(d.Amount), d.Receiver, d.Sender,
		d.IntentAccount, d.TxHash, d.Reference, d.Timestamp, string(d.Status))
	return err
}

func scanDeposit(row pgx.Row) (*models.PendingDeposit, error) {
	var (
		d      models.PendingDeposit
		chain  int64
		status string
	)
	err := row.Scan(&chain, &d.Nonce, &d.Token, &d.Amount, &d.Receiver, &d.Sender, &d.IntentAccount, &d.TxHash, &d.Reference, &d.Timestamp, &status)
	if err != nil {
		return nil, err
	}
	d.Chain = omni.Network(chain)
	d.Status = models.DepositStatus(status)
	return &d, nil
}

// GetDeposit returns the deposit with the given chain and nonce
func (p *PostgresStorage) GetDeposit(ctx context.Context, chain omni.Network, nonce string) (*models.PendingDeposit, error) {
	getDepositSQL := "SELECT " + depositColumns + " FROM bridge.deposit WHERE chain = $1 AND nonce = $2"
	d, err := scanDeposit(p.getExecQuerier(nil).QueryRow(ctx, getDepositSQL, int64(chain), nonce))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	}
	return d, err
}

// UpdateDepositStatus moves a deposit to a new status
func (p *PostgresStorage) UpdateDepositStatus(ctx context.Context, chain omni.Network, nonce string, status models.DepositStatus) error {
	const updateDepositSQL = "UPDATE bridge.deposit SET status = $3 WHERE chain = $1 AND nonce = $2"
	tag, err := p.getExecQuerier(nil).Exec(ctx, updateDepositSQL, int64(chain), nonce, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// ResolveDeposit assigns the nonce of a deposit stored by transaction hash
func (p *PostgresStorage) ResolveDeposit(ctx context.Context, chain omni.Network, txHash, nonce string) error {
	const resolveDepositSQL = "UPDATE bridge.deposit SET nonce = $3, status = $4 WHERE chain = $1 AND tx_hash = $2 AND nonce = ''"
	tag, err := p.getExecQuerier(nil).Exec(ctx, resolveDepositSQL, int64(chain), txHash, nonce, string(models.DepositStatusNonceResolved))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// GetPendingDeposits returns the oldest deposits whose status is not final
func (p *PostgresStorage) GetPendingDeposits(ctx context.Context, limit uint) ([]*models.PendingDeposit, error) {
	getPendingSQL := "SELECT " + depositColumns + ` FROM bridge.deposit WHERE status NOT IN ($1, $2, $3, $4)
		ORDER BY timestamp ASC, nonce ASC, tx_hash ASC`
	args := []interface{}{
		string(models.DepositStatusLedgerCredited), string(models.DepositStatusCleared),
		string(models.DepositStatusAlreadyClaimed), string(models.DepositStatusNotFound),
	}
	if limit > 0 {
		getPendingSQL += " LIMIT $5"
		args = append(args, limit)
	}
	rows, err := p.getExecQuerier(nil).Query(ctx, getPendingSQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deposits := make([]*models.PendingDeposit, 0)
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// AddWithdraw inserts a withdrawal or replaces the stored one with the same chain and nonce
func (p *PostgresStorage) AddWithdraw(ctx context.Context, w *models.PendingWithdraw) error {
	addWithdrawSQL := `INSERT INTO bridge.withdraw (chain, nonce, token, receiver, amount, timestamp, completed, signature, tx_hash, sender, status)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11) ` + conflictTarget(w.Nonce) + `
		DO UPDATE SET token = EXCLUDED.token, receiver = EXCLUDED.receiver, amount = EXCLUDED.amount,
		timestamp = EXCLUDED.timestamp, completed = EXCLUDED.completed, signature = EXCLUDED.signature,
		tx_hash = EXCLUDED.tx_hash, sender = EXCLUDED.sender, status = EXCLUDED.status`
	_, err := p.getExecQuerier(nil).Exec(ctx, addWithdrawSQL, int64(w.Chain), w.Nonce, w.Token, w.Receiver, numeric(w.Amount),
		w.Timestamp, w.Completed, w.Signature, w.TxHash, w.Sender, string(w.Status))
	return err
}

func scanWithdraw(row pgx.Row) (*models.PendingWithdraw, error) {
	var (
		w      models.PendingWithdraw
		chain  int64
		status string
	)
	err := row.Scan(&chain, &w.Nonce, &w.Token, &w.Receiver, &w.Amount, &w.Timestamp, &w.Completed, &w.Signature, &w.TxHash, &w.Sender, &status)
	if err != nil {
		return nil, err
	}
	w.Chain = omni.Network(chain)
	w.Status = models.WithdrawStatus(status)
	return &w, nil
}

// GetWithdraw returns the withdrawal with the given chain and nonce
func (p *PostgresStorage) GetWithdraw(ctx context.Context, chain omni.Network, nonce string) (*models.PendingWithdraw, error) {
	getWithdrawSQL := "SELECT " + withdrawColumns + " FROM bridge.withdraw WHERE chain = $1 AND nonce = $2"
	w, err := scanWithdraw(p.getExecQuerier(nil).QueryRow(ctx, getWithdrawSQL, int64(chain), nonce))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	}
	return w, err
}

// ResolveWithdraw assigns the ledger nonce of a withdrawal stored by transaction hash
func (p *PostgresStorage) ResolveWithdraw(ctx context.Context, chain omni.Network, txHash, nonce string) error {
	const resolveWithdrawSQL = "UPDATE bridge.withdraw SET nonce = $3, status = $4 WHERE chain = $1 AND tx_hash = $2 AND nonce = ''"
	tag, err := p.getExecQuerier(nil).Exec(ctx, resolveWithdrawSQL, int64(chain), txHash, nonce, string(models.WithdrawStatusLedgerNonceAllocated))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// CompleteWithdraw marks a withdrawal as claimed on its destination chain
func (p *PostgresStorage) CompleteWithdraw(ctx context.Context, chain omni.Network, nonce, txHash string) error {
	const completeWithdrawSQL = `UPDATE bridge.withdraw SET completed = TRUE, status = $3,
		tx_hash = CASE WHEN $4 = '' THEN tx_hash ELSE $4 END WHERE chain = $1 AND nonce = $2`
	tag, err := p.getExecQuerier(nil).Exec(ctx, completeWithdrawSQL, int64(chain), nonce, string(models.WithdrawStatusCompleted), txHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// GetPendingWithdraws returns uncompleted withdrawals, filtered by chain and receiver when set
func (p *PostgresStorage) GetPendingWithdraws(ctx context.Context, chain omni.Network, receiver string) ([]*models.PendingWithdraw, error) {
	getPendingSQL := "SELECT " + withdrawColumns + ` FROM bridge.withdraw WHERE NOT completed
		AND ($1 = 0 OR chain = $1) AND ($2 = '' OR receiver = $2) ORDER BY timestamp ASC, nonce ASC, tx_hash ASC`
	rows, err := p.getExecQuerier(nil).Query(ctx, getPendingSQL, int64(chain), receiver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	withdraws := make([]*models.PendingWithdraw, 0)
	for rows.Next() {
		w, err := scanWithdraw(rows)
		if err != nil {
			return nil, err
		}
		withdraws = append(withdraws, w)
	}
	return withdraws, rows.Err()
}
