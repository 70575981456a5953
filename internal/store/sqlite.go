package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"

	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

// SQLiteStore is a durable Store backed by a single sqlite database. A
// process-wide mutex serializes writers on top of sqlite's own locking.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tokens (
	token_id   INTEGER PRIMARY KEY,
	owner      TEXT NOT NULL,
	contract   TEXT NOT NULL,
	asset_id   TEXT NOT NULL,
	chain_id   INTEGER NOT NULL,
	minted_at  INTEGER NOT NULL,
	scope      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS terms (
	token_id    INTEGER PRIMARY KEY,
	issuer      TEXT NOT NULL,
	licensee    TEXT NOT NULL,
	start_time  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	terms_uri   TEXT NOT NULL,
	commercial  INTEGER NOT NULL,
	derivatives INTEGER NOT NULL,
	attribution INTEGER NOT NULL,
	metadata    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bitmap (
	scope    TEXT NOT NULL,
	contract TEXT NOT NULL,
	word     TEXT NOT NULL,
	bits     TEXT NOT NULL,
	PRIMARY KEY (scope, contract, word)
);
CREATE TABLE IF NOT EXISTS offers (
	id            TEXT PRIMARY KEY,
	seq           INTEGER,
	contract      TEXT NOT NULL,
	asset_id      TEXT NOT NULL,
	chain_id      INTEGER NOT NULL,
	expiration    INTEGER NOT NULL,
	creation_time INTEGER NOT NULL,
	valid         INTEGER NOT NULL,
	minted        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (and migrates) a sqlite-backed store at the given DSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	// One writer at a time; the wrapping mutex keeps the pool honest.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertToken(ctx context.Context, token domain.LicenseToken, terms domain.LicenseTerms) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(token_id) FROM tokens`).Scan(&maxID); err != nil {
		return 0, err
	}
	id := uint64(maxID.Int64) + 1

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tokens (token_id, owner, contract, asset_id, chain_id, minted_at, scope)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, token.Owner.String(), token.Asset.Contract.String(), token.Asset.AssetID.Dec(),
		token.Asset.ChainID, token.MintedAt.UnixNano(), string(token.Scope))
	if err != nil {
		return 0, err
	}

	metadata, err := json.Marshal(terms.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode terms metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO terms (token_id, issuer, licensee, start_time, duration_ns, terms_uri, commercial, derivatives, attribution, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, terms.Issuer.String(), terms.Licensee.String(), terms.StartTime.UnixNano(),
		int64(terms.Duration), terms.TermsURI, boolInt(terms.Commercial),
		boolInt(terms.Derivatives), boolInt(terms.Attribution), string(metadata))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) GetToken(ctx context.Context, tokenID uint64) (domain.LicenseToken, bool, error) {
	var (
		token           domain.LicenseToken
		owner, contract string
		assetID, scope  string
		chainID         uint64
		mintedAt        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, contract, asset_id, chain_id, minted_at, scope FROM tokens WHERE token_id = ?`,
		tokenID).Scan(&owner, &contract, &assetID, &chainID, &mintedAt, &scope)
	if err == sql.ErrNoRows {
		return token, false, nil
	}
	if err != nil {
		return token, false, err
	}

	ownerAddr, err := chain.ParseAddress(owner)
	if err != nil {
		return token, false, err
	}
	contractAddr, err := chain.ParseAddress(contract)
	if err != nil {
		return token, false, err
	}
	id, parseErr := uint256.FromDecimal(assetID)
	if parseErr != nil {
		return token, false, parseErr
	}

	token = domain.LicenseToken{
		TokenID:  tokenID,
		Owner:    ownerAddr,
		Asset:    domain.AssetRef{Contract: contractAddr, AssetID: id, ChainID: chainID},
		MintedAt: time.Unix(0, mintedAt).UTC(),
		Scope:    domain.IssuanceScope(scope),
	}
	return token, true, nil
}

func (s *SQLiteStore) GetTerms(ctx context.Context, tokenID uint64) (domain.LicenseTerms, bool, error) {
	var (
		terms                      domain.LicenseTerms
		issuer, licensee           string
		startTime, durationNS      int64
		termsURI, metadata         string
		commercial, derivs, attrib int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT issuer, licensee, start_time, duration_ns, terms_uri, commercial, derivatives, attribution, metadata
		 FROM terms WHERE token_id = ?`, tokenID).
		Scan(&issuer, &licensee, &startTime, &durationNS, &termsURI, &commercial, &derivs, &attrib, &metadata)
	if err == sql.ErrNoRows {
		return terms, false, nil
	}
	if err != nil {
		return terms, false, err
	}

	issuerAddr, err := chain.ParseAddress(issuer)
	if err != nil {
		return terms, false, err
	}
	licenseeAddr, err := chain.ParseAddress(licensee)
	if err != nil {
		return terms, false, err
	}

	terms = domain.LicenseTerms{
		Issuer:      issuerAddr,
		Licensee:    licenseeAddr,
		StartTime:   time.Unix(0, startTime).UTC(),
		Duration:    time.Duration(durationNS),
		TermsURI:    termsURI,
		Commercial:  commercial != 0,
		Derivatives: derivs != 0,
		Attribution: attrib != 0,
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &terms.Metadata); err != nil {
			return terms, false, fmt.Errorf("failed to decode terms metadata: %w", err)
		}
	}
	return terms, true, nil
}

func (s *SQLiteStore) TokenCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) TestAndSetBit(ctx context.Context, key BitmapKey, bit uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	word, err := s.readWordTx(ctx, tx, key)
	if err != nil {
		return false, err
	}

	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	if !new(uint256.Int).And(word, mask).IsZero() {
		return true, nil
	}
	word.Or(word, mask)

	if err := s.writeWordTx(ctx, tx, key, word); err != nil {
		return false, err
	}
	return false, tx.Commit()
}

func (s *SQLiteStore) GetBit(ctx context.Context, key BitmapKey, bit uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	word, err := s.readWordTx(ctx, tx, key)
	if err != nil {
		return false, err
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	return !new(uint256.Int).And(word, mask).IsZero(), nil
}

func (s *SQLiteStore) ClearBit(ctx context.Context, key BitmapKey, bit uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	word, err := s.readWordTx(ctx, tx, key)
	if err != nil {
		return err
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	word.And(word, new(uint256.Int).Not(mask))

	if err := s.writeWordTx(ctx, tx, key, word); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) readWordTx(ctx context.Context, tx *sql.Tx, key BitmapKey) (*uint256.Int, error) {
	var bits string
	err := tx.QueryRowContext(ctx,
		`SELECT bits FROM bitmap WHERE scope = ? AND contract = ? AND word = ?`,
		key.Scope, key.Contract.String(), hex.EncodeToString(key.Word[:])).Scan(&bits)
	if err == sql.ErrNoRows {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(bits)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("corrupt bitmap word for scope %s", key.Scope)
	}
	var arr [32]byte
	copy(arr[:], raw)
	return new(uint256.Int).SetBytes32(arr[:]), nil
}

func (s *SQLiteStore) writeWordTx(ctx context.Context, tx *sql.Tx, key BitmapKey, word *uint256.Int) error {
	b := word.Bytes32()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bitmap (scope, contract, word, bits) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, contract, word) DO UPDATE SET bits = excluded.bits`,
		key.Scope, key.Contract.String(), hex.EncodeToString(key.Word[:]), hex.EncodeToString(b[:]))
	return err
}

func (s *SQLiteStore) PutOffer(ctx context.Context, offer domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offers (id, seq, contract, asset_id, chain_id, expiration, creation_time, valid, minted)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM offers), ?, ?, ?, ?, ?, ?, ?)`,
		offer.ID.String(), offer.Asset.Contract.String(), offer.Asset.AssetID.Dec(),
		offer.Asset.ChainID, offer.Expiration.UnixNano(), offer.CreationTime.UnixNano(),
		boolInt(offer.Valid), boolInt(offer.Minted))
	return err
}

func (s *SQLiteStore) GetOffer(ctx context.Context, id chain.Hash) (domain.Offer, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contract, asset_id, chain_id, expiration, creation_time, valid, minted
		 FROM offers WHERE id = ?`, id.String())
	offer, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return offer, false, nil
	}
	if err != nil {
		return offer, false, err
	}
	return offer, true, nil
}

func (s *SQLiteStore) UpdateOffer(ctx context.Context, offer domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE offers SET valid = ?, minted = ? WHERE id = ?`,
		boolInt(offer.Valid), boolInt(offer.Minted), offer.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("offer %s not found", offer.ID)
	}
	return nil
}

func (s *SQLiteStore) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contract, asset_id, chain_id, expiration, creation_time, valid, minted
		 FROM offers ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, offer)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner) (domain.Offer, error) {
	var (
		offer                 domain.Offer
		id, contract, assetID string
		chainID               uint64
		expiration, created   int64
		valid, minted         int
	)
	if err := row.Scan(&id, &contract, &assetID, &chainID, &expiration, &created, &valid, &minted); err != nil {
		return offer, err
	}

	offerID, err := chain.ParseHash(id)
	if err != nil {
		return offer, err
	}
	contractAddr, err := chain.ParseAddress(contract)
	if err != nil {
		return offer, err
	}
	aid, parseErr := uint256.FromDecimal(assetID)
	if parseErr != nil {
		return offer, parseErr
	}

	offer = domain.Offer{
		ID:           offerID,
		Asset:        domain.AssetRef{Contract: contractAddr, AssetID: aid, ChainID: chainID},
		Expiration:   time.Unix(0, expiration).UTC(),
		CreationTime: time.Unix(0, created).UTC(),
		Valid:        valid != 0,
		Minted:       minted != 0,
	}
	return offer, nil
}

func (s *SQLiteStore) kvGet(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) kvSet(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func (s *SQLiteStore) AllowlistRoot(ctx context.Context) (chain.Hash, error) {
	value, err := s.kvGet(ctx, "allowlist_root")
	if err != nil || value == "" {
		return chain.ZeroHash, err
	}
	return chain.ParseHash(value)
}

func (s *SQLiteStore) SetAllowlistRoot(ctx context.Context, root chain.Hash) error {
	return s.kvSet(ctx, "allowlist_root", root.String())
}

func (s *SQLiteStore) OpenMintEnabled(ctx context.Context) (bool, error) {
	value, err := s.kvGet(ctx, "open_mint_enabled")
	return value == "1", err
}

func (s *SQLiteStore) SetOpenMintEnabled(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.kvSet(ctx, "open_mint_enabled", value)
}

func (s *SQLiteStore) MetadataBase(ctx context.Context) (string, error) {
	return s.kvGet(ctx, "metadata_base")
}

func (s *SQLiteStore) SetMetadataBase(ctx context.Context, base string) error {
	return s.kvSet(ctx, "metadata_base", base)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
