// Package ledger provides an in-process execution substrate for the binding
// engine: asset ownership records, deployed bound accounts, an atomic batch
// applier and account-side signature validation backed by ed25519 keys. It
// stands in for the external chain in local runs and tests.
package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"licbind/internal/account"
	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

// Keypair is an ed25519 signing identity with its derived address.
type Keypair struct {
	Address chain.Address
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Sign produces a signature over a digest for the binding engine's
// validation path.
func (k *Keypair) Sign(digest chain.Hash) []byte {
	return ed25519.Sign(k.private, digest[:])
}

type boundAccount struct {
	asset       domain.AssetRef
	executor    chain.Address
	initialized bool
}

// Ledger is the in-process substrate. A single mutex serializes all state
// transitions, matching the strictly serialized execution model the binding
// engine assumes.
type Ledger struct {
	mu sync.Mutex

	owners   map[string]chain.Address
	keys     map[chain.Address]ed25519.PublicKey
	accounts map[chain.Address]*boundAccount
}

var (
	_ account.OwnershipOracle    = (*Ledger)(nil)
	_ account.DeploymentRegistry = (*Ledger)(nil)
	_ account.BatchExecutor      = (*Ledger)(nil)
	_ account.SignatureValidator = (*Ledger)(nil)
)

// NewLedger creates an empty substrate.
func NewLedger() *Ledger {
	return &Ledger{
		owners:   make(map[string]chain.Address),
		keys:     make(map[chain.Address]ed25519.PublicKey),
		accounts: make(map[chain.Address]*boundAccount),
	}
}

// CreateKeypair generates a signing identity and registers its public key so
// accounts can validate signatures from the derived address.
func (l *Ledger) CreateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	sum := chain.Keccak256(pub)
	var addr chain.Address
	copy(addr[:], sum[12:])

	l.mu.Lock()
	l.keys[addr] = pub
	l.mu.Unlock()

	return &Keypair{Address: addr, Public: pub, private: priv}, nil
}

// SetOwner records the current controller of an asset.
func (l *Ledger) SetOwner(asset domain.AssetRef, owner chain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[asset.String()] = owner
}

// OwnerOf implements account.OwnershipOracle.
func (l *Ledger) OwnerOf(_ context.Context, asset domain.AssetRef) (chain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[asset.String()]
	if !ok {
		return chain.ZeroAddress, fmt.Errorf("no ownership record for asset %s", asset)
	}
	return owner, nil
}

// Exists implements account.DeploymentRegistry. Only fully initialized
// accounts count as deployed.
func (l *Ledger) Exists(_ context.Context, addr chain.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	return ok && acct.initialized, nil
}

// ExecuteBatch implements account.BatchExecutor. The batch is applied to a
// staged copy of the account set and committed only if every call succeeds;
// a failing call leaves the ledger exactly as it was.
func (l *Ledger) ExecuteBatch(_ context.Context, calls []account.Call) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[chain.Address]*boundAccount, len(l.accounts))
	for addr, acct := range l.accounts {
		copied := *acct
		staged[addr] = &copied
	}

	for i, call := range calls {
		if err := l.applyCall(staged, call); err != nil {
			return fmt.Errorf("batch call %d (%s): %w", i, call.Method, err)
		}
	}

	l.accounts = staged
	return nil
}

func (l *Ledger) applyCall(staged map[chain.Address]*boundAccount, call account.Call) error {
	switch call.Method {
	case "createAccount":
		if len(call.Data) < 20 {
			return fmt.Errorf("malformed createAccount data")
		}
		var addr chain.Address
		copy(addr[:], call.Data[:20])
		asset, err := domain.DecodeAssetRef(call.Data[20:])
		if err != nil {
			return err
		}
		if _, exists := staged[addr]; exists {
			return fmt.Errorf("account %s already exists", addr)
		}
		staged[addr] = &boundAccount{asset: asset}
		return nil

	case "initialize":
		acct, ok := staged[call.Target]
		if !ok {
			return fmt.Errorf("account %s does not exist", call.Target)
		}
		if acct.initialized {
			return fmt.Errorf("account %s already initialized", call.Target)
		}
		if len(call.Data) != 20 {
			return fmt.Errorf("malformed initialize data")
		}
		copy(acct.executor[:], call.Data)
		acct.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown method %q", call.Method)
	}
}

// IsValidSignature implements account.SignatureValidator. The bound account
// delegates to the current owner of its asset: the signature is accepted when
// it verifies against the owner's registered key. A missing account, owner or
// key is an error, which callers treat as rejection.
func (l *Ledger) IsValidSignature(_ context.Context, addr chain.Address, digest chain.Hash, signature []byte) ([4]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[addr]
	if !ok || !acct.initialized {
		return [4]byte{}, fmt.Errorf("account %s not deployed", addr)
	}

	owner, ok := l.owners[acct.asset.String()]
	if !ok {
		return [4]byte{}, fmt.Errorf("no ownership record for asset %s", acct.asset)
	}

	pub, ok := l.keys[owner]
	if !ok {
		return [4]byte{}, fmt.Errorf("no key registered for owner %s", owner)
	}

	if !ed25519.Verify(pub, digest[:], signature) {
		// Rejection without error: the account answered, the answer is no.
		return [4]byte{}, nil
	}
	return account.MagicValue, nil
}

// AccountAsset returns the asset a deployed account is bound to, for
// introspection in tests and read APIs.
func (l *Ledger) AccountAsset(addr chain.Address) (domain.AssetRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok {
		return domain.AssetRef{}, false
	}
	return acct.asset, true
}
