// Package account implements the asset-account binding engine. Every asset
// maps to exactly one deterministically derived account address; the address
// is computable before the account exists and never changes. Creation runs
// through a batch executor so the account is created and initialized as one
// unit, and signature checks fail closed against undeployed accounts.
package account

import (
	"context"
	"fmt"
	"sync"

	"licbind/internal/chain"
	"licbind/internal/errors"
	"licbind/internal/infrastructure"
	"licbind/pkg/contracts/domain"
)

// MagicValue is the exact four-byte value a bound account returns to accept
// a signature. Anything else, including errors, is rejection.
var MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// OwnershipOracle answers who currently controls an asset on its home
// collection.
type OwnershipOracle interface {
	OwnerOf(ctx context.Context, asset domain.AssetRef) (chain.Address, error)
}

// DeploymentRegistry tracks which derived account addresses have a live
// account behind them.
type DeploymentRegistry interface {
	Exists(ctx context.Context, account chain.Address) (bool, error)
}

// Call is one step of an atomic batch.
type Call struct {
	Target chain.Address
	Method string
	Data   []byte
}

// BatchExecutor applies a batch of calls as a single unit: either every call
// takes effect or none do.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, calls []Call) error
}

// SignatureValidator asks a deployed account whether it accepts a signature
// over a digest. A returned magic value of MagicValue means acceptance.
type SignatureValidator interface {
	IsValidSignature(ctx context.Context, account chain.Address, digest chain.Hash, signature []byte) ([4]byte, error)
}

// Params holds the fixed derivation inputs. All four addresses must be
// non-zero; they are part of every derived address.
type Params struct {
	Registry       chain.Address
	ProxyTemplate  chain.Address
	Implementation chain.Address
	Executor       chain.Address
	Salt           string
	ChainID        uint64
}

// Binder derives, creates and queries asset-bound accounts.
type Binder struct {
	params Params

	oracle    OwnershipOracle
	deploys   DeploymentRegistry
	executor  BatchExecutor
	validator SignatureValidator

	// Serializes the existence re-check and the creation batch.
	mu sync.Mutex
}

// NewBinder wires a Binder to its substrate collaborators.
func NewBinder(params Params, oracle OwnershipOracle, deploys DeploymentRegistry, executor BatchExecutor, validator SignatureValidator) (*Binder, error) {
	for _, a := range []struct {
		name string
		addr chain.Address
	}{
		{"registry", params.Registry},
		{"proxy template", params.ProxyTemplate},
		{"implementation", params.Implementation},
		{"executor", params.Executor},
	} {
		if a.addr.IsZero() {
			return nil, fmt.Errorf("binder %s address must not be zero", a.name)
		}
	}
	if params.Salt == "" {
		return nil, fmt.Errorf("binder salt must not be empty")
	}
	if params.ChainID == 0 {
		return nil, fmt.Errorf("binder chain id must not be zero")
	}
	return &Binder{
		params:    params,
		oracle:    oracle,
		deploys:   deploys,
		executor:  executor,
		validator: validator,
	}, nil
}

// DeriveAddress computes the account address bound to an asset. The
// derivation is a pure function of the fixed params and the asset reference;
// it involves no state and no I/O.
func (b *Binder) DeriveAddress(asset domain.AssetRef) chain.Address {
	saltHash := chain.Keccak256([]byte(b.params.Salt), asset.Encode())
	codeHash := chain.Keccak256(b.params.ProxyTemplate[:], b.params.Implementation[:])
	chainWord := chain.Uint64Word(b.params.ChainID)

	sum := chain.Keccak256(
		[]byte{0xff},
		b.params.Registry[:],
		chainWord[:],
		saltHash[:],
		codeHash[:],
	)

	var addr chain.Address
	copy(addr[:], sum[12:])
	return addr
}

// IsDeployed reports whether the asset's derived account exists.
func (b *Binder) IsDeployed(ctx context.Context, asset domain.AssetRef) (bool, error) {
	return b.deploys.Exists(ctx, b.DeriveAddress(asset))
}

// Create deploys the bound account for an asset on behalf of its current
// owner. The caller must control the asset, and the account must not exist
// yet. Creation and initialization are one atomic batch: no half-initialized
// account is ever observable.
func (b *Binder) Create(ctx context.Context, asset domain.AssetRef, caller chain.Address) (chain.Address, error) {
	if err := asset.Validate(); err != nil {
		return chain.ZeroAddress, err
	}

	owner, err := b.oracle.OwnerOf(ctx, asset)
	if err != nil {
		return chain.ZeroAddress, fmt.Errorf("ownership lookup: %w", err)
	}
	if owner != caller {
		return chain.ZeroAddress, errors.ErrNotOwner
	}

	addr := b.DeriveAddress(asset)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Re-check under the lock: a concurrent create may have won.
	exists, err := b.deploys.Exists(ctx, addr)
	if err != nil {
		return chain.ZeroAddress, err
	}
	if exists {
		return chain.ZeroAddress, errors.ErrAlreadyDeployed
	}

	if err := b.deploy(ctx, addr, asset); err != nil {
		return chain.ZeroAddress, err
	}

	infrastructure.LoggerWithContext(ctx).Info("bound account created",
		"account", addr.String(),
		"asset", asset.String(),
		"caller", caller.String())
	return addr, nil
}

// GetOrCreate returns the asset's bound account address, deploying the
// account first if it does not exist. Unlike Create it performs no ownership
// check; callers gate access through their own proofs.
func (b *Binder) GetOrCreate(ctx context.Context, asset domain.AssetRef) (chain.Address, bool, error) {
	if err := asset.Validate(); err != nil {
		return chain.ZeroAddress, false, err
	}

	addr := b.DeriveAddress(asset)

	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.deploys.Exists(ctx, addr)
	if err != nil {
		return chain.ZeroAddress, false, err
	}
	if exists {
		return addr, false, nil
	}

	if err := b.deploy(ctx, addr, asset); err != nil {
		return chain.ZeroAddress, false, err
	}

	infrastructure.LoggerWithContext(ctx).Info("bound account created",
		"account", addr.String(),
		"asset", asset.String())
	return addr, true, nil
}

// deploy submits the create+initialize batch. Callers hold b.mu.
func (b *Binder) deploy(ctx context.Context, addr chain.Address, asset domain.AssetRef) error {
	createData := make([]byte, 0, 20+len(asset.Encode()))
	createData = append(createData, addr[:]...)
	createData = append(createData, asset.Encode()...)

	calls := []Call{
		{Target: b.params.Registry, Method: "createAccount", Data: createData},
		{Target: addr, Method: "initialize", Data: b.params.Executor[:]},
	}
	if err := b.executor.ExecuteBatch(ctx, calls); err != nil {
		return fmt.Errorf("account deployment batch: %w", err)
	}
	return nil
}

// SigningDigest is the exact digest a bound account is asked to validate for
// an asset-scoped payload: the personal-message wrap of
// keccak(account || asset || payload). Signers must reproduce this
// construction byte for byte.
func (b *Binder) SigningDigest(asset domain.AssetRef, payload chain.Hash) chain.Hash {
	addr := b.DeriveAddress(asset)
	inner := chain.Keccak256(addr[:], asset.Encode(), payload[:])
	return chain.PersonalDigest(inner)
}

// VerifySignature asks the asset's bound account to validate a signature over
// a payload. It fails closed: an undeployed account, a validator error, or
// any magic value other than MagicValue all mean rejection, never success.
func (b *Binder) VerifySignature(ctx context.Context, asset domain.AssetRef, payload chain.Hash, signature []byte) (bool, error) {
	if err := asset.Validate(); err != nil {
		return false, err
	}

	addr := b.DeriveAddress(asset)
	exists, err := b.deploys.Exists(ctx, addr)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	digest := b.SigningDigest(asset, payload)
	magic, err := b.validator.IsValidSignature(ctx, addr, digest, signature)
	if err != nil {
		// A reverting or malformed validator response is a rejection, not
		// an infrastructure failure.
		infrastructure.LoggerWithContext(ctx).Debug("signature validation rejected",
			"account", addr.String(),
			"error", err.Error())
		return false, nil
	}
	return magic == MagicValue, nil
}
