package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/holiman/uint256"

	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/pkg/contracts/domain"
)

// MemoryStore is an in-memory Store implementation guarded by a single
// mutex, matching the strictly serialized ledger model.
type MemoryStore struct {
	mu sync.Mutex

	nextTokenID uint64
	tokens      map[uint64]domain.LicenseToken
	terms       map[uint64]domain.LicenseTerms
	bitmap      map[BitmapKey]*uint256.Int
	offers      map[chain.Hash]domain.Offer
	offerOrder  []chain.Hash

	root         chain.Hash
	openEnabled  bool
	metadataBase string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextTokenID: 1,
		tokens:      make(map[uint64]domain.LicenseToken),
		terms:       make(map[uint64]domain.LicenseTerms),
		bitmap:      make(map[BitmapKey]*uint256.Int),
		offers:      make(map[chain.Hash]domain.Offer),
	}
}

func (s *MemoryStore) InsertToken(ctx context.Context, token domain.LicenseToken, terms domain.LicenseTerms) (uint64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextTokenID == math.MaxUint64 {
		return 0, apperrors.ErrIDSpaceExhausted
	}

	id := s.nextTokenID
	s.nextTokenID++

	token.TokenID = id
	s.tokens[id] = token
	s.terms[id] = terms
	return id, nil
}

func (s *MemoryStore) GetToken(ctx context.Context, tokenID uint64) (domain.LicenseToken, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenID]
	return t, ok, nil
}

func (s *MemoryStore) GetTerms(ctx context.Context, tokenID uint64) (domain.LicenseTerms, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[tokenID]
	return t, ok, nil
}

func (s *MemoryStore) TokenCount(ctx context.Context) (uint64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.tokens)), nil
}

func (s *MemoryStore) TestAndSetBit(ctx context.Context, key BitmapKey, bit uint8) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	word, ok := s.bitmap[key]
	if !ok {
		word = uint256.NewInt(0)
		s.bitmap[key] = word
	}

	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	if !new(uint256.Int).And(word, mask).IsZero() {
		return true, nil
	}
	word.Or(word, mask)
	return false, nil
}

func (s *MemoryStore) GetBit(ctx context.Context, key BitmapKey, bit uint8) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	word, ok := s.bitmap[key]
	if !ok {
		return false, nil
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	return !new(uint256.Int).And(word, mask).IsZero(), nil
}

func (s *MemoryStore) ClearBit(ctx context.Context, key BitmapKey, bit uint8) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	word, ok := s.bitmap[key]
	if !ok {
		return nil
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	word.And(word, new(uint256.Int).Not(mask))
	return nil
}

func (s *MemoryStore) PutOffer(ctx context.Context, offer domain.Offer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[offer.ID]; exists {
		return fmt.Errorf("offer %s already exists", offer.ID)
	}
	s.offers[offer.ID] = offer
	s.offerOrder = append(s.offerOrder, offer.ID)
	return nil
}

func (s *MemoryStore) GetOffer(ctx context.Context, id chain.Hash) (domain.Offer, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	return o, ok, nil
}

func (s *MemoryStore) UpdateOffer(ctx context.Context, offer domain.Offer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[offer.ID]; !exists {
		return fmt.Errorf("offer %s not found", offer.ID)
	}
	s.offers[offer.ID] = offer
	return nil
}

func (s *MemoryStore) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Offer, 0, len(s.offerOrder))
	for _, id := range s.offerOrder {
		out = append(out, s.offers[id])
	}
	return out, nil
}

func (s *MemoryStore) AllowlistRoot(ctx context.Context) (chain.Hash, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root, nil
}

func (s *MemoryStore) SetAllowlistRoot(ctx context.Context, root chain.Hash) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	return nil
}

func (s *MemoryStore) OpenMintEnabled(ctx context.Context) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openEnabled, nil
}

func (s *MemoryStore) SetOpenMintEnabled(ctx context.Context, enabled bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openEnabled = enabled
	return nil
}

func (s *MemoryStore) MetadataBase(ctx context.Context) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataBase, nil
}

func (s *MemoryStore) SetMetadataBase(ctx context.Context, base string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataBase = base
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
