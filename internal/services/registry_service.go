// Package services provides the orchestration layer between the HTTP
// transport and the registry core: request validation, parsing into domain
// types, and response shaping.
package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"

	"licbind/internal/account"
	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/internal/infrastructure"
	"licbind/internal/issuance"
	"licbind/internal/registry"
	"licbind/pkg/contracts/domain"
	v1 "licbind/pkg/contracts/api/v1"
)

// RegistryService is the business surface consumed by the HTTP handlers.
type RegistryService interface {
	// Accounts
	CreateAccount(ctx context.Context, req v1.AccountCreateRequest) (*v1.AccountResponse, error)
	GetAccount(ctx context.Context, req v1.AssetRefRequest) (*v1.AccountResponse, error)

	// Minting
	MintAllowlist(ctx context.Context, req v1.AllowlistMintRequest) (*v1.TokenResponse, error)
	MintOffer(ctx context.Context, req v1.OfferMintRequest) (*v1.TokenResponse, error)
	MintOpen(ctx context.Context, req v1.OpenMintRequest) (*v1.TokenResponse, error)

	// Reads
	GetToken(ctx context.Context, tokenID uint64) (*v1.TokenResponse, error)
	GetTerms(ctx context.Context, tokenID uint64) (*v1.TermsResponse, error)
	GetOffer(ctx context.Context, offerID string) (*v1.OfferResponse, error)
	ListOffers(ctx context.Context) ([]v1.OfferResponse, error)
	Status(ctx context.Context) (*v1.RegistryStatusResponse, error)

	// Administration
	SetAllowlistRoot(ctx context.Context, req v1.SetRootRequest) error
	CreateOffer(ctx context.Context, req v1.OfferCreateRequest) (*v1.OfferResponse, error)
	RevokeOffer(ctx context.Context, offerID string) error
	SetOpenMinting(ctx context.Context, req v1.OpenToggleRequest) error
	SetMetadataBase(ctx context.Context, req v1.SetMetadataBaseRequest) error
}

type registryService struct {
	registry  *registry.Registry
	binder    *account.Binder
	allowlist *issuance.AllowlistStrategy
	offers    *issuance.OfferStrategy
	open      *issuance.OpenStrategy
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewRegistryService wires the service to the registry core and the three
// issuance strategies.
func NewRegistryService(
	reg *registry.Registry,
	binder *account.Binder,
	allowlist *issuance.AllowlistStrategy,
	offers *issuance.OfferStrategy,
	open *issuance.OpenStrategy,
	logger *slog.Logger,
) RegistryService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &registryService{
		registry:  reg,
		binder:    binder,
		allowlist: allowlist,
		offers:    offers,
		open:      open,
		validate:  validator.New(),
		logger:    logger.With(slog.String("service", "registry")),
	}
}

// validationProblem wraps a bad-input failure as an RFC 7807 problem.
func validationProblem(detail string) *apperrors.ProblemDetails {
	return apperrors.NewProblemDetails(
		http.StatusBadRequest,
		apperrors.TypeValidation,
		"Validation Failed",
		detail,
		"",
	)
}

func (s *registryService) checkStruct(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return validationProblem(err.Error())
	}
	return nil
}

func parseAssetRef(req v1.AssetRefRequest) (domain.AssetRef, error) {
	contract, err := chain.ParseAddress(req.Contract)
	if err != nil {
		return domain.AssetRef{}, validationProblem(fmt.Sprintf("asset.contract: %v", err))
	}

	var id *uint256.Int
	if strings.HasPrefix(req.AssetID, "0x") {
		id, err = uint256.FromHex(req.AssetID)
	} else {
		id, err = uint256.FromDecimal(req.AssetID)
	}
	if err != nil {
		return domain.AssetRef{}, validationProblem(fmt.Sprintf("asset.asset_id: %v", err))
	}

	asset := domain.AssetRef{Contract: contract, AssetID: id, ChainID: req.ChainID}
	if err := asset.Validate(); err != nil {
		return domain.AssetRef{}, validationProblem(err.Error())
	}
	return asset, nil
}

func parseTerms(req v1.LicenseTermsRequest) domain.LicenseTerms {
	return domain.LicenseTerms{
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		TermsURI:    req.TermsURI,
		Commercial:  req.Commercial,
		Derivatives: req.Derivatives,
		Attribution: req.Attribution,
		Metadata:    req.Metadata,
	}
}

func decodeHexBytes(field, s string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, validationProblem(fmt.Sprintf("%s: invalid hex: %v", field, err))
	}
	return b, nil
}

func parseProof(entries []string) ([]chain.Hash, error) {
	proof := make([]chain.Hash, 0, len(entries))
	for i, entry := range entries {
		h, err := chain.ParseHash(entry)
		if err != nil {
			return nil, validationProblem(fmt.Sprintf("proof[%d]: %v", i, err))
		}
		proof = append(proof, h)
	}
	return proof, nil
}

func assetResponse(asset domain.AssetRef) v1.AssetRefResponse {
	return v1.AssetRefResponse{
		Contract: asset.Contract.String(),
		AssetID:  asset.AssetID.Dec(),
		ChainID:  asset.ChainID,
	}
}

func offerResponse(offer domain.Offer) v1.OfferResponse {
	return v1.OfferResponse{
		ID:           offer.ID.String(),
		Asset:        assetResponse(offer.Asset),
		Expiration:   offer.Expiration,
		CreationTime: offer.CreationTime,
		Valid:        offer.Valid,
		Minted:       offer.Minted,
	}
}

func (s *registryService) tokenResponse(ctx context.Context, token domain.LicenseToken) *v1.TokenResponse {
	resp := &v1.TokenResponse{
		TokenID:  token.TokenID,
		Owner:    token.Owner.String(),
		Asset:    assetResponse(token.Asset),
		MintedAt: token.MintedAt,
		Scope:    string(token.Scope),
		TraceID:  infrastructure.GetTraceID(ctx),
	}
	if uri, err := s.registry.MetadataURI(ctx, token.TokenID); err == nil {
		resp.MetadataURI = uri
	}
	return resp
}

func (s *registryService) CreateAccount(ctx context.Context, req v1.AccountCreateRequest) (*v1.AccountResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	asset, err := parseAssetRef(req.Asset)
	if err != nil {
		return nil, err
	}
	caller, err := chain.ParseAddress(req.Caller)
	if err != nil {
		return nil, validationProblem(fmt.Sprintf("caller: %v", err))
	}

	addr, err := s.binder.Create(ctx, asset, caller)
	if err != nil {
		return nil, err
	}
	return &v1.AccountResponse{
		Account:  addr.String(),
		Deployed: true,
		Created:  true,
		Asset:    assetResponse(asset),
		TraceID:  infrastructure.GetTraceID(ctx),
	}, nil
}

func (s *registryService) GetAccount(ctx context.Context, req v1.AssetRefRequest) (*v1.AccountResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	asset, err := parseAssetRef(req)
	if err != nil {
		return nil, err
	}

	addr := s.binder.DeriveAddress(asset)
	deployed, err := s.binder.IsDeployed(ctx, asset)
	if err != nil {
		return nil, err
	}
	return &v1.AccountResponse{
		Account:  addr.String(),
		Deployed: deployed,
		Asset:    assetResponse(asset),
		TraceID:  infrastructure.GetTraceID(ctx),
	}, nil
}

func (s *registryService) MintAllowlist(ctx context.Context, req v1.AllowlistMintRequest) (*v1.TokenResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	asset, err := parseAssetRef(req.Asset)
	if err != nil {
		return nil, err
	}
	proof, err := parseProof(req.Proof)
	if err != nil {
		return nil, err
	}
	signature, err := decodeHexBytes("signature", req.Signature)
	if err != nil {
		return nil, err
	}

	token, err := s.allowlist.Mint(ctx, asset, proof, signature, parseTerms(req.Terms))
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(ctx, token), nil
}

func (s *registryService) MintOffer(ctx context.Context, req v1.OfferMintRequest) (*v1.TokenResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	offerID, err := chain.ParseHash(req.OfferID)
	if err != nil {
		return nil, validationProblem(fmt.Sprintf("offer_id: %v", err))
	}
	asset, err := parseAssetRef(req.Asset)
	if err != nil {
		return nil, err
	}
	signature, err := decodeHexBytes("signature", req.Signature)
	if err != nil {
		return nil, err
	}

	token, err := s.offers.Mint(ctx, offerID, asset, signature, parseTerms(req.Terms))
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(ctx, token), nil
}

func (s *registryService) MintOpen(ctx context.Context, req v1.OpenMintRequest) (*v1.TokenResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	asset, err := parseAssetRef(req.Asset)
	if err != nil {
		return nil, err
	}
	caller, err := chain.ParseAddress(req.Caller)
	if err != nil {
		return nil, validationProblem(fmt.Sprintf("caller: %v", err))
	}
	signature, err := decodeHexBytes("signature", req.Signature)
	if err != nil {
		return nil, err
	}

	token, err := s.open.Mint(ctx, asset, caller, signature, parseTerms(req.Terms))
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(ctx, token), nil
}

func (s *registryService) GetToken(ctx context.Context, tokenID uint64) (*v1.TokenResponse, error) {
	token, err := s.registry.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(ctx, token), nil
}

func (s *registryService) GetTerms(ctx context.Context, tokenID uint64) (*v1.TermsResponse, error) {
	terms, err := s.registry.GetTerms(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return &v1.TermsResponse{
		TokenID:         tokenID,
		Issuer:          terms.Issuer.String(),
		Licensee:        terms.Licensee.String(),
		StartTime:       terms.StartTime,
		DurationSeconds: uint64(terms.Duration / time.Second),
		TermsURI:        terms.TermsURI,
		Commercial:      terms.Commercial,
		Derivatives:     terms.Derivatives,
		Attribution:     terms.Attribution,
		Metadata:        terms.Metadata,
	}, nil
}

func (s *registryService) GetOffer(ctx context.Context, offerID string) (*v1.OfferResponse, error) {
	id, err := chain.ParseHash(offerID)
	if err != nil {
		return nil, validationProblem(fmt.Sprintf("offer_id: %v", err))
	}
	offer, err := s.offers.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := offerResponse(offer)
	return &resp, nil
}

func (s *registryService) ListOffers(ctx context.Context) ([]v1.OfferResponse, error) {
	offers, err := s.offers.ListOffers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]v1.OfferResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offerResponse(offer))
	}
	return out, nil
}

func (s *registryService) Status(ctx context.Context) (*v1.RegistryStatusResponse, error) {
	supply, err := s.registry.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	root, err := s.allowlist.Root(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := s.open.Enabled(ctx)
	if err != nil {
		return nil, err
	}

	base, err := s.registry.MetadataBase(ctx)
	if err != nil {
		return nil, err
	}

	return &v1.RegistryStatusResponse{
		TotalSupply:     supply,
		AllowlistRoot:   root.String(),
		OpenMintEnabled: enabled,
		MetadataBase:    base,
		ChainID:         s.registry.ChainID(),
		Timestamp:       time.Now().UTC(),
	}, nil
}

func (s *registryService) SetAllowlistRoot(ctx context.Context, req v1.SetRootRequest) error {
	if err := s.checkStruct(req); err != nil {
		return err
	}
	root, err := chain.ParseHash(req.Root)
	if err != nil {
		return validationProblem(fmt.Sprintf("root: %v", err))
	}
	return s.allowlist.SetRoot(ctx, root)
}

func (s *registryService) CreateOffer(ctx context.Context, req v1.OfferCreateRequest) (*v1.OfferResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	asset, err := parseAssetRef(req.Asset)
	if err != nil {
		return nil, err
	}

	offer, err := s.offers.CreateOffer(ctx, asset, req.Expiration)
	if err != nil {
		return nil, err
	}
	resp := offerResponse(offer)
	return &resp, nil
}

func (s *registryService) RevokeOffer(ctx context.Context, offerID string) error {
	id, err := chain.ParseHash(offerID)
	if err != nil {
		return validationProblem(fmt.Sprintf("offer_id: %v", err))
	}
	return s.offers.RevokeOffer(ctx, id)
}

func (s *registryService) SetOpenMinting(ctx context.Context, req v1.OpenToggleRequest) error {
	return s.open.SetEnabled(ctx, req.Enabled)
}

func (s *registryService) SetMetadataBase(ctx context.Context, req v1.SetMetadataBaseRequest) error {
	if err := s.checkStruct(req); err != nil {
		return err
	}
	return s.registry.SetMetadataBase(ctx, req.Base)
}
