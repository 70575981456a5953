// Package errors defines the registry's error surface: sentinel errors for
// the issuance and binding paths, and RFC 7807 Problem Details for the HTTP
// transport.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors for the account-binding and issuance paths. Every
// validation failure rolls back the triggering call; none are retried
// automatically.
var (
	// AccountBinder
	ErrNotOwner        = errors.New("caller does not control the referenced asset")
	ErrAlreadyDeployed = errors.New("asset account already deployed")

	// Registry
	ErrUnknownToken       = errors.New("unknown token")
	ErrSoulboundViolation = errors.New("license tokens are non-transferable")
	ErrIDSpaceExhausted   = errors.New("token id space exhausted")

	// Issuance
	ErrInvalidProof     = errors.New("invalid membership proof")
	ErrAlreadyMinted    = errors.New("license already minted for this asset")
	ErrInvalidSignature = errors.New("signature invalid")
	ErrInvalidOffer     = errors.New("offer unknown or no longer valid")
	ErrOfferExpired     = errors.New("offer expired")
	ErrNotEnabled       = errors.New("open minting disabled")
	ErrInvalidChain     = errors.New("declared chain id does not match execution chain")
	ErrZeroRoot         = errors.New("allowlist root must not be zero")
)

// RFC 7807 problem type URIs.
const (
	TypeValidation   = "/errors/validation"
	TypeNotFound     = "/errors/not-found"
	TypeUnauthorized = "/errors/unauthorized"
	TypeForbidden    = "/errors/forbidden"
	TypeConflict     = "/errors/conflict"
	TypeInternal     = "/errors/internal"

	TypeNotOwner         = "/errors/issuance/not-owner"
	TypeAlreadyDeployed  = "/errors/account/already-deployed"
	TypeUnknownToken     = "/errors/registry/unknown-token"
	TypeSoulbound        = "/errors/registry/soulbound"
	TypeInvalidProof     = "/errors/issuance/invalid-proof"
	TypeAlreadyMinted    = "/errors/issuance/already-minted"
	TypeInvalidSignature = "/errors/issuance/invalid-signature"
	TypeInvalidOffer     = "/errors/offer/invalid"
	TypeOfferExpired     = "/errors/offer/expired"
	TypeNotEnabled       = "/errors/issuance/not-enabled"
	TypeInvalidChain     = "/errors/issuance/invalid-chain"
	TypeZeroRoot         = "/errors/allowlist/zero-root"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface.
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// Error implements the error interface so problems can travel as errors.
func (pd *ProblemDetails) Error() string {
	return pd.Title + ": " + pd.Detail
}

// MarshalJSON custom marshaler to include extensions.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error.
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details.
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}
