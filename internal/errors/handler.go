package errors

import (
	"errors"
	"net/http"
)

// problemMapping pins each sentinel error to its HTTP rendering.
type problemMapping struct {
	status      int
	problemType string
	title       string
}

var sentinelProblems = []struct {
	err     error
	mapping problemMapping
}{
	{ErrNotOwner, problemMapping{http.StatusForbidden, TypeNotOwner, "Not Asset Owner"}},
	{ErrAlreadyDeployed, problemMapping{http.StatusConflict, TypeAlreadyDeployed, "Account Already Deployed"}},
	{ErrUnknownToken, problemMapping{http.StatusNotFound, TypeUnknownToken, "Unknown Token"}},
	{ErrSoulboundViolation, problemMapping{http.StatusForbidden, TypeSoulbound, "Soulbound Violation"}},
	{ErrInvalidProof, problemMapping{http.StatusBadRequest, TypeInvalidProof, "Invalid Membership Proof"}},
	{ErrAlreadyMinted, problemMapping{http.StatusConflict, TypeAlreadyMinted, "Already Minted"}},
	{ErrInvalidSignature, problemMapping{http.StatusBadRequest, TypeInvalidSignature, "Invalid Signature"}},
	{ErrInvalidOffer, problemMapping{http.StatusBadRequest, TypeInvalidOffer, "Invalid Offer"}},
	{ErrOfferExpired, problemMapping{http.StatusBadRequest, TypeOfferExpired, "Offer Expired"}},
	{ErrNotEnabled, problemMapping{http.StatusForbidden, TypeNotEnabled, "Open Minting Disabled"}},
	{ErrInvalidChain, problemMapping{http.StatusBadRequest, TypeInvalidChain, "Chain Mismatch"}},
	{ErrZeroRoot, problemMapping{http.StatusBadRequest, TypeZeroRoot, "Zero Allowlist Root"}},
	{ErrIDSpaceExhausted, problemMapping{http.StatusInternalServerError, TypeInternal, "Token ID Space Exhausted"}},
}

// ToProblem converts any error to an RFC 7807 problem. Known sentinels map
// to their pinned status and type; everything else becomes a generic 500
// without leaking internals.
func ToProblem(err error, instance string) *ProblemDetails {
	if err == nil {
		return nil
	}

	var pd *ProblemDetails
	if errors.As(err, &pd) {
		return pd
	}

	for _, sp := range sentinelProblems {
		if errors.Is(err, sp.err) {
			return NewProblemDetails(sp.mapping.status, sp.mapping.problemType, sp.mapping.title, err.Error(), instance)
		}
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"an unexpected error occurred", instance)
}
