package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemDetailsMarshalIncludesExtensions(t *testing.T) {
	pd := NewProblemDetails(http.StatusConflict, TypeAlreadyMinted, "Already Minted", "asset consumed", "/api/mint#abc").
		WithExtension("trace_id", "abc")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, TypeAlreadyMinted, out["type"])
	assert.Equal(t, "Already Minted", out["title"])
	assert.Equal(t, float64(http.StatusConflict), out["status"])
	assert.Equal(t, "asset consumed", out["detail"])
	assert.Equal(t, "abc", out["trace_id"])
}

func TestToProblemMapsSentinels(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{ErrNotOwner, http.StatusForbidden, TypeNotOwner},
		{ErrAlreadyDeployed, http.StatusConflict, TypeAlreadyDeployed},
		{ErrUnknownToken, http.StatusNotFound, TypeUnknownToken},
		{ErrSoulboundViolation, http.StatusForbidden, TypeSoulbound},
		{ErrInvalidProof, http.StatusBadRequest, TypeInvalidProof},
		{ErrAlreadyMinted, http.StatusConflict, TypeAlreadyMinted},
		{ErrInvalidSignature, http.StatusBadRequest, TypeInvalidSignature},
		{ErrInvalidOffer, http.StatusBadRequest, TypeInvalidOffer},
		{ErrOfferExpired, http.StatusBadRequest, TypeOfferExpired},
		{ErrNotEnabled, http.StatusForbidden, TypeNotEnabled},
		{ErrInvalidChain, http.StatusBadRequest, TypeInvalidChain},
		{ErrZeroRoot, http.StatusBadRequest, TypeZeroRoot},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			pd := ToProblem(tt.err, "/api/test")
			require.NotNil(t, pd)
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantType, pd.Type)
			assert.Equal(t, "/api/test", pd.Instance)
		})
	}
}

func TestToProblemMapsWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("offer mint: %w", ErrAlreadyMinted)
	pd := ToProblem(wrapped, "")
	require.NotNil(t, pd)
	assert.Equal(t, http.StatusConflict, pd.Status)
	assert.Equal(t, TypeAlreadyMinted, pd.Type)
}

func TestToProblemUnknownErrorIsOpaque(t *testing.T) {
	pd := ToProblem(fmt.Errorf("sqlite: disk I/O error"), "/api/mint")
	require.NotNil(t, pd)
	assert.Equal(t, http.StatusInternalServerError, pd.Status)
	assert.NotContains(t, pd.Detail, "sqlite")
}

func TestToProblemNil(t *testing.T) {
	assert.Nil(t, ToProblem(nil, ""))
}

func TestToProblemPassesThroughProblems(t *testing.T) {
	original := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", "bad payload", "/api/x")
	pd := ToProblem(original, "/ignored")
	assert.Same(t, original, pd)
}
