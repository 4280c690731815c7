package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"freight/internal/catalog"
	"freight/internal/domain/shipment"
	"freight/internal/usecase"

	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		shipment.ErrNotFound:          http.StatusNotFound,
		shipment.ErrForbidden:         http.StatusForbidden,
		shipment.ErrInvalidShipment:   http.StatusBadRequest,
		shipment.ErrInvalidStatus:     http.StatusBadRequest,
		shipment.ErrInvalidTransition: http.StatusConflict,
		shipment.ErrDriverAssigned:    http.StatusConflict,
		catalog.ErrUpstream:           http.StatusBadGateway,
		fmt.Errorf("db down"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		wrapped := fmt.Errorf("cancel shipment: %w", err)
		require.Equal(t, want, statusFor(wrapped), err.Error())
	}
}

func TestRequesterFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := requesterFrom(r)
	require.False(t, ok)

	r.Header.Set(headerUserID, "u1")
	who, ok := requesterFrom(r)
	require.True(t, ok)
	require.Equal(t, requester{ID: "u1"}, who)

	r.Header.Set(headerUserRole, "Staff")
	who, _ = requesterFrom(r)
	require.True(t, who.Staff)
}

func TestRouterRejectsAnonymousWrites(t *testing.T) {
	router := NewRouter(NewHandlers(UseCases{}, nil), nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/shipments/"},
		{http.MethodPatch, "/shipments/s1/status"},
		{http.MethodPost, "/shipments/s1/driver"},
		{http.MethodPost, "/shipments/s1/cancel"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
		require.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)
		require.Contains(t, rec.Body.String(), headerUserID)
	}
}

func TestRouterRejectsBadBody(t *testing.T) {
	router := NewRouter(NewHandlers(UseCases{}, nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/shipments/", strings.NewReader("{"))
	req.Header.Set(headerUserID, "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(NewHandlers(UseCases{}, nil), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

type stubClaims struct{ err error }

func (s stubClaims) Claims(context.Context, int, int) (catalog.ClaimsPage, error) {
	if s.err != nil {
		return catalog.ClaimsPage{}, s.err
	}
	return catalog.ClaimsPage{Count: 1, Claims: []json.RawMessage{json.RawMessage(`{"name":"North Dock"}`)}}, nil
}

func TestListClaimsRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	router := NewRouter(NewHandlers(UseCases{ListClaims: usecase.NewListClaims(stubClaims{}, 0)}, nil), nil)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/claims", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"claims":[{"name":"North Dock"}],"count":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router = NewRouter(NewHandlers(UseCases{ListClaims: usecase.NewListClaims(stubClaims{err: catalog.ErrUpstream}, 0)}, nil), nil)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/claims", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
