package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wealthwise/internal/auth"
	"wealthwise/internal/config"
	"wealthwise/internal/core"
	"wealthwise/internal/log"
	"wealthwise/internal/storage"
)

// fakeStore keeps entities in memory and mimics the storage engine's
// contracts closely enough for handler tests.
type fakeStore struct {
	users        map[string]*core.User
	transactions map[string]*core.Transaction

	paginateErr error
	lastPeriod  [2]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]*core.User),
		transactions: make(map[string]*core.Transaction),
	}
}

func (f *fakeStore) Create(ctx context.Context, e core.Entity) error {
	e.Touch(time.Now())
	switch v := e.(type) {
	case *core.User:
		f.users[v.ID] = v
	case *core.Transaction:
		f.transactions[v.ID] = v
	}
	return nil
}

func (f *fakeStore) Update(ctx context.Context, e core.Entity) error {
	return f.Create(ctx, e)
}

func (f *fakeStore) Delete(ctx context.Context, e core.Entity) error {
	if e == nil {
		return nil
	}
	delete(f.transactions, e.EntityID())
	delete(f.users, e.EntityID())
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	t, ok := f.transactions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) FindUserBy(ctx context.Context, field, value string) (*core.User, error) {
	for _, u := range f.users {
		var got string
		switch field {
		case "email":
			got = u.Email
		case "username":
			got = u.Username
		}
		if got == value {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) AppendTransactionID(ctx context.Context, userID, txnID string) error {
	u, ok := f.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if !u.Owns(txnID) {
		u.Transactions = append(u.Transactions, txnID)
	}
	return nil
}

func (f *fakeStore) RemoveTransactionID(ctx context.Context, userID, txnID string) error {
	u, ok := f.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	out := u.Transactions[:0]
	for _, id := range u.Transactions {
		if id != txnID {
			out = append(out, id)
		}
	}
	u.Transactions = out
	return nil
}

func (f *fakeStore) Paginate(ctx context.Context, user *core.User, page, pageSize int) (*storage.TransactionPage, error) {
	if f.paginateErr != nil {
		return nil, f.paginateErr
	}
	result := &storage.TransactionPage{
		Page:         page,
		PageSize:     pageSize,
		Summary:      map[string]float64{},
		Transactions: []map[string]any{},
	}
	for _, id := range user.Transactions {
		txn, ok := f.transactions[id]
		if !ok {
			continue
		}
		result.TotalDocuments++
		result.Summary[txn.Type] += txn.Amount
		if len(result.Transactions) < pageSize {
			result.Transactions = append(result.Transactions, txn.View())
		}
	}
	if pageSize > 0 {
		result.TotalPages = (result.TotalDocuments + pageSize - 1) / pageSize
	}
	return result, nil
}

func (f *fakeStore) PaginateByPeriod(ctx context.Context, user *core.User, year, month, page, pageSize int) (*storage.TransactionPage, error) {
	if month != 0 && year == 0 {
		return nil, storage.ErrMonthWithoutYear
	}
	f.lastPeriod = [2]int{year, month}
	return f.Paginate(ctx, user, page, pageSize)
}

func testServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	cfg := &config.Config{
		Port:        "0",
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		CORSOrigins: []string{"*"},
	}
	store := newFakeStore()
	logger := log.New(log.DefaultConfig())
	srv := NewServer(cfg, store, logger)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// seedUser registers a user directly in the fake store and returns a
// valid token for it.
func seedUser(t *testing.T, srv *Server, store *fakeStore) (*core.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("pass123")
	require.NoError(t, err)
	user := core.NewUser(time.Now(), "Ada", "Lovelace", "ada@example.com", "ada", hash)
	store.users[user.ID] = user

	token, err := srv.issuer.Issue(user.ID, time.Now())
	require.NoError(t, err)
	return user, token
}

func TestRegister(t *testing.T) {
	srv, store := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/register", "", map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
		"username":   "ada",
		"password":   "pass123",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	require.Equal(t, "ada", body["username"])
	require.NotContains(t, body, "password")
	require.NotEmpty(t, body["_id"])
	require.Len(t, store.users, 1)
}

func TestRegister_MissingField(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/register", "", map[string]any{
		"last_name": "Lovelace",
		"email":     "ada@example.com",
		"username":  "ada",
		"password":  "pass123",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "First name is required", decodeResponse(t, rec)["error"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv, store := testServer(t)
	seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/register", "", map[string]any{
		"first_name": "Other",
		"last_name":  "Person",
		"email":      "ada@example.com",
		"username":   "other",
		"password":   "pass123",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, decodeResponse(t, rec)["error"], "email already present")
}

func TestRegister_EmptyPayload(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/register", "", map[string]any{})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Data not found", decodeResponse(t, rec)["error"])
}

func TestLogin(t *testing.T) {
	srv, store := testServer(t)
	user, _ := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/login", "", map[string]any{
		"email":    user.Email,
		"password": "pass123",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeResponse(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	userID, err := srv.issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)
}

func TestLogin_WrongPassword(t *testing.T) {
	srv, store := testServer(t)
	user, _ := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/login", "", map[string]any{
		"email":    user.Email,
		"password": "wrong",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Password is not correct", decodeResponse(t, rec)["error"])
}

func TestLogin_UnknownEmail(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/login", "", map[string]any{
		"email":    "nobody@example.com",
		"password": "pass123",
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Email is not found", decodeResponse(t, rec)["error"])
}

func TestTransactions_RequireAuth(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/transactions", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/transactions", "garbage.token.here", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddTransaction(t *testing.T) {
	srv, store := testServer(t)
	user, token := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"amount":      40.40,
		"type":        "expense",
		"category":    "food",
		"description": "lunch",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	require.Equal(t, user.ID, body["user_id"])
	require.Equal(t, 40.40, body["amount"])

	txnID, _ := body["_id"].(string)
	require.True(t, user.Owns(txnID), "transaction id must be appended to the owner")
}

func TestAddTransaction_MissingAmount(t *testing.T) {
	srv, store := testServer(t)
	_, token := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"type": "expense",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Amount is required", decodeResponse(t, rec)["error"])
}

func TestAddTransaction_UnknownUser(t *testing.T) {
	srv, _ := testServer(t)
	token, err := srv.issuer.Issue("ghost-user", time.Now())
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"amount": 1.0,
		"type":   "expense",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Data not found", decodeResponse(t, rec)["error"])
}

func TestListTransactions_Defaults(t *testing.T) {
	srv, store := testServer(t)
	user, token := seedUser(t, srv, store)

	txn := core.NewTransaction(time.Now(), user.ID, 40.40, "expense", "food", "lunch")
	store.transactions[txn.ID] = txn
	user.Transactions = []string{txn.ID}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	require.Equal(t, float64(1), body["page"])
	require.Equal(t, float64(10), body["page_size"])
	require.Equal(t, float64(1), body["total_documents"])
	require.Equal(t, float64(1), body["total_pages"])
	require.Equal(t, map[string]any{"expense": 40.40}, body["summary"])

	require.NotContains(t, rec.Body.String(), "password")
}

func TestListTransactions_BadPage(t *testing.T) {
	srv, store := testServer(t)
	_, token := seedUser(t, srv, store)

	for _, q := range []string{"page=0", "page=-1", "page=abc", "page_size=0"} {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/transactions?"+q, token, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, "query %s", q)
	}
}

func TestGetTransaction_Ownership(t *testing.T) {
	srv, store := testServer(t)
	user, token := seedUser(t, srv, store)

	owned := core.NewTransaction(time.Now(), user.ID, 5, "expense", "misc", "")
	foreign := core.NewTransaction(time.Now(), "someone-else", 7, "income", "salary", "")
	store.transactions[owned.ID] = owned
	store.transactions[foreign.ID] = foreign
	user.Transactions = []string{owned.ID}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/transactions/"+owned.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, owned.ID, decodeResponse(t, rec)["_id"])

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/transactions/"+foreign.ID, token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Data not found", decodeResponse(t, rec)["error"])
}

func TestUpdateTransaction_Merge(t *testing.T) {
	srv, store := testServer(t)
	user, token := seedUser(t, srv, store)

	txn := core.NewTransaction(time.Now(), user.ID, 5, "expense", "misc", "old")
	store.transactions[txn.ID] = txn
	user.Transactions = []string{txn.ID}

	rec := doJSON(t, srv, http.MethodPut, "/api/v1/transactions/"+txn.ID, token, map[string]any{
		"amount": 9.5,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	require.Equal(t, 9.5, body["amount"])
	require.Equal(t, "old", body["description"], "unnamed fields keep their values")
}

func TestDeleteTransaction(t *testing.T) {
	srv, store := testServer(t)
	user, token := seedUser(t, srv, store)

	txn := core.NewTransaction(time.Now(), user.ID, 5, "expense", "misc", "")
	store.transactions[txn.ID] = txn
	user.Transactions = []string{txn.ID}

	rec := doJSON(t, srv, http.MethodDelete, "/api/v1/transactions/"+txn.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotContains(t, store.transactions, txn.ID)
	require.False(t, user.Owns(txn.ID))

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/transactions/"+txn.ID, token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummary_PeriodFilter(t *testing.T) {
	srv, store := testServer(t)
	_, token := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/summary?year=2023&month=8", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, [2]int{2023, 8}, store.lastPeriod)
}

func TestSummary_MonthWithoutYear(t *testing.T) {
	srv, store := testServer(t)
	_, token := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/summary?month=8", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeResponse(t, rec)["error"], "year")
}

func TestSummary_MonthOutOfRange(t *testing.T) {
	srv, store := testServer(t)
	_, token := seedUser(t, srv, store)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/summary?year=2023&month=13", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_Login(t *testing.T) {
	srv, store := testServer(t)
	user, _ := seedUser(t, srv, store)

	limited := false
	for i := 0; i < 40; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/login", "", map[string]any{
			"email":    user.Email,
			"password": "wrong",
		})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited, "repeated logins must hit the rate limit")
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeResponse(t, rec)["status"])
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Data not found", decodeResponse(t, rec)["error"])
}

func TestPagingParams(t *testing.T) {
	tests := []struct {
		query        string
		wantPage     int
		wantPageSize int
		wantErr      bool
	}{
		{query: "", wantPage: 1, wantPageSize: 10},
		{query: "page=3", wantPage: 3, wantPageSize: 10},
		{query: "page=2&page_size=25", wantPage: 2, wantPageSize: 25},
		{query: "page=0", wantErr: true},
		{query: "page_size=-5", wantErr: true},
		{query: "page=x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/x?%s", tt.query), nil)
			page, pageSize, err := pagingParams(req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantPage, page)
			require.Equal(t, tt.wantPageSize, pageSize)
		})
	}
}

func TestRequireFields(t *testing.T) {
	msg, ok := requireFields(map[string]any{"first_name": "Ada"}, "first_name", "last_name")
	require.False(t, ok)
	require.Equal(t, "Last name is required", msg)

	_, ok = requireFields(map[string]any{"a": "x", "b": 1.0}, "a", "b")
	require.True(t, ok)

	msg, ok = requireFields(map[string]any{"email": ""}, "email")
	require.False(t, ok)
	require.Equal(t, "Email is required", msg)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(req))

	req.Header.Set("Authorization", "bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(req), "scheme is case insensitive")

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, bearerToken(req))
}
