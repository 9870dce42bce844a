package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wealthwise/internal/core"
	"wealthwise/internal/log"
	"wealthwise/internal/storage"
)

// handleAddTransaction records a new transaction for the authenticated
// user. The insert and the ownership append are sequential operations on
// two documents; the append itself is atomic and idempotent, but the pair
// is not a transaction.
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	body, ok := decodeBody(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	if msg, ok := requireFields(body, "amount", "type"); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	txn := core.NewTransaction(time.Now(),
		user.ID,
		floatValue(body, "amount"),
		stringValue(body, "type"),
		stringValue(body, "category"),
		stringValue(body, "description"))

	ctx, cancel := requestScope(r)
	defer cancel()

	if err := s.store.Create(ctx, txn); err != nil {
		logger.ErrorContext(ctx, "Failed to create transaction", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := s.store.AppendTransactionID(ctx, user.ID, txn.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to append transaction to user",
			log.FieldError, err,
			log.FieldUserID, user.ID,
			log.FieldTransactionID, txn.ID)
		writeStoreError(w, err)
		return
	}

	logger.InfoContext(ctx, "Transaction created", log.NewFields().
		WithOperation(log.OpCreate).
		WithUser(user.ID).
		WithTransaction(txn.ID, txn.Amount, txn.Type, txn.Category).
		ToSlice()...)
	writeJSON(w, http.StatusOK, txn.View())
}

// handleListTransactions returns one page of the user's transactions with
// per-type totals.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	page, pageSize, err := pagingParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	result, err := s.store.Paginate(ctx, user, page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ownedTransaction fetches the transaction and verifies the authenticated
// user owns it. Foreign transactions are indistinguishable from missing
// ones.
func (s *Server) ownedTransaction(r *http.Request, user *core.User) (*core.Transaction, error) {
	id := mux.Vars(r)["id"]
	if id == "" {
		return nil, storage.ErrNotFound
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	txn, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Owns(txn.ID) {
		return nil, storage.ErrNotFound
	}
	return txn, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	txn, err := s.ownedTransaction(r, user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn.View())
}

// handleUpdateTransaction merges the payload's named fields into the
// transaction; fields the payload does not name keep their stored values.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	txn, err := s.ownedTransaction(r, user)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	body, ok := decodeBody(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}

	if _, ok := body["amount"]; ok {
		txn.Amount = floatValue(body, "amount")
	}
	if _, ok := body["type"]; ok {
		txn.Type = stringValue(body, "type")
	}
	if _, ok := body["category"]; ok {
		txn.Category = stringValue(body, "category")
	}
	if _, ok := body["description"]; ok {
		txn.Description = stringValue(body, "description")
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	if err := s.store.Update(ctx, txn); err != nil {
		logger.ErrorContext(ctx, "Failed to update transaction", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, txn.ID)
	writeJSON(w, http.StatusOK, txn.View())
}

// handleDeleteTransaction removes the transaction permanently and pulls
// its id from the user's owned list.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	txn, err := s.ownedTransaction(r, user)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	if err := s.store.Delete(ctx, txn); err != nil {
		logger.ErrorContext(ctx, "Failed to delete transaction", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := s.store.RemoveTransactionID(ctx, user.ID, txn.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.ErrorContext(ctx, "Failed to remove transaction from user", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, txn.ID)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleSummary pages the user's transactions restricted to a year or a
// year-month period, with grouped totals.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	page, pageSize, err := pagingParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := intParam(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if month < 0 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	result, err := s.store.PaginateByPeriod(ctx, user, year, month, page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
