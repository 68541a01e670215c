// Package httpserver exposes the credential lifecycle operations as a REST API.
package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/brokerlink/internal/convert"
	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/query"
	"github.com/and161185/brokerlink/internal/selection"
	"github.com/and161185/brokerlink/internal/service"
)

// Handler wires the credential service into HTTP handlers.
type Handler struct {
	svc        service.CredentialService
	selections *selection.Registry
	log        *zap.Logger
}

// NewHandler constructs the handler set.
func NewHandler(svc service.CredentialService, selections *selection.Registry, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, selections: selections, log: log}
}

// respondError maps domain sentinels to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrBlocked):
		c.JSON(http.StatusConflict, gin.H{"error": "credential blocked"})
	case errors.Is(err, errs.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "illegal transition"})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return uuid.Nil, false
	}
	return id, true
}

// listInput reads filter/sort/scope query parameters. The owner scope
// defaults to the authenticated operator; owner=all lifts it.
func listInput(c *gin.Context) (service.ListInput, error) {
	in := service.ListInput{
		Query: query.Params{
			Text:   c.Query("q"),
			Status: query.FilterAll,
			Key:    query.SortName,
			Dir:    query.Asc,
		},
	}
	if v := c.Query("status"); v != "" {
		switch query.StatusFilter(v) {
		case query.FilterAll, query.FilterConnected, query.FilterDisconnected:
			in.Query.Status = query.StatusFilter(v)
		default:
			return in, errors.New("bad status filter")
		}
	}
	if v := c.Query("sort"); v != "" {
		switch query.SortKey(v) {
		case query.SortName, query.SortClientID, query.SortStatus, query.SortExpiry:
			in.Query.Key = query.SortKey(v)
		default:
			return in, errors.New("bad sort key")
		}
	}
	if v := c.Query("dir"); v != "" {
		switch query.SortDir(v) {
		case query.Asc, query.Desc:
			in.Query.Dir = query.SortDir(v)
		default:
			return in, errors.New("bad sort direction")
		}
	}
	operator, _ := operatorID(c)
	switch v := c.Query("owner"); v {
	case "", "me":
		in.Owner = operator
	case "all":
		in.Owner = uuid.Nil
	default:
		owner, err := uuid.FromString(v)
		if err != nil {
			return in, errors.New("bad owner scope")
		}
		in.Owner = owner
	}
	return in, nil
}

// List returns the filtered, sorted projection with masked secrets.
func (h *Handler) List(c *gin.Context) {
	in, err := listInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	creds := h.svc.List(c.Request.Context(), in)
	c.JSON(http.StatusOK, gin.H{"credentials": convert.ToCredentialResponses(creds)})
}

type createRequest struct {
	DisplayName     string     `json:"display_name"`
	ClientID        string     `json:"client_id"`
	Secret          string     `json:"secret"`
	AccessToken     string     `json:"access_token"`
	ExpiresAt       *time.Time `json:"expires_at"`
	LinkedAccountID *uuid.UUID `json:"linked_account_id"`
}

// Create validates the token and inserts a new credential for the operator.
func (h *Handler) Create(c *gin.Context) {
	operator, _ := operatorID(c)
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	in := service.CreateInput{
		OwnerAccountID: operator,
		DisplayName:    req.DisplayName,
		ClientID:       req.ClientID,
		Secret:         req.Secret,
		AccessToken:    req.AccessToken,
	}
	if req.ExpiresAt != nil {
		in.ExpiresAt = *req.ExpiresAt
	}
	if req.LinkedAccountID != nil {
		in.LinkedAccountID = *req.LinkedAccountID
	}
	cred, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToCredentialResponse(cred))
}

// TestConnection checks a candidate token and returns reachable accounts.
func (h *Handler) TestConnection(c *gin.Context) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	c.JSON(http.StatusOK, h.svc.TestConnection(c.Request.Context(), req.AccessToken))
}

type editRequest struct {
	DisplayName     *string    `json:"display_name"`
	ClientID        *string    `json:"client_id"`
	Secret          *string    `json:"secret"`
	AccessToken     *string    `json:"access_token"`
	LinkedAccountID *uuid.UUID `json:"linked_account_id"`
}

// Edit applies a partial update.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cred, err := h.svc.Edit(c.Request.Context(), id, service.EditInput{
		DisplayName:     req.DisplayName,
		ClientID:        req.ClientID,
		Secret:          req.Secret,
		AccessToken:     req.AccessToken,
		LinkedAccountID: req.LinkedAccountID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToCredentialResponse(cred))
}

// UpdateToken is the access-token-only update path.
func (h *Handler) UpdateToken(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cred, err := h.svc.UpdateAccessToken(c.Request.Context(), id, req.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToCredentialResponse(cred))
}

// ToggleActivation flips Active <-> Blocked.
func (h *Handler) ToggleActivation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	cred, err := h.svc.ToggleActivation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToCredentialResponse(cred))
}

// Connect initiates a connection for one credential.
func (h *Handler) Connect(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	cred, err := h.svc.Connect(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToCredentialResponse(cred))
}

// Disconnect detaches one credential.
func (h *Handler) Disconnect(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	cred, err := h.svc.Disconnect(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToCredentialResponse(cred))
}

// bulkIDs reads explicit IDs from the payload, falling back to the
// operator's current selection when none are given.
func (h *Handler) bulkIDs(c *gin.Context) ([]uuid.UUID, bool) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return nil, false
		}
	}
	if req.IDs == nil {
		operator, _ := operatorID(c)
		return h.selections.For(operator).Current(), true
	}
	return req.IDs, true
}

// BulkConnect applies Connect across a set of credentials.
func (h *Handler) BulkConnect(c *gin.Context) {
	ids, ok := h.bulkIDs(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.BulkConnect(c.Request.Context(), ids))
}

// BulkDisconnect applies Disconnect across a set of credentials.
func (h *Handler) BulkDisconnect(c *gin.Context) {
	ids, ok := h.bulkIDs(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.BulkDisconnect(c.Request.Context(), ids))
}

// Delete removes one credential.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reveal returns one sensitive field in cleartext; the access is audited.
func (h *Handler) Reveal(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Field string `json:"field"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	operator, _ := operatorID(c)
	value, err := h.svc.Reveal(c.Request.Context(), id, service.RevealField(req.Field), operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": req.Field, "value": value})
}

// Export renders the projection as export rows, masked by default.
func (h *Handler) Export(c *gin.Context) {
	in, err := listInput(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	operator, _ := operatorID(c)
	reveal := c.Query("reveal") == "true"
	rows, err := h.svc.Export(c.Request.Context(), in, reveal, operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// Selection returns the operator's current multi-select set.
func (h *Handler) Selection(c *gin.Context) {
	operator, _ := operatorID(c)
	c.JSON(http.StatusOK, gin.H{"ids": h.selections.For(operator).Current()})
}

// SelectionToggle toggles one ID in the operator's selection.
func (h *Handler) SelectionToggle(c *gin.Context) {
	operator, _ := operatorID(c)
	var req struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	sel := h.selections.For(operator)
	sel.Toggle(req.ID)
	c.JSON(http.StatusOK, gin.H{"ids": sel.Current()})
}

// SelectionAll replaces the selection with exactly the passed IDs, typically
// the currently filtered view.
func (h *Handler) SelectionAll(c *gin.Context) {
	operator, _ := operatorID(c)
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	sel := h.selections.For(operator)
	sel.SelectAll(req.IDs)
	c.JSON(http.StatusOK, gin.H{"ids": sel.Current()})
}

// SelectionClear empties the operator's selection.
func (h *Handler) SelectionClear(c *gin.Context) {
	operator, _ := operatorID(c)
	h.selections.For(operator).Clear()
	c.Status(http.StatusNoContent)
}
