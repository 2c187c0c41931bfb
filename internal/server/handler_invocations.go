package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/q2galaxy/pkg/model"
)

var errIndexDisabled = &model.APIError{
	Code:    model.ErrNotFound,
	Message: "invocation index is not configured",
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusNotFound, errIndexDisabled)
		return
	}

	opts := model.ParseListOptions(r.URL.Query())

	invs, total, err := s.store.ListInvocations(r.Context(), opts)
	if err != nil {
		s.logger.Error("list invocations", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if invs == nil {
		invs = []*model.Invocation{}
	}
	respondList(w, reqID, invs, opts.Page(total, len(invs)))
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusNotFound, errIndexDisabled)
		return
	}
	id := chi.URLParam(r, "id")
	inv, err := s.store.GetInvocation(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if inv == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("invocation", id))
		return
	}
	respondOK(w, reqID, inv)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusNotFound, errIndexDisabled)
		return
	}
	id := chi.URLParam(r, "uuid")
	res, err := s.store.GetResultByUUID(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if res == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("result", id))
		return
	}
	respondOK(w, reqID, res)
}
