package feed

import (
	"net/http"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/shared/httpx"
)

type Handler struct{ svc Service }

func NewHandler(s Service) *Handler { return &Handler{svc: s} }

// Protected: personalized feed of the current user.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	page := httpx.QueryInt(r, "page", 1)
	pageSize := httpx.QueryInt(r, "limit", 20)
	fp, err := h.svc.GetFeed(r.Context(), uid, page, pageSize)
	if err != nil {
		return httpx.ErrUnavailable
	}
	httpx.WriteJSON(w, fp, http.StatusOK)
	return nil
}

// Public: global trending feed.
func (h *Handler) GetTrending(w http.ResponseWriter, r *http.Request) error {
	page := httpx.QueryInt(r, "page", 1)
	pageSize := httpx.QueryInt(r, "limit", 20)
	fp, err := h.svc.GetTrending(r.Context(), page, pageSize)
	if err != nil {
		return httpx.ErrUnavailable
	}
	httpx.WriteJSON(w, fp, http.StatusOK)
	return nil
}

// Protected: force regeneration of the caller's feed.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	if err := h.svc.Refresh(r.Context(), uid); err != nil {
		return httpx.ErrUnavailable
	}
	httpx.WriteJSON(w, map[string]string{"message": "feed refreshed"}, http.StatusOK)
	return nil
}
