package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/notify"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, err := nonNegative(c.Query("limit"))
	if err != nil {
		fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	p, _ := auth.PrincipalFrom(c)
	items, err := h.Feed.List(c.Request.Context(), p.ID, limit)
	if err != nil {
		h.abortErr(c, "list notifications", err)
		return
	}
	if items == nil {
		items = []notify.Notification{}
	}
	ok(c, http.StatusOK, "", items)
}

func (h *Handler) ClearNotifications(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	if err := h.Feed.Clear(c.Request.Context(), p.ID); err != nil {
		h.abortErr(c, "clear notifications", err)
		return
	}
	ok(c, http.StatusOK, "Notifications cleared", nil)
}
