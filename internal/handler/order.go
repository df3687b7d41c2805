package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/altmarket/storefront/internal/domain/order"
	"github.com/altmarket/storefront/pkg/ordercode"
)

// OrderByCode resolves a public order code back to the order it names. The
// code is the only identifier customers ever see; internal ids never leave
// the API.
func (h *Handler) OrderByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	id, err := ordercode.Decode(code)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid order code")
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
