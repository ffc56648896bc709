package labels

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/labels/export", h.ExportLabels)
}

// /labels/export: 選択した資料のラベル用 CSV をダウンロード
func (h *Handler) ExportLabels(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Export(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	log.Printf("[INFO] exported %d labels (%s)", res.Count, res.Encoding)

	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Header("X-Label-Count", strconv.Itoa(res.Count))
	c.Data(http.StatusOK, "text/csv; charset="+string(res.Encoding), res.Data)
}

// ===== helpers =====
type errDTO struct {
	Error *APIError `json:"error"`
}

func newErrDTO(err error) errDTO {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errDTO{Error: apiErr}
	}
	return errDTO{Error: ErrInternal(err.Error())}
}
