package circulation

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the circulation API on r. adminOnly guards the
// operations that can lose money or history.
func RegisterRoutes(r gin.IRoutes, svc *Service, adminOnly gin.HandlerFunc) {
	h := &Handler{svc: svc}

	// 1. 資料
	r.POST("/items", h.CreateItem)
	r.GET("/items", h.ListItems)
	r.GET("/items/:id", h.GetItem)
	r.GET("/items/:id/loans", h.ItemLoanIndex)
	r.GET("/items/:id/loanable", h.ItemLoanable)
	r.GET("/items/:id/loan-at", h.ItemLoanAt)
	r.GET("/items/:id/due", h.ItemDue)
	r.POST("/items/:id/return", h.ReturnItem)
	r.POST("/items/:id/fine", h.CreateFine)
	r.POST("/items/:id/clean", adminOnly, h.CleanItem)

	// 2. 利用者
	r.POST("/members", h.CreateMember)
	r.GET("/members", h.ListMembers)
	r.GET("/members/:id", h.GetMember)
	r.PUT("/members/:id/archive", h.ArchiveMember)
	r.GET("/members/:id/loans", h.MemberLoans)
	r.GET("/members/:id/fines", h.MemberFines)
	r.POST("/members/:id/payments", h.PayFines)

	// 3. 貸出
	r.POST("/loans", h.ScheduleLoan)
	r.POST("/loans/immediate", h.LoanItem)
	r.GET("/loans/:id", h.GetLoan)
	r.POST("/loans/:id/give", h.GiveItem)
	r.POST("/loans/:id/renew", h.RenewLoan)

	// 4. 延滞金
	r.GET("/fines/:id", h.GetFine)
	r.POST("/fines/:id/cancel", adminOnly, h.CancelFine)

	// 5. 削除
	r.GET("/objects/:id/deletion", h.DeletionCheck)
	r.DELETE("/objects/:id", adminOnly, h.DeleteObject)
}

// ---------- items ----------

func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	in := NewItem{
		Title:     req.Title,
		Author:    req.Author,
		ISBN:      req.ISBN,
		Barcode:   req.Barcode,
		Loanable:  true,
		Condition: ConditionExcellent,
	}
	if req.Loanable != nil {
		in.Loanable = *req.Loanable
	}
	if req.Condition != nil {
		in.Condition = Condition(*req.Condition)
	}

	it, err := h.svc.CreateItem(c.Request.Context(), in)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/items/"+it.ID)
	c.JSON(http.StatusCreated, buildItemResponse(it))
}

func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context())
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	res := make([]ItemResponse, 0, len(items))
	for i := range items {
		res = append(res, buildItemResponse(&items[i]))
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetItem(c *gin.Context) {
	it, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildItemResponse(it))
}

func (h *Handler) ItemLoanIndex(c *gin.Context) {
	idx, err := h.svc.LoanIndex(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	res := make([]IntervalResponse, 0, len(idx))
	for _, iv := range idx {
		res = append(res, IntervalResponse{LoanID: iv.ID, Start: iv.Start, End: iv.End})
	}
	c.JSON(http.StatusOK, res)
}

// GET /items/:id/loanable?start=...&end=...
func (h *Handler) ItemLoanable(c *gin.Context) {
	start, ok := queryTime(c, "start", true)
	if !ok {
		return
	}
	end, ok := queryTime(c, "end", true)
	if !ok {
		return
	}
	loanable, err := h.svc.Loanable(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loanable": loanable})
}

func (h *Handler) ItemLoanAt(c *gin.Context) {
	date, ok := queryTime(c, "date", false)
	if !ok {
		return
	}
	l, err := h.svc.LoanAt(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildLoanResponse(l))
}

func (h *Handler) ItemDue(c *gin.Context) {
	date, ok := queryTime(c, "date", false)
	if !ok {
		return
	}
	text, err := h.svc.ItemDueText(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"due": text})
}

func (h *Handler) ReturnItem(c *gin.Context) {
	var req ReturnItemRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	l, err := h.svc.ReturnItem(c.Request.Context(), c.Param("id"), deref(req.At), req.WaiveFine)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildLoanResponse(l))
}

func (h *Handler) CreateFine(c *gin.Context) {
	var req CreateFineRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	autoReturn := true
	if req.AutoReturn != nil {
		autoReturn = *req.AutoReturn
	}
	f, err := h.svc.CreateFine(c.Request.Context(), c.Param("id"), deref(req.At), autoReturn)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/fines/"+f.ID)
	c.JSON(http.StatusCreated, buildFineResponse(f, h.svc.Settings().Currency))
}

func (h *Handler) CleanItem(c *gin.Context) {
	cleaned, err := h.svc.CleanItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleaned": cleaned})
}

// ---------- members ----------

func (h *Handler) CreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	m, err := h.svc.CreateMember(c.Request.Context(), NewMember{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/members/"+m.ID)
	c.JSON(http.StatusCreated, buildMemberResponse(m, h.svc.Settings().Currency))
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context())
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	cur := h.svc.Settings().Currency
	res := make([]MemberResponse, 0, len(members))
	for i := range members {
		res = append(res, buildMemberResponse(&members[i], cur))
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetMember(c *gin.Context) {
	m, err := h.svc.GetMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildMemberResponse(m, h.svc.Settings().Currency))
}

func (h *Handler) ArchiveMember(c *gin.Context) {
	var req ArchiveMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	m, err := h.svc.ArchiveMember(c.Request.Context(), c.Param("id"), req.Archived)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildMemberResponse(m, h.svc.Settings().Currency))
}

// GET /members/:id/loans?open=true
func (h *Handler) MemberLoans(c *gin.Context) {
	open, _ := strconv.ParseBool(c.DefaultQuery("open", "false"))
	loans, err := h.svc.MemberLoans(c.Request.Context(), c.Param("id"), open)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	res := make([]LoanResponse, 0, len(loans))
	for i := range loans {
		res = append(res, buildLoanResponse(&loans[i]))
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MemberFines(c *gin.Context) {
	fines, err := h.svc.MemberFines(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	cur := h.svc.Settings().Currency
	res := make([]FineResponse, 0, len(fines))
	for i := range fines {
		res = append(res, buildFineResponse(&fines[i], cur))
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PayFines(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	memberID := c.Param("id")
	owed, err := h.svc.PayFines(c.Request.Context(), memberID, req.Amount)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{
		MemberID: memberID,
		Owed:     owed,
		OwedText: FormatMoney(owed, h.svc.Settings().Currency),
	})
}

// ---------- loans ----------

func (h *Handler) ScheduleLoan(c *gin.Context) {
	var req ScheduleLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "start and end are required"))
		return
	}
	l, err := h.svc.ScheduleLoan(c.Request.Context(), req.ItemID, req.MemberID, req.Start, req.End)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/loans/"+l.ID)
	c.JSON(http.StatusCreated, buildLoanResponse(l))
}

func (h *Handler) LoanItem(c *gin.Context) {
	var req LoanItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	l, err := h.svc.LoanItem(c.Request.Context(), req.ItemID, req.MemberID, req.LengthDays)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/loans/"+l.ID)
	c.JSON(http.StatusCreated, buildLoanResponse(l))
}

func (h *Handler) GetLoan(c *gin.Context) {
	l, err := h.svc.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildLoanResponse(l))
}

func (h *Handler) GiveItem(c *gin.Context) {
	var req GiveItemRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	l, err := h.svc.GiveItem(c.Request.Context(), c.Param("id"), deref(req.At))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildLoanResponse(l))
}

func (h *Handler) RenewLoan(c *gin.Context) {
	var req RenewLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	if req.NewEnd.IsZero() {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "new_end is required"))
		return
	}
	l, err := h.svc.RenewItem(c.Request.Context(), c.Param("id"), req.NewEnd, deref(req.At))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildLoanResponse(l))
}

// ---------- fines ----------

func (h *Handler) GetFine(c *gin.Context) {
	f, err := h.svc.GetFine(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildFineResponse(f, h.svc.Settings().Currency))
}

func (h *Handler) CancelFine(c *gin.Context) {
	f, err := h.svc.CancelFine(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, buildFineResponse(f, h.svc.Settings().Currency))
}

// ---------- deletion ----------

func (h *Handler) DeletionCheck(c *gin.Context) {
	rep, err := h.svc.DeletionCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, rep)
}

// DELETE /objects/:id?confirm=true
func (h *Handler) DeleteObject(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.DefaultQuery("confirm", "false"))
	rep, err := h.svc.DeleteObject(c.Request.Context(), c.Param("id"), confirmed)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- helpers ----------

// bindOptionalJSON accepts an empty body as "all defaults", chunked ones
// included.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return false
	}
	return true
}

// queryTime parses an RFC3339 timestamp or a YYYY-MM-DD date. Missing and
// not required gives the zero time, which the service reads as "now".
func queryTime(c *gin.Context, key string, required bool) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		if required {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, key+" is required"))
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true
	}
	c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid "+key+", expected RFC3339 or YYYY-MM-DD"))
	return time.Time{}, false
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var de *DomainError
	if errors.As(err, &de) {
		return errorBody(de.Code, de.Message)
	}
	return errorBody("INTERNAL", err.Error())
}
