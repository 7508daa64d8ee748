package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanledger/internal/models"
	"loanledger/internal/services"
)

type LibraryHandler struct {
	catalog   services.CatalogService
	members   services.MemberService
	ledger    services.LoanLedger
	dailyRate decimal.Decimal
	now       func() time.Time
}

// RegisterRoutes mounts the API. dailyRate is used by the fee endpoint when the
// request does not carry its own rate.
func RegisterRoutes(r *gin.Engine, catalog services.CatalogService, members services.MemberService, ledger services.LoanLedger, dailyRate decimal.Decimal) {
	h := &LibraryHandler{
		catalog:   catalog,
		members:   members,
		ledger:    ledger,
		dailyRate: dailyRate,
		now:       func() time.Time { return time.Now().UTC() },
	}
	h.mount(r)
}

func (h *LibraryHandler) mount(r *gin.Engine) {
	// Catalogue
	r.POST("/books", h.createBook)
	r.GET("/books", h.listBooks)
	r.GET("/books/:id", h.getBook)
	r.GET("/books/:id/copies", h.listCopies)
	r.POST("/books/:id/copies", h.addCopy)

	// Copies
	r.POST("/copies/:id/checkout", h.checkout)
	r.POST("/copies/:id/damage", h.markDamaged)
	r.POST("/copies/:id/restore", h.restoreCopy)

	// Members
	r.POST("/members", h.registerMember)
	r.GET("/members/:id", h.getMember)
	r.GET("/members/:id/loans", h.listMemberLoans)

	// Loans
	r.GET("/loans/overdue", h.listOverdue)
	r.GET("/loans/:id", h.getLoan)
	r.POST("/loans/:id/return", h.returnLoan)
	r.GET("/loans/:id/fee", h.lateFee)
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrLoanNotFound),
		errors.Is(err, services.ErrCopyNotFound),
		errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrLibrarianNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrCopyUnavailable),
		errors.Is(err, services.ErrAlreadyReturned),
		errors.Is(err, services.ErrCopyNotDamaged):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidRate),
		errors.Is(err, services.ErrInvalidTimestamp),
		errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// evaluationTime reads ?at= (RFC3339) and falls back to the current time.
func (h *LibraryHandler) evaluationTime(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return h.now(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at timestamp, want RFC3339"})
		return time.Time{}, false
	}
	return at.UTC(), true
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

type createBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	ISBN        string `json:"isbn"`
	TotalCopies int    `json:"total_copies" binding:"min=0"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.catalog.CreateBook(c.Request.Context(), req.Title, req.Author, req.ISBN, req.TotalCopies)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	bookID, ok := parseID(c, "book")
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) listCopies(c *gin.Context) {
	bookID, ok := parseID(c, "book")
	if !ok {
		return
	}
	copies, err := h.catalog.ListCopies(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

func (h *LibraryHandler) addCopy(c *gin.Context) {
	bookID, ok := parseID(c, "book")
	if !ok {
		return
	}
	copy, err := h.catalog.AddCopy(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, copy)
}

// ─── Copies ───────────────────────────────────────────────────────────────────

type checkoutRequest struct {
	MemberID    string `json:"member_id" binding:"required,uuid"`
	LibrarianID string `json:"librarian_id" binding:"omitempty,uuid"`
}

func (h *LibraryHandler) checkout(c *gin.Context) {
	copyID, ok := parseID(c, "copy")
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}
	var librarianID *uuid.UUID
	if req.LibrarianID != "" {
		id, err := uuid.Parse(req.LibrarianID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid librarian id"})
			return
		}
		librarianID = &id
	}

	loan, err := h.ledger.Checkout(c.Request.Context(), copyID, memberID, librarianID, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *LibraryHandler) markDamaged(c *gin.Context) {
	copyID, ok := parseID(c, "copy")
	if !ok {
		return
	}
	copy, err := h.ledger.MarkCopyDamaged(c.Request.Context(), copyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, copy)
}

func (h *LibraryHandler) restoreCopy(c *gin.Context) {
	copyID, ok := parseID(c, "copy")
	if !ok {
		return
	}
	copy, err := h.ledger.RestoreCopy(c.Request.Context(), copyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, copy)
}

// ─── Members ──────────────────────────────────────────────────────────────────

type registerMemberRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Role  string `json:"role" binding:"omitempty,oneof=MEMBER LIBRARIAN"`
}

func (h *LibraryHandler) registerMember(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	member, err := h.members.RegisterMember(c.Request.Context(), req.Name, req.Email, models.MemberRole(req.Role))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *LibraryHandler) getMember(c *gin.Context) {
	memberID, ok := parseID(c, "member")
	if !ok {
		return
	}
	member, err := h.members.GetMember(c.Request.Context(), memberID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *LibraryHandler) listMemberLoans(c *gin.Context) {
	memberID, ok := parseID(c, "member")
	if !ok {
		return
	}
	loans, err := h.ledger.ListMemberLoans(c.Request.Context(), memberID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

// ─── Loans ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listOverdue(c *gin.Context) {
	at, ok := h.evaluationTime(c)
	if !ok {
		return
	}
	loans, err := services.CollectOverdue(c.Request.Context(), h.ledger, at)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) getLoan(c *gin.Context) {
	loanID, ok := parseID(c, "loan")
	if !ok {
		return
	}
	loan, err := h.ledger.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) returnLoan(c *gin.Context) {
	loanID, ok := parseID(c, "loan")
	if !ok {
		return
	}
	loan, err := h.ledger.Return(c.Request.Context(), loanID, h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) lateFee(c *gin.Context) {
	loanID, ok := parseID(c, "loan")
	if !ok {
		return
	}
	at, ok := h.evaluationTime(c)
	if !ok {
		return
	}
	rate := h.dailyRate
	if raw := c.Query("daily_rate"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid daily_rate"})
			return
		}
		rate = parsed
	}

	fee, err := h.ledger.ComputeLateFee(c.Request.Context(), loanID, at, rate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan_id":    loanID,
		"at":         at,
		"daily_rate": rate,
		"fee":        fee,
	})
}
