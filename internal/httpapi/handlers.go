package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/montesion/reconciliation/internal/intake"
	"github.com/montesion/reconciliation/internal/receipts"
	"github.com/montesion/reconciliation/internal/reconcile"
	"github.com/montesion/reconciliation/internal/storage"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes per the error
// taxonomy: config 422, unauthorized 401, validation 400, the rest 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, intake.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, receipts.ErrFinancialFieldMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, intake.ErrDuplicateReceipt):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrTransactionAlreadyReconciled):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrPaymentNotFound),
		errors.Is(err, reconcile.ErrTransactionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type initReportRequest struct {
	Filename  string `json:"filename" binding:"required"`
	CreatedBy string `json:"created_by"`
}

func (s *Server) handleInitReport(c *gin.Context) {
	var req initReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	report, err := s.pipeline.InitReport(c.Request.Context(), req.Filename, req.CreatedBy)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondCreated(c, report)
}

type chunkRequest struct {
	Headers []string   `json:"headers" binding:"required"`
	Rows    [][]string `json:"rows" binding:"required"`
}

func (s *Server) handleProcessChunk(c *gin.Context) {
	reportID, err := pathID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var req chunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := s.pipeline.ProcessChunk(c.Request.Context(), reportID, req.Rows, req.Headers)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, result)
}

func (s *Server) handleFinalizeReport(c *gin.Context) {
	reportID, err := pathID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.pipeline.FinalizeReport(c.Request.Context(), reportID); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, gin.H{"report_id": reportID, "finalized": true})
}

func (s *Server) handleUploadWorkbook(c *gin.Context) {
	fileHeader, err := c.FormFile("statement")
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	result, err := s.pipeline.IngestWorkbook(
		c.Request.Context(),
		fileHeader.Filename,
		c.PostForm("created_by"),
		file,
	)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondCreated(c, result)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	transactions, err := s.reconciler.ListGlobalTransactions(c.Request.Context())
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, transactions)
}

func (s *Server) handleAnalyzeReceipts(c *gin.Context) {
	formID, err := pathID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	submissions, err := s.analyzer.AnalyzeReceipts(c.Request.Context(), formID)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, submissions)
}

type reconcileRequest struct {
	TransactionID int64  `json:"transaction_id" binding:"required"`
	Notes         string `json:"notes"`
}

func (s *Server) handleReconcile(c *gin.Context) {
	paymentID, err := pathID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.reconciler.Reconcile(c.Request.Context(), paymentID, req.TransactionID, req.Notes); err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, gin.H{"payment_id": paymentID, "transaction_id": req.TransactionID, "status": "verified"})
}

func (s *Server) handleFinancialSummary(c *gin.Context) {
	summaries, err := s.reconciler.FinancialSummary(c.Request.Context())
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, summaries)
}

// handleAnonymousPayment is the token-gated multipart intake. The storage
// path is server-generated so client-supplied filenames never become
// storage paths; the intake service only writes it after the token check.
func (s *Server) handleAnonymousPayment(c *gin.Context) {
	submissionID, err := strconv.ParseInt(c.PostForm("submission_id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("invalid submission_id"))
		return
	}

	amountClaimed := decimal.Zero
	if raw := strings.TrimSpace(c.PostForm("amount_claimed")); raw != "" {
		amountClaimed, err = decimal.NewFromString(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid amount_claimed"))
			return
		}
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	receiptPath := s.receiptDir + "/" + strconv.FormatInt(submissionID, 10) + "/" + uuid.NewString() + ext
	payment, err := s.intake.AddPaymentUpload(c.Request.Context(), intake.AddPaymentInput{
		SubmissionID:  submissionID,
		AccessToken:   c.PostForm("access_token"),
		ReceiptPath:   receiptPath,
		AmountClaimed: amountClaimed,
	}, content)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondCreated(c, payment)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
