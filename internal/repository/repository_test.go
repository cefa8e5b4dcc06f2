package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/testutil"
)

func TestBankTransactionDedupUpsert(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	repo := NewBankTransactionRepository(db.DB, zap.NewNop())
	reportID := testutil.SeedReport(t, db, "enero.xlsx")

	tx := func() *models.BankTransaction {
		return &models.BankTransaction{
			ReportID:    reportID,
			Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			Amount:      decimal.RequireFromString("25.50"),
			Description: "Transferencia de Juan Pérez",
			Reference:   "REF123",
			BankName:    "BBVA",
		}
	}

	inserted, err := repo.UpsertIgnoreDuplicates(ctx, nil, tx())
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same natural key again, even from another report, is silently skipped.
	otherReport := testutil.SeedReport(t, db, "enero-reupload.xlsx")
	dup := tx()
	dup.ReportID = otherReport
	inserted, err = repo.UpsertIgnoreDuplicates(ctx, nil, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "25.5", all[0].Amount.String())
	assert.Equal(t, "REF123", all[0].Reference)
}

func TestBankTransactionDifferentKeysBothInsert(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	repo := NewBankTransactionRepository(db.DB, zap.NewNop())
	reportID := testutil.SeedReport(t, db, "enero.xlsx")

	base := models.BankTransaction{
		ReportID:    reportID,
		Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("25.50"),
		Description: "Depósito - María",
		Reference:   "",
		BankName:    "Desconocido",
	}
	a := base
	b := base
	b.Reference = "F-99"

	inserted, err := repo.UpsertIgnoreDuplicates(ctx, nil, &a)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.UpsertIgnoreDuplicates(ctx, nil, &b)
	require.NoError(t, err)
	assert.True(t, inserted)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPaymentRoundTrip(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	repo := NewPaymentRepository(db.DB, zap.NewNop())

	eventID := testutil.SeedEvent(t, db, "Retiro", time.Now(), false)
	formID := testutil.SeedForm(t, db, eventID, "Inscripción", "Comprobante")
	subID := testutil.SeedSubmission(t, db, formID, `{}`, "tok-1")

	data := models.ExtractedReceiptData{
		Amount:         decimal.RequireFromString("150.00"),
		Reference:      "ABC",
		SenderName:     "Juan",
		IsValidReceipt: true,
	}
	payment := &models.FormSubmissionPayment{
		SubmissionID:  subID,
		ReceiptPath:   "receipts/1/a.jpg",
		ExtractedData: &data,
		AmountClaimed: decimal.RequireFromString("150.00"),
		Status:        models.StatusPending,
	}
	require.NoError(t, repo.Create(ctx, payment))
	require.NotZero(t, payment.ID)

	got, err := repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ExtractedData)
	assert.Equal(t, "ABC", got.ExtractedData.Reference)
	assert.True(t, got.ExtractedData.IsValidReceipt)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.BankTransactionID)

	// Receipt paths are unique within a submission's payment set.
	dup := &models.FormSubmissionPayment{
		SubmissionID: subID,
		ReceiptPath:  "receipts/1/a.jpg",
		Status:       models.StatusPending,
	}
	assert.Error(t, repo.Create(ctx, dup))
}

func TestPaymentReconciliationQueries(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	payments := NewPaymentRepository(db.DB, zap.NewNop())
	transactions := NewBankTransactionRepository(db.DB, zap.NewNop())

	eventID := testutil.SeedEvent(t, db, "Campamento", time.Now(), false)
	formID := testutil.SeedForm(t, db, eventID, "Registro", "Comprobante")
	subID := testutil.SeedSubmission(t, db, formID, `{}`, "tok-1")
	reportID := testutil.SeedReport(t, db, "feb.xlsx")

	bankTx := &models.BankTransaction{
		ReportID:    reportID,
		Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("300"),
		Description: "SPEI recibido",
		BankName:    "Desconocido",
	}
	_, err := transactions.UpsertIgnoreDuplicates(ctx, nil, bankTx)
	require.NoError(t, err)

	payment := &models.FormSubmissionPayment{
		SubmissionID:  subID,
		ReceiptPath:   "receipts/1/a.jpg",
		AmountClaimed: decimal.RequireFromString("300"),
		Status:        models.StatusPending,
	}
	require.NoError(t, payments.Create(ctx, payment))

	ids, err := payments.ListReconciledTransactionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, payments.SetReconciled(ctx, payment.ID, bankTx.ID, "ok"))

	got, err := payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, got.Status)
	require.NotNil(t, got.BankTransactionID)
	assert.Equal(t, bankTx.ID, *got.BankTransactionID)
	assert.Equal(t, "ok", got.ReconciliationNotes)

	ids, err = payments.ListReconciledTransactionIDs(ctx)
	require.NoError(t, err)
	assert.True(t, ids[bankTx.ID])

	count, err := payments.CountByTransactionID(ctx, bankTx.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	verified, err := payments.ListVerifiedByForm(ctx, formID)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, payment.ID, verified[0].ID)
}

func TestFormRepositoryListFinancialForms(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	forms := NewFormRepository(db.DB, zap.NewNop())

	activeEvent := testutil.SeedEvent(t, db, "Congreso", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), false)
	archivedEvent := testutil.SeedEvent(t, db, "Viejo", time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC), true)

	financial := testutil.SeedForm(t, db, activeEvent, "Inscripción", "Comprobante")
	testutil.SeedForm(t, db, activeEvent, "Encuesta", "") // no financial field
	testutil.SeedForm(t, db, archivedEvent, "Inscripción vieja", "Comprobante")

	got, err := forms.ListFinancialForms(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, financial, got[0].FormID)
	assert.Equal(t, "Congreso", got[0].EventTitle)
}

func TestSubmissionRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	subs := NewSubmissionRepository(db.DB, zap.NewNop())

	eventID := testutil.SeedEvent(t, db, "Retiro", time.Now(), false)
	formID := testutil.SeedForm(t, db, eventID, "Inscripción", "Comprobante")
	subID := testutil.SeedSubmission(t, db, formID, `{"Comprobante": "receipts/1/a.jpg", "Nombre": "Ana"}`, "tok-abc")

	_, err := db.Exec(
		"INSERT INTO form_submissions (form_id, data, access_token, archived) VALUES (?, '{}', 'tok-x', 1)",
		formID)
	require.NoError(t, err)

	active, err := subs.ListActiveByForm(ctx, formID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "receipts/1/a.jpg", active[0].Data.StringField("Comprobante"))

	count, err := subs.CountActiveByForm(ctx, formID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := subs.GetByID(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-abc", got.AccessToken)

	missing, err := subs.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
