package intake

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/cache"
	"github.com/montesion/reconciliation/internal/extraction"
	"github.com/montesion/reconciliation/internal/models"
	"github.com/montesion/reconciliation/internal/repository"
	"github.com/montesion/reconciliation/internal/storage"
	"github.com/montesion/reconciliation/internal/testutil"
	"github.com/montesion/reconciliation/pkg/database"
)

type memStorage struct {
	files   map[string][]byte
	writes  []string
	deletes []string
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) Save(ctx context.Context, path string, content []byte) error {
	m.writes = append(m.writes, path)
	m.files[path] = content
	return nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.deletes = append(m.deletes, path)
	delete(m.files, path)
	return nil
}

func (m *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("receipt %s not found", path)
	}
	return content, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

var _ storage.Storage = (*memStorage)(nil)

type stubReceiptExtractor struct {
	result extraction.Result
	calls  int
}

func (s *stubReceiptExtractor) ExtractReceipt(ctx context.Context, image []byte, mimeType string) extraction.Result {
	s.calls++
	return s.result
}

type intakeFixture struct {
	db       *database.DB
	service  *Service
	payments *repository.PaymentRepository
	store    *memStorage
	extract  *stubReceiptExtractor
	subA     int64
	subB     int64
}

func newIntakeFixture(t *testing.T, result extraction.Result) *intakeFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	logger := zap.NewNop()

	eventID := testutil.SeedEvent(t, db, "Retiro", time.Now(), false)
	formID := testutil.SeedForm(t, db, eventID, "Inscripción", "Comprobante")
	subA := testutil.SeedSubmission(t, db, formID, `{}`, "token-a")
	subB := testutil.SeedSubmission(t, db, formID, `{}`, "token-b")

	store := newMemStorage()
	extractor := &stubReceiptExtractor{result: result}
	payments := repository.NewPaymentRepository(db.DB, logger)
	service := NewService(
		repository.NewSubmissionRepository(db.DB, logger),
		payments,
		store,
		extractor,
		cache.NewTagVersions(logger),
		logger,
	)
	return &intakeFixture{
		db:       db,
		service:  service,
		payments: payments,
		store:    store,
		extract:  extractor,
		subA:     subA,
		subB:     subB,
	}
}

func okExtraction(amount string) extraction.Result {
	return extraction.Extracted(models.ExtractedReceiptData{
		Amount:         decimal.RequireFromString(amount),
		Reference:      "REF1",
		IsValidReceipt: true,
	})
}

func TestAddPaymentStoredReceipt(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	f.store.files["anonymous/1/a.jpg"] = []byte("jpeg")
	ctx := context.Background()

	payment, err := f.service.AddPayment(ctx, AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-a",
		ReceiptPath:  "anonymous/1/a.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, payment.Status)
	require.NotNil(t, payment.ExtractedData)
	// No claimed amount given, so the extracted one fills in.
	assert.Equal(t, "250", payment.AmountClaimed.String())
	assert.Equal(t, 1, f.extract.calls)

	got, err := f.payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anonymous/1/a.jpg", got.ReceiptPath)
}

func TestAddPaymentKeepsClaimedAmount(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	f.store.files["anonymous/1/a.jpg"] = []byte("jpeg")

	payment, err := f.service.AddPayment(context.Background(), AddPaymentInput{
		SubmissionID:  f.subA,
		AccessToken:   "token-a",
		ReceiptPath:   "anonymous/1/a.jpg",
		AmountClaimed: decimal.RequireFromString("240"),
	})
	require.NoError(t, err)
	assert.Equal(t, "240", payment.AmountClaimed.String())
}

func TestAddPaymentRejectsForeignToken(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	f.store.files["anonymous/1/a.jpg"] = []byte("jpeg")

	// Submission B's valid token must not open submission A.
	_, err := f.service.AddPayment(context.Background(), AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-b",
		ReceiptPath:  "anonymous/1/a.jpg",
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, f.extract.calls)
}

func TestAddPaymentRejectsEmptyTokenAndUnknownSubmission(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	ctx := context.Background()

	_, err := f.service.AddPayment(ctx, AddPaymentInput{
		SubmissionID: f.subA,
		ReceiptPath:  "anonymous/1/a.jpg",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// An unknown submission fails identically to a wrong token.
	_, err = f.service.AddPayment(ctx, AddPaymentInput{
		SubmissionID: 9999,
		AccessToken:  "token-a",
		ReceiptPath:  "anonymous/1/a.jpg",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAddPaymentRejectsTraversalPath(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))

	_, err := f.service.AddPayment(context.Background(), AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-a",
		ReceiptPath:  "../secrets/key.pem",
	})
	require.ErrorIs(t, err, storage.ErrInvalidPath)
}

func TestAddPaymentRejectsDuplicatePath(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	f.store.files["anonymous/1/a.jpg"] = []byte("jpeg")
	ctx := context.Background()

	in := AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-a",
		ReceiptPath:  "anonymous/1/a.jpg",
	}
	_, err := f.service.AddPayment(ctx, in)
	require.NoError(t, err)

	_, err = f.service.AddPayment(ctx, in)
	require.ErrorIs(t, err, ErrDuplicateReceipt)
	assert.Equal(t, 1, f.extract.calls)
}

func TestAddPaymentFailedExtractionStillRecordsClaim(t *testing.T) {
	f := newIntakeFixture(t, extraction.Failed("model unavailable"))
	f.store.files["anonymous/1/a.jpg"] = []byte("jpeg")

	payment, err := f.service.AddPayment(context.Background(), AddPaymentInput{
		SubmissionID:  f.subA,
		AccessToken:   "token-a",
		ReceiptPath:   "anonymous/1/a.jpg",
		AmountClaimed: decimal.RequireFromString("300"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusManualReview, payment.Status)
	assert.Nil(t, payment.ExtractedData)
	assert.Equal(t, "300", payment.AmountClaimed.String())
}

func TestAddPaymentUploadStoresAfterAuth(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	ctx := context.Background()

	// Unauthorized upload must never reach storage.
	_, err := f.service.AddPaymentUpload(ctx, AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "wrong",
		ReceiptPath:  "anonymous/1/a.jpg",
	}, []byte("jpeg"))
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.store.writes)

	payment, err := f.service.AddPaymentUpload(ctx, AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-a",
		ReceiptPath:  "anonymous/1/a.jpg",
	}, []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Equal(t, []string{"anonymous/1/a.jpg"}, f.store.writes)
	assert.Equal(t, []byte("jpeg"), f.store.files["anonymous/1/a.jpg"])
}

func TestAddPaymentUploadRemovesFileWhenInsertFails(t *testing.T) {
	f := newIntakeFixture(t, okExtraction("250"))
	ctx := context.Background()

	// Make the payment insert fail after the file has been stored.
	_, err := f.db.Exec(`
		CREATE TRIGGER reject_payment_insert
		BEFORE INSERT ON form_submission_payments
		BEGIN SELECT RAISE(ABORT, 'insert disabled'); END
	`)
	require.NoError(t, err)

	_, err = f.service.AddPaymentUpload(ctx, AddPaymentInput{
		SubmissionID: f.subA,
		AccessToken:  "token-a",
		ReceiptPath:  "anonymous/1/a.jpg",
	}, []byte("jpeg"))
	require.Error(t, err)

	// The stored receipt must not be left orphaned.
	assert.Equal(t, []string{"anonymous/1/a.jpg"}, f.store.writes)
	assert.Equal(t, []string{"anonymous/1/a.jpg"}, f.store.deletes)
	assert.NotContains(t, f.store.files, "anonymous/1/a.jpg")
}
