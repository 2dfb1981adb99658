package ads

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
)

type stubPaymentLookup struct {
	ad  *models.Ad
	err error
}

func (s stubPaymentLookup) FindByPaymentTx(context.Context, string) (*models.Ad, error) {
	return s.ad, s.err
}

func TestGuardReturnsExistingAd(t *testing.T) {
	existing := &models.Ad{ID: uuid.New(), PaymentTx: "sig"}
	processed, ad, err := NewGuard(stubPaymentLookup{ad: existing}).CheckProcessed(context.Background(), "sig")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !processed || ad.ID != existing.ID {
		t.Fatalf("expected existing ad, got processed=%v ad=%+v", processed, ad)
	}
}

func TestGuardUnprocessed(t *testing.T) {
	processed, ad, err := NewGuard(stubPaymentLookup{err: ErrNotFound}).CheckProcessed(context.Background(), "sig")
	if err != nil || processed || ad != nil {
		t.Fatalf("expected unprocessed, got processed=%v ad=%v err=%v", processed, ad, err)
	}
}

func TestGuardPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	if _, _, err := NewGuard(stubPaymentLookup{err: boom}).CheckProcessed(context.Background(), "sig"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
