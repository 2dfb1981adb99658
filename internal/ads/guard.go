package ads

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
)

type paymentLookup interface {
	FindByPaymentTx(ctx context.Context, signature string) (*models.Ad, error)
}

// Guard maps payment signatures to ads that already consumed them.
type Guard struct {
	repo paymentLookup
}

// NewGuard constructs an idempotency guard over the ad store.
func NewGuard(repo paymentLookup) *Guard {
	return &Guard{repo: repo}
}

// CheckProcessed reports whether signature already created an ad, returning it if so.
func (g *Guard) CheckProcessed(ctx context.Context, signature string) (bool, *models.Ad, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false, nil, nil
	}
	ad, err := g.repo.FindByPaymentTx(ctx, signature)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, ad, nil
}
