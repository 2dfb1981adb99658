package ads

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/geo"
	"github.com/angelmondragon/adboard-backend/pkg/pagination"
)

func mustCreateTestAd(t *testing.T, repo *Repository, mutate func(*models.Ad)) *models.Ad {
	t.Helper()
	now := time.Now().UTC()
	ad := &models.Ad{
		ID:              uuid.New(),
		Author:          "Payer111",
		Title:           "Repository test ad",
		Interests:       pq.StringArray{"cycling"},
		Tags:            pq.StringArray{"sports", "local"},
		PaymentTx:       fmt.Sprintf("sig-%s", uuid.NewString()),
		ModerationScore: 8,
		Visible:         true,
		DurationDays:    1,
		PricePaid:       decimal.NewFromInt(100000),
		CreatedAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(ad)
	}
	require.NoError(t, repo.Create(context.Background(), ad))
	return ad
}

func withRollback(t *testing.T, fn func(repo *Repository)) {
	t.Helper()
	conn := openTestDB(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		fn(NewRepository(tx))
		return fmt.Errorf("rollback")
	})
	require.EqualError(t, err, "rollback")
}

func TestRepositoryCreateDuplicatePayment(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		first := mustCreateTestAd(t, repo, nil)

		dupe := *first
		dupe.ID = uuid.New()
		err := NewRepository(repo.db.SavePoint("dupe")).Create(context.Background(), &dupe)
		require.ErrorIs(t, err, ErrDuplicatePayment)
		repo.db.RollbackTo("dupe")

		found, err := repo.FindByPaymentTx(context.Background(), first.PaymentTx)
		require.NoError(t, err)
		require.Equal(t, first.ID, found.ID)
	})
}

func TestRepositorySearchStructured(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		ctx := context.Background()
		keyword := uuid.NewString()[:8]
		match := mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Title = "Road bike " + keyword
			ad.AgeMin = intPtr(18)
		})
		mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Title = "Hidden " + keyword
			ad.Visible = false
			ad.ModerationScore = 2
		})
		mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Title = "Kids " + keyword
			ad.AgeMax = intPtr(12)
		})

		result, err := repo.Search(ctx, StructuredQuery{
			Filters:    Filters{Keyword: keyword, AgeMin: intPtr(21), Interests: []string{"CYCLING"}},
			Pagination: pagination.Params{Limit: 10},
		})
		require.NoError(t, err)
		require.EqualValues(t, 1, result.Total)
		require.Len(t, result.Hits, 1)
		require.Equal(t, match.ID, result.Hits[0].Ad.ID)
	})
}

func TestRepositorySearchGeoSortsByDistance(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		ctx := context.Background()
		tag := "geo-" + uuid.NewString()[:8]
		near := mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Tags = pq.StringArray{tag, "local"}
			ad.Latitude, ad.Longitude = floatPtr(48.86), floatPtr(2.35)
		})
		far := mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Tags = pq.StringArray{tag, "local"}
			ad.Latitude, ad.Longitude = floatPtr(48.95), floatPtr(2.50)
		})
		mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.Tags = pq.StringArray{tag, "local"}
			ad.Latitude, ad.Longitude = floatPtr(51.50), floatPtr(-0.12)
		})

		center := geo.Point{Lat: 48.8566, Lng: 2.3522}
		result, err := repo.Search(ctx, StructuredQuery{
			Filters:    Filters{Tags: []string{tag}, Center: &center, RadiusKm: 50},
			Pagination: pagination.Params{Limit: 10},
		})
		require.NoError(t, err)
		require.EqualValues(t, 2, result.Total)
		require.Equal(t, near.ID, result.Hits[0].Ad.ID)
		require.Equal(t, far.ID, result.Hits[1].Ad.ID)
		require.Less(t, *result.Hits[0].DistanceKm, *result.Hits[1].DistanceKm)
	})
}

func TestRepositorySearchGeoCapsCandidates(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		ctx := context.Background()
		tag := "cap-" + uuid.NewString()[:8]
		now := time.Now().UTC()
		for i := 0; i < 3; i++ {
			mustCreateTestAd(t, repo, func(ad *models.Ad) {
				ad.Tags = pq.StringArray{tag, "local"}
				ad.Latitude, ad.Longitude = floatPtr(48.86), floatPtr(2.35)
				ad.CreatedAt = now.Add(-time.Duration(i) * time.Minute)
			})
		}
		capped := NewRepository(repo.db)
		capped.geoCap = 2

		center := geo.Point{Lat: 48.8566, Lng: 2.3522}
		result, err := capped.Search(ctx, StructuredQuery{
			Filters:    Filters{Tags: []string{tag}, Center: &center, RadiusKm: 20000},
			Pagination: pagination.Params{Limit: 10},
		})
		require.NoError(t, err)
		require.True(t, result.Truncated)
		require.EqualValues(t, 2, result.Total)
		require.Len(t, result.Hits, 2)
	})
}

func TestRepositoryUpdateModerationRecomputesVisibility(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		ad := mustCreateTestAd(t, repo, nil)

		updated, err := repo.UpdateModeration(context.Background(), ad.ID, ModerationUpdate{Score: 3, Reasons: []string{"misleading"}, Tags: []string{"deals", "online"}})
		require.NoError(t, err)
		require.False(t, updated.Visible)
		require.Equal(t, 3, updated.ModerationScore)
		require.Equal(t, []string{"deals", "online"}, []string(updated.Tags))

		_, err = repo.UpdateModeration(context.Background(), uuid.New(), ModerationUpdate{Score: 5})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepositoryExpiredAndUnindexed(t *testing.T) {
	withRollback(t, func(repo *Repository) {
		ctx := context.Background()
		now := time.Now().UTC()
		expired := mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.CreatedAt = now.Add(-60 * 24 * time.Hour)
			ad.ExpiresAt = now.Add(-45 * 24 * time.Hour)
		})
		fresh := mustCreateTestAd(t, repo, func(ad *models.Ad) {
			ad.CreatedAt = now.Add(-time.Hour)
		})

		ids, err := repo.ListExpiredIDs(ctx, nil, now.Add(-30*24*time.Hour), 1000)
		require.NoError(t, err)
		require.Contains(t, ids, expired.ID)
		require.NotContains(t, ids, fresh.ID)

		pending, err := repo.ListUnindexed(ctx, now.Add(-10*time.Minute), now, 1000)
		require.NoError(t, err)
		require.True(t, containsAd(pending, fresh.ID))

		require.NoError(t, repo.MarkIndexed(ctx, fresh.ID, now))
		pending, err = repo.ListUnindexed(ctx, now.Add(-10*time.Minute), now, 1000)
		require.NoError(t, err)
		require.False(t, containsAd(pending, fresh.ID))

		deleted, err := repo.DeleteByIDs(ctx, repo.db, []uuid.UUID{expired.ID})
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
		_, err = repo.FindByID(ctx, expired.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func containsAd(rows []models.Ad, id uuid.UUID) bool {
	for _, row := range rows {
		if row.ID == id {
			return true
		}
	}
	return false
}
