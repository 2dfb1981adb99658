package visibility

import (
	"testing"
	"time"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	"github.com/angelmondragon/adboard-backend/pkg/errors"
)

func TestEnsurePublic(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	live := models.Ad{Visible: true, ExpiresAt: now.Add(time.Hour)}

	tests := []struct {
		name    string
		ad      *models.Ad
		visible bool
	}{
		{name: "live", ad: &live, visible: true},
		{name: "nil", ad: nil},
		{name: "hidden", ad: &models.Ad{Visible: false, ExpiresAt: now.Add(time.Hour)}},
		{name: "expired", ad: &models.Ad{Visible: true, ExpiresAt: now.Add(-time.Second)}},
		{name: "expires now", ad: &models.Ad{Visible: true, ExpiresAt: now}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := EnsurePublic(tc.ad, now)
			if tc.visible {
				if err != nil {
					t.Fatalf("expected visible, got %v", err)
				}
				return
			}
			typed := errors.As(err)
			if typed == nil || typed.Code() != errors.CodeNotFound {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestIsPublicMatchesEnsurePublic(t *testing.T) {
	now := time.Now()
	ad := models.Ad{Visible: true, ExpiresAt: now.Add(-time.Minute)}
	if IsPublic(ad, now) {
		t.Fatal("expired ad must not be public")
	}
	ad.ExpiresAt = now.Add(time.Minute)
	if !IsPublic(ad, now) {
		t.Fatal("live ad must be public")
	}
}
