package visibility

import (
	"time"

	"github.com/angelmondragon/adboard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
)

// IsPublic reports whether an ad may be shown to anonymous readers at now.
func IsPublic(ad models.Ad, now time.Time) bool {
	return ad.Visible && !ad.IsExpired(now)
}

// EnsurePublic gates public reads so hidden or expired ads look absent.
func EnsurePublic(ad *models.Ad, now time.Time) error {
	if ad == nil || !IsPublic(*ad, now) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
	}
	return nil
}
