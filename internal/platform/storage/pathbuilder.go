package storage

import (
	"path"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"

	domain "github.com/lensmarket/api/internal/domain"
)

const defaultStem = "image"

// PathBuilder turns a client-supplied file name into a unique object path
// under the owning booking or portfolio.
type PathBuilder struct {
	token func() string
}

func NewPathBuilder() *PathBuilder {
	return &PathBuilder{token: func() string { return strings.ToLower(ulid.Make().String()) }}
}

// Build returns bookings/{owner}/photos/{stem}-{token}{ext} for photos and
// portfolios/{owner}/items/{stem}-{token}{ext} for portfolio items.
func (b *PathBuilder) Build(kind domain.AssetKind, ownerID, fileName string) string {
	prefix := "bookings"
	folder := "photos"
	if kind == domain.AssetKindPortfolioItem {
		prefix = "portfolios"
		folder = "items"
	}

	name := strings.TrimSpace(fileName)
	ext := strings.ToLower(path.Ext(name))
	if ext != "" && slug.Make(ext) != strings.TrimPrefix(ext, ".") {
		ext = ""
	}
	stem := slug.Make(strings.TrimSuffix(name, path.Ext(name)))
	if stem == "" {
		stem = defaultStem
	}
	return prefix + "/" + ownerSegment(ownerID) + "/" + folder + "/" + stem + "-" + b.token() + ext
}

func ownerSegment(ownerID string) string {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || strings.ContainsAny(ownerID, "/\\") || strings.Contains(ownerID, "..") {
		if s := slug.Make(ownerID); s != "" {
			return s
		}
		return "unknown"
	}
	return ownerID
}
