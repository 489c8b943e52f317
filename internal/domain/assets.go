package domain

import "time"

// AssetKind discriminates photos from portfolio items.
type AssetKind string

const (
	AssetKindPhoto         AssetKind = "photo"
	AssetKindPortfolioItem AssetKind = "portfolio_item"
)

// AssetRef identifies an asset by kind and id.
type AssetRef struct {
	Kind AssetKind
	ID   string
}

// Photo is an image delivered for a booking, optionally produced by a retouch order.
// Unlinked photos are soft orphans awaiting the cleanup pass.
type Photo struct {
	ID             string
	BookingID      string
	RetouchOrderID *string
	ImagePath      string
	Title          string
	Description    string
	IsPublic       bool
	ClientApproved bool
	Unlinked       bool
	UnlinkedAt     *time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Portfolio is the header row guarding a photographer's showcase items.
type Portfolio struct {
	ID          string
	OwnerID     string
	Title       string
	CoverItemID *string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PortfolioItem is a showcase image. A before-image points at its after-image
// through AfterImageID and the after-image points back through BeforeImageID.
type PortfolioItem struct {
	ID               string
	PortfolioID      string
	ImagePath        string
	Title            string
	Description      string
	IsPublic         bool
	IsBeforeImage    bool
	AfterImageID     *string
	BeforeImageID    *string
	IsPortfolioCover bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Linked reports whether the item participates in a before/after pair.
func (i PortfolioItem) Linked() bool {
	return i.AfterImageID != nil || i.BeforeImageID != nil
}

// Asset is a tagged union over Photo and PortfolioItem.
type Asset struct {
	Kind          AssetKind
	Photo         *Photo
	PortfolioItem *PortfolioItem
}

// ID returns the wrapped asset id.
func (a Asset) ID() string {
	switch a.Kind {
	case AssetKindPhoto:
		if a.Photo != nil {
			return a.Photo.ID
		}
	case AssetKindPortfolioItem:
		if a.PortfolioItem != nil {
			return a.PortfolioItem.ID
		}
	}
	return ""
}

// Ref returns the asset reference.
func (a Asset) Ref() AssetRef {
	return AssetRef{Kind: a.Kind, ID: a.ID()}
}
