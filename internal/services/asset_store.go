package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/platform/textutil"
	"github.com/lensmarket/api/internal/repositories"
)

const (
	photoIDPrefix         = "pho_"
	portfolioIDPrefix     = "pfl_"
	portfolioItemIDPrefix = "pfi_"

	maxTitleLength = 200
)

// AssetStoreDeps bundles collaborators required to construct the asset store.
type AssetStoreDeps struct {
	Photos        repositories.PhotoRepository
	Portfolios    repositories.PortfolioRepository
	RetouchOrders repositories.RetouchOrderRepository
	Objects       ObjectRemover
	// PathBuilder expands a bare file name into a canonical object path.
	PathBuilder func(kind domain.AssetKind, ownerID, fileName string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type assetStore struct {
	photos     repositories.PhotoRepository
	portfolios repositories.PortfolioRepository
	retouch    repositories.RetouchOrderRepository
	objects    ObjectRemover
	paths      func(domain.AssetKind, string, string) string
	clock      func() time.Time
	newID      func() string
	logger     logFunc
}

// NewAssetStore wires dependencies into a concrete AssetStore implementation.
func NewAssetStore(deps AssetStoreDeps) (AssetStore, error) {
	if deps.Photos == nil {
		return nil, errors.New("asset store: photo repository is required")
	}
	if deps.Portfolios == nil {
		return nil, errors.New("asset store: portfolio repository is required")
	}
	if deps.RetouchOrders == nil {
		return nil, errors.New("asset store: retouch order repository is required")
	}

	return &assetStore{
		photos:     deps.Photos,
		portfolios: deps.Portfolios,
		retouch:    deps.RetouchOrders,
		objects:    deps.Objects,
		paths:      deps.PathBuilder,
		clock:      defaultClock(deps.Clock),
		newID:      defaultIDGenerator(deps.IDGenerator),
		logger:     defaultLogger(deps.Logger),
	}, nil
}

func (s *assetStore) CreatePortfolio(ctx context.Context, cmd CreatePortfolioCommand) (Portfolio, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	if ownerID == "" {
		return Portfolio{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	now := s.clock()
	portfolio := Portfolio{
		ID:        portfolioIDPrefix + s.newID(),
		OwnerID:   ownerID,
		Title:     textutil.PlainText(cmd.Title, maxTitleLength),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.portfolios.InsertPortfolio(ctx, portfolio); err != nil {
		return Portfolio{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return portfolio, nil
}

func (s *assetStore) GetPortfolio(ctx context.Context, portfolioID string) (PortfolioView, error) {
	portfolio, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return PortfolioView{}, err
	}
	items, err := s.portfolios.ListItems(ctx, portfolio.ID)
	if err != nil {
		return PortfolioView{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return PortfolioView{Portfolio: portfolio, Items: items}, nil
}

func (s *assetStore) Upload(ctx context.Context, cmd UploadAssetCommand) (Asset, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	imagePath := strings.TrimSpace(cmd.ImagePath)
	if ownerID == "" {
		return Asset{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if imagePath == "" {
		return Asset{}, fmt.Errorf("%w: image path is required", ErrInvalidInput)
	}
	if !strings.Contains(imagePath, "/") && s.paths != nil {
		imagePath = s.paths(cmd.Kind, ownerID, imagePath)
	}

	switch cmd.Kind {
	case domain.AssetKindPhoto:
		return s.uploadPhoto(ctx, ownerID, imagePath, cmd)
	case domain.AssetKindPortfolioItem:
		return s.uploadPortfolioItem(ctx, ownerID, imagePath, cmd)
	default:
		return Asset{}, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, cmd.Kind)
	}
}

func (s *assetStore) uploadPhoto(ctx context.Context, bookingID, imagePath string, cmd UploadAssetCommand) (Asset, error) {
	if cmd.IsBeforeImage || cmd.AfterImageID != nil || cmd.IsPortfolioCover {
		return Asset{}, fmt.Errorf("%w: pairing and cover flags apply to portfolio items only", ErrInvalidInput)
	}
	now := s.clock()
	photo := Photo{
		ID:          photoIDPrefix + s.newID(),
		BookingID:   bookingID,
		ImagePath:   imagePath,
		Title:       textutil.PlainText(cmd.Title, maxTitleLength),
		Description: textutil.PlainText(cmd.Description, maxDescriptionLength),
		IsPublic:    cmd.IsPublic,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if id := strings.TrimSpace(derefString(cmd.RetouchOrderID)); id != "" {
		photo.RetouchOrderID = &id
	}
	if cmd.Unlinked {
		photo.Unlinked = true
		photo.UnlinkedAt = &now
	}
	if err := s.photos.Insert(ctx, photo); err != nil {
		return Asset{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	s.logger(ctx, "asset.photo.uploaded", map[string]any{
		"photo":    photo.ID,
		"booking":  photo.BookingID,
		"unlinked": photo.Unlinked,
	})
	return Asset{Kind: domain.AssetKindPhoto, Photo: &photo}, nil
}

func (s *assetStore) uploadPortfolioItem(ctx context.Context, portfolioID, imagePath string, cmd UploadAssetCommand) (Asset, error) {
	if cmd.RetouchOrderID != nil || cmd.Unlinked {
		return Asset{}, fmt.Errorf("%w: retouch linkage applies to photos only", ErrInvalidInput)
	}
	afterID := strings.TrimSpace(derefString(cmd.AfterImageID))
	if cmd.IsBeforeImage != (afterID != "") {
		return Asset{}, fmt.Errorf("%w: a before image requires an after image id and vice versa", ErrInvalidInput)
	}

	portfolio, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return Asset{}, err
	}

	now := s.clock()
	item := PortfolioItem{
		ID:          portfolioItemIDPrefix + s.newID(),
		PortfolioID: portfolio.ID,
		ImagePath:   imagePath,
		Title:       textutil.PlainText(cmd.Title, maxTitleLength),
		Description: textutil.PlainText(cmd.Description, maxDescriptionLength),
		IsPublic:    cmd.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mutation := repositories.PortfolioMutation{PortfolioID: portfolio.ID}

	if cmd.IsBeforeImage {
		after, err := s.loadItem(ctx, afterID)
		if err != nil {
			return Asset{}, err
		}
		if after.PortfolioID != portfolio.ID {
			return Asset{}, fmt.Errorf("%w: after image %s belongs to %s", ErrCrossPortfolio, after.ID, after.PortfolioID)
		}
		if after.IsBeforeImage || after.Linked() {
			return Asset{}, fmt.Errorf("%w: after image %s", ErrAlreadyLinked, after.ID)
		}
		item.IsBeforeImage = true
		item.AfterImageID = &after.ID
		after.BeforeImageID = &item.ID
		after.UpdatedAt = now
		mutation.Update = append(mutation.Update, after)
	}

	if cmd.IsPortfolioCover {
		item.IsPortfolioCover = true
		updates, err := s.clearCover(ctx, portfolio, item.ID, now)
		if err != nil {
			return Asset{}, err
		}
		for _, cleared := range updates {
			mutation.Update = mergeCoverClear(mutation.Update, cleared)
		}
		portfolio.CoverItemID = &item.ID
		portfolio.UpdatedAt = now
		mutation.Portfolio = &portfolio
	}

	mutation.Insert = []PortfolioItem{item}
	result, err := s.portfolios.Apply(ctx, mutation)
	if err != nil {
		return Asset{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	stored := item
	stored.Version = 1
	for _, candidate := range result.Items {
		if candidate.ID == item.ID {
			stored = candidate
		}
	}

	s.logger(ctx, "asset.portfolio_item.uploaded", map[string]any{
		"item":      stored.ID,
		"portfolio": stored.PortfolioID,
		"before":    stored.IsBeforeImage,
		"cover":     stored.IsPortfolioCover,
	})
	return Asset{Kind: domain.AssetKindPortfolioItem, PortfolioItem: &stored}, nil
}

func (s *assetStore) GetAsset(ctx context.Context, ref AssetRef) (Asset, error) {
	switch ref.Kind {
	case domain.AssetKindPhoto:
		photo, err := s.loadPhoto(ctx, ref.ID)
		if err != nil {
			return Asset{}, err
		}
		return Asset{Kind: ref.Kind, Photo: &photo}, nil
	case domain.AssetKindPortfolioItem:
		item, err := s.loadItem(ctx, ref.ID)
		if err != nil {
			return Asset{}, err
		}
		return Asset{Kind: ref.Kind, PortfolioItem: &item}, nil
	default:
		return Asset{}, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, ref.Kind)
	}
}

func (s *assetStore) LinkBeforeAfter(ctx context.Context, cmd LinkBeforeAfterCommand) error {
	beforeID := strings.TrimSpace(cmd.BeforeID)
	afterID := strings.TrimSpace(cmd.AfterID)
	if beforeID == "" || afterID == "" {
		return fmt.Errorf("%w: before and after ids are required", ErrInvalidInput)
	}
	if beforeID == afterID {
		return fmt.Errorf("%w: %s", ErrSelfReference, beforeID)
	}

	before, err := s.loadItem(ctx, beforeID)
	if err != nil {
		return err
	}
	after, err := s.loadItem(ctx, afterID)
	if err != nil {
		return err
	}
	if before.PortfolioID != after.PortfolioID {
		return fmt.Errorf("%w: %s is in %s, %s is in %s", ErrCrossPortfolio, before.ID, before.PortfolioID, after.ID, after.PortfolioID)
	}

	// Re-linking the exact same pair leaves the state as requested.
	if derefString(before.AfterImageID) == after.ID && derefString(after.BeforeImageID) == before.ID {
		return nil
	}
	if before.Linked() {
		return fmt.Errorf("%w: %s", ErrAlreadyLinked, before.ID)
	}
	if after.Linked() {
		return fmt.Errorf("%w: %s", ErrAlreadyLinked, after.ID)
	}

	now := s.clock()
	before.IsBeforeImage = true
	before.AfterImageID = &after.ID
	before.UpdatedAt = now
	after.BeforeImageID = &before.ID
	after.UpdatedAt = now

	if _, err := s.portfolios.Apply(ctx, repositories.PortfolioMutation{
		PortfolioID: before.PortfolioID,
		Update:      []PortfolioItem{before, after},
	}); err != nil {
		return mapRepositoryError(err, ErrAssetNotFound)
	}

	s.logger(ctx, "asset.pair.linked", map[string]any{
		"before":    before.ID,
		"after":     after.ID,
		"portfolio": before.PortfolioID,
	})
	return nil
}

func (s *assetStore) UnlinkBeforeAfter(ctx context.Context, beforeID string) error {
	before, err := s.loadItem(ctx, beforeID)
	if err != nil {
		return err
	}
	if !before.IsBeforeImage || before.AfterImageID == nil {
		return fmt.Errorf("%w: %s is not a before image", ErrInvalidState, before.ID)
	}
	after, err := s.loadItem(ctx, *before.AfterImageID)
	if err != nil {
		return err
	}

	now := s.clock()
	before.IsBeforeImage = false
	before.AfterImageID = nil
	before.UpdatedAt = now
	updates := []PortfolioItem{before}
	if derefString(after.BeforeImageID) == before.ID {
		after.BeforeImageID = nil
		after.UpdatedAt = now
		updates = append(updates, after)
	}

	if _, err := s.portfolios.Apply(ctx, repositories.PortfolioMutation{
		PortfolioID: before.PortfolioID,
		Update:      updates,
	}); err != nil {
		return mapRepositoryError(err, ErrAssetNotFound)
	}
	s.logger(ctx, "asset.pair.unlinked", map[string]any{"before": before.ID, "after": after.ID})
	return nil
}

func (s *assetStore) SetCover(ctx context.Context, cmd SetCoverCommand) error {
	portfolio, err := s.loadPortfolio(ctx, cmd.PortfolioID)
	if err != nil {
		return err
	}
	item, err := s.loadItem(ctx, cmd.ItemID)
	if err != nil {
		return err
	}
	if item.PortfolioID != portfolio.ID {
		return fmt.Errorf("%w: item %s belongs to %s", ErrCrossPortfolio, item.ID, item.PortfolioID)
	}
	if item.IsPortfolioCover && derefString(portfolio.CoverItemID) == item.ID {
		return nil
	}

	now := s.clock()
	updates, err := s.clearCover(ctx, portfolio, item.ID, now)
	if err != nil {
		return err
	}
	item.IsPortfolioCover = true
	item.UpdatedAt = now
	updates = append(updates, item)

	portfolio.CoverItemID = &item.ID
	portfolio.UpdatedAt = now

	// The portfolio header version serialises concurrent cover changes.
	if _, err := s.portfolios.Apply(ctx, repositories.PortfolioMutation{
		PortfolioID: portfolio.ID,
		Portfolio:   &portfolio,
		Update:      updates,
	}); err != nil {
		return mapRepositoryError(err, ErrAssetNotFound)
	}

	s.logger(ctx, "asset.cover.set", map[string]any{"portfolio": portfolio.ID, "item": item.ID})
	return nil
}

func (s *assetStore) Approve(ctx context.Context, cmd ApprovePhotoCommand) (Photo, error) {
	photo, err := s.loadPhoto(ctx, cmd.PhotoID)
	if err != nil {
		return Photo{}, err
	}
	photo.ClientApproved = cmd.Approved
	photo.UpdatedAt = s.clock()
	saved, err := s.photos.Update(ctx, photo)
	if err != nil {
		return Photo{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return saved, nil
}

func (s *assetStore) Delete(ctx context.Context, ref AssetRef) error {
	switch ref.Kind {
	case domain.AssetKindPhoto:
		return s.deletePhoto(ctx, ref.ID)
	case domain.AssetKindPortfolioItem:
		return s.deletePortfolioItem(ctx, ref.ID)
	default:
		return fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, ref.Kind)
	}
}

func (s *assetStore) deletePhoto(ctx context.Context, photoID string) error {
	photo, err := s.loadPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	inUse, err := s.photoReferenced(ctx, photo.ID, true)
	if err != nil {
		return err
	}
	if inUse != "" {
		return fmt.Errorf("%w: photo %s is referenced by %s", ErrAssetInUse, photo.ID, inUse)
	}
	if err := s.photos.Delete(ctx, photo); err != nil {
		return mapRepositoryError(err, ErrAssetNotFound)
	}
	s.removeObject(ctx, photo.ImagePath)
	s.logger(ctx, "asset.photo.deleted", map[string]any{"photo": photo.ID})
	return nil
}

func (s *assetStore) deletePortfolioItem(ctx context.Context, itemID string) error {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Linked() {
		return fmt.Errorf("%w: item %s is part of a before/after pair", ErrAssetInUse, item.ID)
	}

	mutation := repositories.PortfolioMutation{
		PortfolioID: item.PortfolioID,
		Delete:      []PortfolioItem{item},
	}
	portfolio, err := s.loadPortfolio(ctx, item.PortfolioID)
	if err != nil {
		return err
	}
	if derefString(portfolio.CoverItemID) == item.ID {
		portfolio.CoverItemID = nil
		portfolio.UpdatedAt = s.clock()
		mutation.Portfolio = &portfolio
	}

	if _, err := s.portfolios.Apply(ctx, mutation); err != nil {
		return mapRepositoryError(err, ErrAssetNotFound)
	}
	s.removeObject(ctx, item.ImagePath)
	s.logger(ctx, "asset.portfolio_item.deleted", map[string]any{"item": item.ID, "portfolio": item.PortfolioID})
	return nil
}

func (s *assetStore) MarkUnlinked(ctx context.Context, photoID string) (Photo, error) {
	return s.setUnlinked(ctx, photoID, true)
}

func (s *assetStore) MarkLinked(ctx context.Context, photoID string) (Photo, error) {
	return s.setUnlinked(ctx, photoID, false)
}

func (s *assetStore) setUnlinked(ctx context.Context, photoID string, unlinked bool) (Photo, error) {
	var saved Photo
	err := retryOnConflict(ctx, RetryPolicy{}, nil, func(ctx context.Context) error {
		photo, err := s.loadPhoto(ctx, photoID)
		if err != nil {
			return err
		}
		now := s.clock()
		photo.Unlinked = unlinked
		if unlinked {
			photo.UnlinkedAt = &now
		} else {
			photo.UnlinkedAt = nil
		}
		photo.UpdatedAt = now
		saved, err = s.photos.Update(ctx, photo)
		return mapRepositoryError(err, ErrAssetNotFound)
	})
	if err != nil {
		return Photo{}, err
	}
	return saved, nil
}

func (s *assetStore) ListUnlinkedPhotos(ctx context.Context, before time.Time, limit int) ([]Photo, error) {
	photos, err := s.photos.ListUnlinked(ctx, before.UTC(), limit)
	if err != nil {
		return nil, mapRepositoryError(err, ErrAssetNotFound)
	}
	return photos, nil
}

// PurgeUnlinkedPhoto deletes one soft-orphaned photo flagged before the cutoff.
// Photos that turn out to be referenced by a live order are re-linked instead.
// Repeated or concurrent calls for the same photo are harmless.
func (s *assetStore) PurgeUnlinkedPhoto(ctx context.Context, photoID string, before time.Time) (PurgeOutcome, error) {
	photo, err := s.loadPhoto(ctx, photoID)
	if errors.Is(err, ErrAssetNotFound) {
		return PurgeOutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if !photo.Unlinked || photo.UnlinkedAt == nil || !photo.UnlinkedAt.Before(before) {
		return PurgeOutcomeSkipped, nil
	}

	ref, err := s.photoReferenced(ctx, photo.ID, false)
	if err != nil {
		return "", err
	}
	if ref != "" {
		photo.Unlinked = false
		photo.UnlinkedAt = nil
		photo.UpdatedAt = s.clock()
		if _, err := s.photos.Update(ctx, photo); err != nil {
			return "", mapRepositoryError(err, ErrAssetNotFound)
		}
		s.logger(ctx, "asset.unlinked.relinked", map[string]any{"photo": photo.ID, "order": ref})
		return PurgeOutcomeRelinked, nil
	}

	if err := s.photos.Delete(ctx, photo); err != nil {
		mapped := mapRepositoryError(err, ErrAssetNotFound)
		if errors.Is(mapped, ErrAssetNotFound) {
			return PurgeOutcomeSkipped, nil
		}
		return "", mapped
	}
	s.removeObject(ctx, photo.ImagePath)
	s.logger(ctx, "asset.unlinked.purged", map[string]any{"photo": photo.ID, "path": photo.ImagePath})
	return PurgeOutcomeDeleted, nil
}

// photoReferenced returns the id of a live order referencing the photo. With
// includeSource, pending or in-progress orders retouching the photo count too.
func (s *assetStore) photoReferenced(ctx context.Context, photoID string, includeSource bool) (string, error) {
	orders, err := s.retouch.ListByPhoto(ctx, photoID)
	if err != nil {
		return "", mapRepositoryError(err, ErrOrderNotFound)
	}
	for _, order := range orders {
		if derefString(order.RetouchedPhotoID) == photoID && order.Status != domain.OrderStatusCancelled {
			return order.ID, nil
		}
		if includeSource && order.SourcePhotoID == photoID && !order.Status.Terminal() {
			return order.ID, nil
		}
	}
	return "", nil
}

// clearCover returns updates removing the cover flag from every item other than keepID.
func (s *assetStore) clearCover(ctx context.Context, portfolio Portfolio, keepID string, now time.Time) ([]PortfolioItem, error) {
	items, err := s.portfolios.ListItems(ctx, portfolio.ID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrAssetNotFound)
	}
	var updates []PortfolioItem
	for _, item := range items {
		if item.ID == keepID || !item.IsPortfolioCover {
			continue
		}
		item.IsPortfolioCover = false
		item.UpdatedAt = now
		updates = append(updates, item)
	}
	return updates, nil
}

// mergeCoverClear folds a cover clear into an update already queued for the
// same item so a mutation never carries one item twice.
func mergeCoverClear(updates []PortfolioItem, cleared PortfolioItem) []PortfolioItem {
	for i := range updates {
		if updates[i].ID == cleared.ID {
			updates[i].IsPortfolioCover = false
			return updates
		}
	}
	return append(updates, cleared)
}

func (s *assetStore) removeObject(ctx context.Context, path string) {
	if s.objects == nil || path == "" {
		return
	}
	if err := s.objects.Remove(ctx, path); err != nil {
		s.logger(ctx, "asset.object.remove.failed", map[string]any{"path": path, "error": err.Error()})
	}
}

func (s *assetStore) loadPhoto(ctx context.Context, photoID string) (Photo, error) {
	photoID = strings.TrimSpace(photoID)
	if photoID == "" {
		return Photo{}, fmt.Errorf("%w: photo id is required", ErrInvalidInput)
	}
	photo, err := s.photos.FindByID(ctx, photoID)
	if err != nil {
		return Photo{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return photo, nil
}

func (s *assetStore) loadItem(ctx context.Context, itemID string) (PortfolioItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return PortfolioItem{}, fmt.Errorf("%w: portfolio item id is required", ErrInvalidInput)
	}
	item, err := s.portfolios.FindItem(ctx, itemID)
	if err != nil {
		return PortfolioItem{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return item, nil
}

func (s *assetStore) loadPortfolio(ctx context.Context, portfolioID string) (Portfolio, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return Portfolio{}, fmt.Errorf("%w: portfolio id is required", ErrInvalidInput)
	}
	portfolio, err := s.portfolios.FindPortfolio(ctx, portfolioID)
	if err != nil {
		return Portfolio{}, mapRepositoryError(err, ErrAssetNotFound)
	}
	return portfolio, nil
}
