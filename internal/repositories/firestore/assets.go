package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lensmarket/api/internal/domain"
	pfirestore "github.com/lensmarket/api/internal/platform/firestore"
	"github.com/lensmarket/api/internal/repositories"
)

type photoRepository struct{ r *Registry }

func (p *photoRepository) Insert(ctx context.Context, photo domain.Photo) error {
	return p.r.create(ctx, photosCollection, photo.ID, encodePhoto(photo))
}

func (p *photoRepository) FindByID(ctx context.Context, photoID string) (domain.Photo, error) {
	var doc photoDocument
	if err := p.r.get(ctx, photosCollection, photoID, &doc); err != nil {
		return domain.Photo{}, err
	}
	return decodePhoto(photoID, doc), nil
}

func (p *photoRepository) Update(ctx context.Context, photo domain.Photo) (domain.Photo, error) {
	next := photo
	next.Version = photo.Version + 1
	if err := p.r.replaceVersioned(ctx, photosCollection, photo.ID, photo.Version, encodePhoto(next)); err != nil {
		return domain.Photo{}, err
	}
	return next, nil
}

func (p *photoRepository) Delete(ctx context.Context, photo domain.Photo) error {
	return p.r.deleteVersioned(ctx, photosCollection, photo.ID, photo.Version)
}

// ListUnlinked relies on the composite index (unlinked ASC, unlinkedAt ASC).
func (p *photoRepository) ListUnlinked(ctx context.Context, before time.Time, limit int) ([]domain.Photo, error) {
	coll, err := p.r.collection(ctx, photosCollection)
	if err != nil {
		return nil, err
	}
	q := coll.Where("unlinked", "==", true).
		Where("unlinkedAt", "<", before.UTC()).
		OrderBy("unlinkedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return query(ctx, q, "photos.list_unlinked", decodePhoto)
}

type portfolioRepository struct{ r *Registry }

func (p *portfolioRepository) InsertPortfolio(ctx context.Context, portfolio domain.Portfolio) error {
	return p.r.create(ctx, portfoliosCollection, portfolio.ID, encodePortfolio(portfolio))
}

func (p *portfolioRepository) FindPortfolio(ctx context.Context, portfolioID string) (domain.Portfolio, error) {
	var doc portfolioDocument
	if err := p.r.get(ctx, portfoliosCollection, portfolioID, &doc); err != nil {
		return domain.Portfolio{}, err
	}
	return decodePortfolio(portfolioID, doc), nil
}

func (p *portfolioRepository) FindItem(ctx context.Context, itemID string) (domain.PortfolioItem, error) {
	var doc portfolioItemDocument
	if err := p.r.get(ctx, portfolioItemsCollection, itemID, &doc); err != nil {
		return domain.PortfolioItem{}, err
	}
	return decodeItem(itemID, doc), nil
}

func (p *portfolioRepository) ListItems(ctx context.Context, portfolioID string) ([]domain.PortfolioItem, error) {
	coll, err := p.r.collection(ctx, portfolioItemsCollection)
	if err != nil {
		return nil, err
	}
	items, err := query(ctx, coll.Where("portfolioId", "==", portfolioID), "portfolioItems.list", decodeItem)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Apply performs the mutation in one transaction. Every precondition is read
// before the first write, as Firestore transactions require.
func (p *portfolioRepository) Apply(ctx context.Context, m repositories.PortfolioMutation) (repositories.PortfolioMutationResult, error) {
	const op = "portfolios.apply"

	client, err := p.r.provider.Client(ctx)
	if err != nil {
		return repositories.PortfolioMutationResult{}, err
	}
	headerRef := client.Collection(portfoliosCollection).Doc(m.PortfolioID)
	items := client.Collection(portfolioItemsCollection)

	var result repositories.PortfolioMutationResult
	err = p.r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.PortfolioMutationResult{}

		if m.Portfolio != nil {
			if _, err := pfirestore.ExpectVersion(tx, headerRef, op, m.Portfolio.Version); err != nil {
				return err
			}
		} else if _, err := tx.Get(headerRef); status.Code(err) == codes.NotFound {
			return pfirestore.NotFound(op, m.PortfolioID)
		} else if err != nil {
			return err
		}
		for _, group := range [][]domain.PortfolioItem{m.Update, m.Delete} {
			for _, item := range group {
				snap, err := tx.Get(items.Doc(item.ID))
				if status.Code(err) == codes.NotFound {
					return pfirestore.NotFound(op, item.ID)
				}
				if err != nil {
					return err
				}
				var stored portfolioItemDocument
				if err := snap.DataTo(&stored); err != nil {
					return err
				}
				if stored.PortfolioID != m.PortfolioID {
					return pfirestore.NotFound(op, item.ID)
				}
				if stored.Version != item.Version {
					return pfirestore.Conflict(op, "item %s version mismatch: expected %d, stored %d", item.ID, item.Version, stored.Version)
				}
			}
		}

		if m.Portfolio != nil {
			next := *m.Portfolio
			next.Version++
			if err := tx.Set(headerRef, encodePortfolio(next)); err != nil {
				return err
			}
			result.Portfolio = &next
		}
		for _, item := range m.Insert {
			next := item
			next.PortfolioID = m.PortfolioID
			next.Version = 1
			if err := tx.Create(items.Doc(item.ID), encodeItem(next)); err != nil {
				return err
			}
			result.Items = append(result.Items, next)
		}
		for _, item := range m.Update {
			next := item
			next.Version++
			if err := tx.Set(items.Doc(item.ID), encodeItem(next)); err != nil {
				return err
			}
			result.Items = append(result.Items, next)
		}
		for _, item := range m.Delete {
			if err := tx.Delete(items.Doc(item.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return repositories.PortfolioMutationResult{}, err
	}
	return result, nil
}
