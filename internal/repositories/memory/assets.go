package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories"
)

type photoRepo struct{ s *Store }

func (r photoRepo) Insert(_ context.Context, photo domain.Photo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.photos[photo.ID]; ok {
		return alreadyExists("photo", photo.ID)
	}
	r.s.photos[photo.ID] = clonePhoto(photo)
	return nil
}

func (r photoRepo) FindByID(_ context.Context, photoID string) (domain.Photo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.photos[photoID]
	if !ok {
		return domain.Photo{}, notFound("photo", photoID)
	}
	return clonePhoto(stored), nil
}

func (r photoRepo) Update(_ context.Context, photo domain.Photo) (domain.Photo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.photos[photo.ID]
	if !ok {
		return domain.Photo{}, notFound("photo", photo.ID)
	}
	if stored.Version != photo.Version {
		return domain.Photo{}, versionConflict("photo", photo.ID, photo.Version, stored.Version)
	}
	next := clonePhoto(photo)
	next.Version++
	r.s.photos[photo.ID] = next
	return clonePhoto(next), nil
}

func (r photoRepo) Delete(_ context.Context, photo domain.Photo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.photos[photo.ID]
	if !ok {
		return notFound("photo", photo.ID)
	}
	if stored.Version != photo.Version {
		return versionConflict("photo", photo.ID, photo.Version, stored.Version)
	}
	delete(r.s.photos, photo.ID)
	return nil
}

func (r photoRepo) ListUnlinked(_ context.Context, before time.Time, limit int) ([]domain.Photo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Photo
	for _, p := range r.s.photos {
		if p.Unlinked && p.UnlinkedAt != nil && p.UnlinkedAt.Before(before) {
			out = append(out, clonePhoto(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlinkedAt.Before(*out[j].UnlinkedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type portfolioRepo struct{ s *Store }

func (r portfolioRepo) InsertPortfolio(_ context.Context, portfolio domain.Portfolio) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.portfolios[portfolio.ID]; ok {
		return alreadyExists("portfolio", portfolio.ID)
	}
	r.s.portfolios[portfolio.ID] = clonePortfolio(portfolio)
	return nil
}

func (r portfolioRepo) FindPortfolio(_ context.Context, portfolioID string) (domain.Portfolio, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.portfolios[portfolioID]
	if !ok {
		return domain.Portfolio{}, notFound("portfolio", portfolioID)
	}
	return clonePortfolio(stored), nil
}

func (r portfolioRepo) FindItem(_ context.Context, itemID string) (domain.PortfolioItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.items[itemID]
	if !ok {
		return domain.PortfolioItem{}, notFound("portfolio item", itemID)
	}
	return cloneItem(stored), nil
}

func (r portfolioRepo) ListItems(_ context.Context, portfolioID string) ([]domain.PortfolioItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.PortfolioItem
	for _, item := range r.s.items {
		if item.PortfolioID == portfolioID {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r portfolioRepo) Apply(_ context.Context, m repositories.PortfolioMutation) (repositories.PortfolioMutationResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.portfolios[m.PortfolioID]; !ok {
		return repositories.PortfolioMutationResult{}, notFound("portfolio", m.PortfolioID)
	}

	// Validate every precondition before touching state.
	if m.Portfolio != nil {
		stored := r.s.portfolios[m.PortfolioID]
		if stored.Version != m.Portfolio.Version {
			return repositories.PortfolioMutationResult{}, versionConflict("portfolio", m.PortfolioID, m.Portfolio.Version, stored.Version)
		}
	}
	for _, item := range m.Insert {
		if _, ok := r.s.items[item.ID]; ok {
			return repositories.PortfolioMutationResult{}, alreadyExists("portfolio item", item.ID)
		}
	}
	for _, group := range [][]domain.PortfolioItem{m.Update, m.Delete} {
		for _, item := range group {
			stored, ok := r.s.items[item.ID]
			if !ok || stored.PortfolioID != m.PortfolioID {
				return repositories.PortfolioMutationResult{}, notFound("portfolio item", item.ID)
			}
			if stored.Version != item.Version {
				return repositories.PortfolioMutationResult{}, versionConflict("portfolio item", item.ID, item.Version, stored.Version)
			}
		}
	}

	var result repositories.PortfolioMutationResult
	if m.Portfolio != nil {
		next := clonePortfolio(*m.Portfolio)
		next.Version++
		r.s.portfolios[m.PortfolioID] = next
		stored := clonePortfolio(next)
		result.Portfolio = &stored
	}
	for _, item := range m.Insert {
		next := cloneItem(item)
		next.PortfolioID = m.PortfolioID
		next.Version = 1
		r.s.items[item.ID] = next
		result.Items = append(result.Items, cloneItem(next))
	}
	for _, item := range m.Update {
		next := cloneItem(item)
		next.Version++
		r.s.items[item.ID] = next
		result.Items = append(result.Items, cloneItem(next))
	}
	for _, item := range m.Delete {
		delete(r.s.items, item.ID)
	}
	return result, nil
}
