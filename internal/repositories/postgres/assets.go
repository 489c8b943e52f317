package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories"
)

const (
	photosTable         = "photos"
	portfoliosTable     = "portfolios"
	portfolioItemsTable = "portfolio_items"
)

var photoColumns = []string{
	"id", "booking_id", "retouch_order_id", "image_path", "title", "description",
	"is_public", "client_approved", "unlinked", "unlinked_at",
	"version", "created_at", "updated_at",
}

func photoValues(p domain.Photo) []any {
	return []any{
		p.ID, p.BookingID, p.RetouchOrderID, p.ImagePath, p.Title, p.Description,
		p.IsPublic, p.ClientApproved, p.Unlinked, utcPtr(p.UnlinkedAt),
		p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func scanPhoto(row pgx.Row) (domain.Photo, error) {
	var p domain.Photo
	err := row.Scan(
		&p.ID, &p.BookingID, &p.RetouchOrderID, &p.ImagePath, &p.Title, &p.Description,
		&p.IsPublic, &p.ClientApproved, &p.Unlinked, &p.UnlinkedAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Photo{}, err
	}
	p.UnlinkedAt = utcPtr(p.UnlinkedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

type photoRepository struct {
	pool *pgxpool.Pool
}

func (r *photoRepository) Insert(ctx context.Context, photo domain.Photo) error {
	return execInsert(ctx, r.pool, "photos.insert",
		psql.Insert(photosTable).Columns(photoColumns...).Values(photoValues(photo)...))
}

func (r *photoRepository) FindByID(ctx context.Context, photoID string) (domain.Photo, error) {
	return selectOne(ctx, r.pool, "photos.get", photoID,
		psql.Select(photoColumns...).From(photosTable).Where(sq.Eq{"id": photoID}), scanPhoto)
}

func (r *photoRepository) Update(ctx context.Context, photo domain.Photo) (domain.Photo, error) {
	next := photo
	next.Version = photo.Version + 1
	query, args, err := updateVersioned(photosTable, photoColumns, photoValues(next), photo.ID, photo.Version)
	if err != nil {
		return domain.Photo{}, err
	}
	if err := execVersioned(ctx, r.pool, "photos.update", photosTable, photo.ID, photo.Version, query, args); err != nil {
		return domain.Photo{}, err
	}
	return next, nil
}

func (r *photoRepository) Delete(ctx context.Context, photo domain.Photo) error {
	query, args, err := deleteVersioned(photosTable, photo.ID, photo.Version)
	if err != nil {
		return err
	}
	return execVersioned(ctx, r.pool, "photos.delete", photosTable, photo.ID, photo.Version, query, args)
}

func (r *photoRepository) ListUnlinked(ctx context.Context, before time.Time, limit int) ([]domain.Photo, error) {
	builder := psql.Select(photoColumns...).From(photosTable).
		Where(sq.Eq{"unlinked": true}).
		Where(sq.Lt{"unlinked_at": before.UTC()}).
		OrderBy("unlinked_at", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return selectMany(ctx, r.pool, "photos.listUnlinked", builder, scanPhoto)
}

var portfolioColumns = []string{"id", "owner_id", "title", "cover_item_id", "version", "created_at", "updated_at"}

func portfolioValues(p domain.Portfolio) []any {
	return []any{p.ID, p.OwnerID, p.Title, p.CoverItemID, p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC()}
}

func scanPortfolio(row pgx.Row) (domain.Portfolio, error) {
	var p domain.Portfolio
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.CoverItemID, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Portfolio{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

var itemColumns = []string{
	"id", "portfolio_id", "image_path", "title", "description",
	"is_public", "is_before_image", "after_image_id", "before_image_id", "is_portfolio_cover",
	"version", "created_at", "updated_at",
}

func itemValues(i domain.PortfolioItem) []any {
	return []any{
		i.ID, i.PortfolioID, i.ImagePath, i.Title, i.Description,
		i.IsPublic, i.IsBeforeImage, i.AfterImageID, i.BeforeImageID, i.IsPortfolioCover,
		i.Version, i.CreatedAt.UTC(), i.UpdatedAt.UTC(),
	}
}

func scanItem(row pgx.Row) (domain.PortfolioItem, error) {
	var i domain.PortfolioItem
	err := row.Scan(
		&i.ID, &i.PortfolioID, &i.ImagePath, &i.Title, &i.Description,
		&i.IsPublic, &i.IsBeforeImage, &i.AfterImageID, &i.BeforeImageID, &i.IsPortfolioCover,
		&i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	return i, nil
}

type portfolioRepository struct {
	pool *pgxpool.Pool
}

func (r *portfolioRepository) InsertPortfolio(ctx context.Context, portfolio domain.Portfolio) error {
	return execInsert(ctx, r.pool, "portfolios.insert",
		psql.Insert(portfoliosTable).Columns(portfolioColumns...).Values(portfolioValues(portfolio)...))
}

func (r *portfolioRepository) FindPortfolio(ctx context.Context, portfolioID string) (domain.Portfolio, error) {
	return selectOne(ctx, r.pool, "portfolios.get", portfolioID,
		psql.Select(portfolioColumns...).From(portfoliosTable).Where(sq.Eq{"id": portfolioID}), scanPortfolio)
}

func (r *portfolioRepository) FindItem(ctx context.Context, itemID string) (domain.PortfolioItem, error) {
	return selectOne(ctx, r.pool, "portfolioItems.get", itemID,
		psql.Select(itemColumns...).From(portfolioItemsTable).Where(sq.Eq{"id": itemID}), scanItem)
}

func (r *portfolioRepository) ListItems(ctx context.Context, portfolioID string) ([]domain.PortfolioItem, error) {
	return selectMany(ctx, r.pool, "portfolioItems.list",
		psql.Select(itemColumns...).From(portfolioItemsTable).
			Where(sq.Eq{"portfolio_id": portfolioID}).
			OrderBy("created_at", "id"),
		scanItem)
}

// Apply locks the portfolio row for the length of the transaction so that
// concurrent mutations of the same portfolio serialise. Writes that clear a
// cover flag run before writes that set one; portfolio_items_one_cover_idx is
// checked per statement.
func (r *portfolioRepository) Apply(ctx context.Context, m repositories.PortfolioMutation) (repositories.PortfolioMutationResult, error) {
	const op = "portfolios.apply"

	var result repositories.PortfolioMutationResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result = repositories.PortfolioMutationResult{}

		lock, lockArgs, err := psql.Select("version").From(portfoliosTable).
			Where(sq.Eq{"id": m.PortfolioID}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		var stored int64
		if err := tx.QueryRow(ctx, lock, lockArgs...).Scan(&stored); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound(op, m.PortfolioID)
			}
			return wrapError(op, err)
		}
		if m.Portfolio != nil && m.Portfolio.Version != stored {
			return versionConflict(op, m.PortfolioID, m.Portfolio.Version)
		}

		for _, item := range m.Delete {
			if err := r.deleteItem(ctx, tx, op, m.PortfolioID, item); err != nil {
				return err
			}
		}

		updates := append([]domain.PortfolioItem(nil), m.Update...)
		sort.SliceStable(updates, func(i, j int) bool {
			return !updates[i].IsPortfolioCover && updates[j].IsPortfolioCover
		})
		updated := make(map[string]domain.PortfolioItem, len(updates))
		for _, item := range updates {
			next, err := r.updateItem(ctx, tx, op, m.PortfolioID, item)
			if err != nil {
				return err
			}
			updated[item.ID] = next
		}

		for _, item := range m.Insert {
			next := item
			next.PortfolioID = m.PortfolioID
			next.Version = 1
			if err := execInsert(ctx, tx, op,
				psql.Insert(portfolioItemsTable).Columns(itemColumns...).Values(itemValues(next)...)); err != nil {
				return err
			}
			result.Items = append(result.Items, next)
		}
		for _, item := range m.Update {
			result.Items = append(result.Items, updated[item.ID])
		}

		if m.Portfolio != nil {
			next := *m.Portfolio
			next.ID = m.PortfolioID
			next.Version = stored + 1
			query, args, err := updateVersioned(portfoliosTable, portfolioColumns, portfolioValues(next), m.PortfolioID, stored)
			if err != nil {
				return err
			}
			if err := execVersioned(ctx, tx, op, portfoliosTable, m.PortfolioID, stored, query, args); err != nil {
				return err
			}
			result.Portfolio = &next
		}
		return nil
	})
	if err != nil {
		return repositories.PortfolioMutationResult{}, wrapError(op, err)
	}
	return result, nil
}

func (r *portfolioRepository) updateItem(ctx context.Context, tx pgx.Tx, op, portfolioID string, item domain.PortfolioItem) (domain.PortfolioItem, error) {
	if item.PortfolioID != portfolioID {
		return domain.PortfolioItem{}, notFound(op, item.ID)
	}
	next := item
	next.Version = item.Version + 1
	builder := psql.Update(portfolioItemsTable)
	values := itemValues(next)
	for i, column := range itemColumns {
		if column == "id" || column == "portfolio_id" {
			continue
		}
		builder = builder.Set(column, values[i])
	}
	query, args, err := builder.Where(sq.Eq{"id": item.ID, "portfolio_id": portfolioID, "version": item.Version}).ToSql()
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	if err := execVersioned(ctx, tx, op, portfolioItemsTable, item.ID, item.Version, query, args); err != nil {
		return domain.PortfolioItem{}, err
	}
	return next, nil
}

func (r *portfolioRepository) deleteItem(ctx context.Context, tx pgx.Tx, op, portfolioID string, item domain.PortfolioItem) error {
	if item.PortfolioID != portfolioID {
		return notFound(op, item.ID)
	}
	query, args, err := psql.Delete(portfolioItemsTable).
		Where(sq.Eq{"id": item.ID, "portfolio_id": portfolioID, "version": item.Version}).ToSql()
	if err != nil {
		return err
	}
	return execVersioned(ctx, tx, op, portfolioItemsTable, item.ID, item.Version, query, args)
}
