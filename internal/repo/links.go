package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

var linkColumns = []any{"id", "full_url", "short_code", "owner_id", "device_id", "title", "created_at"}

type linkRow struct {
	ID        int64   `db:"id"`
	FullURL   string  `db:"full_url"`
	ShortCode string  `db:"short_code"`
	OwnerID   *int64  `db:"owner_id"`
	DeviceID  *string `db:"device_id"`
	Title     *string `db:"title"`
	CreatedAt Date    `db:"created_at"`
}

// NewLink carries the columns set when a link is inserted. Exactly one of
// OwnerID and DeviceID is expected to be set.
type NewLink struct {
	FullURL   string
	ShortCode string
	OwnerID   *int64
	DeviceID  *string
	Title     *string
}

type LinksRepo struct {
	db *db.DB
}

func NewLinksRepo(db *db.DB) *LinksRepo {
	return &LinksRepo{db: db}
}

func (r *LinksRepo) FindByCode(ctx context.Context, code string) (*internal.Link, error) {
	return r.findOne(ctx, goqu.Ex{"short_code": code})
}

// FindOwned returns the link only if it belongs to ownerID.
func (r *LinksRepo) FindOwned(ctx context.Context, id, ownerID int64) (*internal.Link, error) {
	return r.findOne(ctx, goqu.Ex{"id": id, "owner_id": ownerID})
}

func (r *LinksRepo) findOne(ctx context.Context, where goqu.Ex) (*internal.Link, error) {
	query := r.db.Goqu().From("links").Select(linkColumns...).Where(where).Limit(1)

	var row linkRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch link: %w", err)
	}
	if !found {
		return nil, internal.ErrLinkNotFound
	}
	return row.toDomain(), nil
}

func (r *LinksRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	count, err := r.db.Goqu().From("links").Where(goqu.Ex{"short_code": code}).CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to probe short code: %w", err)
	}
	return count > 0, nil
}

// Insert stores a new link. The UNIQUE constraint on short_code is the
// authority on collisions: a duplicate yields internal.ErrCodeExists.
func (r *LinksRepo) Insert(ctx context.Context, link NewLink) (int64, error) {
	log.Debug().Str("short_code", link.ShortCode).Str("url", link.FullURL).Msg("inserting link")

	now := Date(time.Now().UTC())
	insert := r.db.Goqu().Insert("links").
		Cols("full_url", "short_code", "owner_id", "device_id", "title", "created_at").
		Vals([]any{link.FullURL, link.ShortCode, nullable(link.OwnerID), nullable(link.DeviceID), nullable(link.Title), now})

	id, err := r.db.InsertReturningID(ctx, insert)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, internal.ErrCodeExists
		}
		return 0, fmt.Errorf("failed to insert link: %w", err)
	}

	log.Debug().Int64("id", id).Str("short_code", link.ShortCode).Msg("link inserted")
	return id, nil
}

func (r *LinksRepo) ListByOwner(ctx context.Context, ownerID int64) ([]internal.Link, error) {
	return r.list(ctx, goqu.Ex{"owner_id": ownerID})
}

// ListByDevice returns the links still bound to deviceID. Merged links are
// excluded since their device_id has been cleared.
func (r *LinksRepo) ListByDevice(ctx context.Context, deviceID string) ([]internal.Link, error) {
	return r.list(ctx, goqu.Ex{"device_id": deviceID, "owner_id": nil})
}

func (r *LinksRepo) list(ctx context.Context, where goqu.Ex) ([]internal.Link, error) {
	query := r.db.Goqu().From("links").
		Select(linkColumns...).
		Where(where).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())

	var rows []linkRow
	if err := query.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	links := make([]internal.Link, len(rows))
	for i, row := range rows {
		links[i] = *row.toDomain()
	}
	return links, nil
}

// UpdateTitle returns 0 when the link does not exist or belongs to someone
// else. Callers must not tell the two apart.
func (r *LinksRepo) UpdateTitle(ctx context.Context, id, ownerID int64, title *string) (int64, error) {
	update := r.db.Goqu().Update("links").
		Set(goqu.Record{"title": nullable(title)}).
		Where(goqu.Ex{"id": id, "owner_id": ownerID})

	res, err := update.Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to update title: %w", err)
	}
	return res.RowsAffected()
}

func (r *LinksRepo) Delete(ctx context.Context, id, ownerID int64) (int64, error) {
	del := r.db.Goqu().Delete("links").Where(goqu.Ex{"id": id, "owner_id": ownerID})

	res, err := del.Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete link: %w", err)
	}
	return res.RowsAffected()
}

// MergeDeviceToOwner moves every unowned link of deviceID to ownerID in a
// single UPDATE. Rows that already have an owner are left alone.
func (r *LinksRepo) MergeDeviceToOwner(ctx context.Context, deviceID string, ownerID int64) (int64, error) {
	update := r.db.Goqu().Update("links").
		Set(goqu.Record{"owner_id": ownerID, "device_id": nil}).
		Where(goqu.Ex{"device_id": deviceID, "owner_id": nil})

	res, err := update.Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to merge device links: %w", err)
	}

	merged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	log.Info().Str("device_id", deviceID).Int64("owner_id", ownerID).Int64("merged", merged).Msg("merged device links")
	return merged, nil
}

func (r *linkRow) toDomain() *internal.Link {
	return &internal.Link{
		ID:        r.ID,
		FullURL:   r.FullURL,
		ShortCode: r.ShortCode,
		OwnerID:   r.OwnerID,
		DeviceID:  r.DeviceID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt.Time(),
	}
}
