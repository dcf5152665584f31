package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	mysqldrv "github.com/go-sql-driver/mysql"

	"restaurant_offline/internal/adapters/observability"
	"restaurant_offline/internal/domain"
)

const errDuplicateEntry = 1062

// Repo is the durable entity store. Each restaurant is one JSON document
// plus a few indexed columns; writes are guarded by a version counter.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id int64) (domain.Restaurant, bool, error) {
	row := r.db.QueryRowContext(ctx, getRestaurantSQL, id)
	rs, err := scanRestaurant(row)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveStore("get", "miss")
		return domain.Restaurant{}, false, nil
	}
	if err != nil {
		observability.ObserveStore("get", "error")
		return domain.Restaurant{}, false, fmt.Errorf("%w: get %d: %v", domain.ErrStore, id, err)
	}
	observability.ObserveStore("get", "ok")
	return rs, true, nil
}

func (r *Repo) GetAll(ctx context.Context) ([]domain.Restaurant, error) {
	rows, err := r.db.QueryContext(ctx, listRestaurantsSQL)
	if err != nil {
		observability.ObserveStore("get_all", "error")
		return nil, fmt.Errorf("%w: list: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	out := []domain.Restaurant{}
	for rows.Next() {
		rs, err := scanRestaurant(rows)
		if err != nil {
			observability.ObserveStore("get_all", "error")
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStore, err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		observability.ObserveStore("get_all", "error")
		return nil, fmt.Errorf("%w: list: %v", domain.ErrStore, err)
	}
	observability.ObserveStore("get_all", "ok")
	return out, nil
}

// Put inserts when rs.Version is 0 and otherwise updates only the stored
// row carrying the same version. On success rs.Version is advanced.
func (r *Repo) Put(ctx context.Context, rs *domain.Restaurant) error {
	doc, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("%w: encode %d: %v", domain.ErrStore, rs.ID, err)
	}
	unsynced := rs.UnsyncedReviews()

	if rs.Version == 0 {
		_, err := r.db.ExecContext(ctx, insertRestaurantSQL,
			rs.ID, rs.Name, rs.Neighborhood, rs.CuisineType, string(doc), unsynced)
		var me *mysqldrv.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			observability.ObserveStore("put", "conflict")
			return fmt.Errorf("%w: restaurant %d already stored", domain.ErrConflict, rs.ID)
		}
		if err != nil {
			observability.ObserveStore("put", "error")
			return fmt.Errorf("%w: insert %d: %v", domain.ErrStore, rs.ID, err)
		}
		rs.Version = 1
		observability.ObserveStore("put", "ok")
		return nil
	}

	res, err := r.db.ExecContext(ctx, updateRestaurantSQL,
		rs.Name, rs.Neighborhood, rs.CuisineType, string(doc), unsynced, rs.ID, rs.Version)
	if err != nil {
		observability.ObserveStore("put", "error")
		return fmt.Errorf("%w: update %d: %v", domain.ErrStore, rs.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		observability.ObserveStore("put", "error")
		return fmt.Errorf("%w: update %d: %v", domain.ErrStore, rs.ID, err)
	}
	if n == 0 {
		observability.ObserveStore("put", "conflict")
		return fmt.Errorf("%w: restaurant %d changed since version %d", domain.ErrConflict, rs.ID, rs.Version)
	}
	rs.Version++
	observability.ObserveStore("put", "ok")
	return nil
}

// LogFailure keeps an audit row per replay item that the remote refused.
func (r *Repo) LogFailure(ctx context.Context, restaurantID int64, localID, kind, reason string) error {
	_, err := r.db.ExecContext(ctx, insertSyncFailureSQL, restaurantID, localID, kind, reason)
	if err != nil {
		return fmt.Errorf("%w: log failure: %v", domain.ErrStore, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRestaurant(s scanner) (domain.Restaurant, error) {
	var (
		id      int64
		doc     []byte
		version int64
	)
	if err := s.Scan(&id, &doc, &version); err != nil {
		return domain.Restaurant{}, err
	}
	var rs domain.Restaurant
	if err := json.Unmarshal(doc, &rs); err != nil {
		return domain.Restaurant{}, fmt.Errorf("decode %d: %w", id, err)
	}
	rs.ID = id
	rs.Version = version
	return rs, nil
}
