package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/pkg/dbutil"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

var hanziColumns = []string{
	"id", "character", "structure", "variant", "level", "stroke_count",
	"stroke_order", "pinyin", "comment", "image_path", "standard_image",
	"ctime", "mtime",
}

type HanziRepo struct {
	db *sql.DB
}

func NewHanziRepo(db *sql.DB) *HanziRepo {
	return &HanziRepo{db: db}
}

func scanHanzi(row interface{ Scan(...interface{}) error }) (*model.Hanzi, error) {
	var h model.Hanzi
	var structure, variant, level string
	if err := row.Scan(
		&h.ID, &h.Character, &structure, &variant, &level, &h.StrokeCount,
		&h.StrokeOrder, &h.Pinyin, &h.Comment, &h.ImagePath, &h.StandardImage,
		&h.Ctime, &h.Mtime,
	); err != nil {
		return nil, err
	}
	h.Structure = model.StructureClass(structure)
	h.Variant = model.Variant(variant)
	h.Level = model.Level(level)
	return &h, nil
}

func hanziRow(h *model.Hanzi) map[string]interface{} {
	return map[string]interface{}{
		"id":             h.ID,
		"character":      h.Character,
		"structure":      string(h.Structure),
		"variant":        string(h.Variant),
		"level":          string(h.Level),
		"stroke_count":   h.StrokeCount,
		"stroke_order":   h.StrokeOrder,
		"pinyin":         h.Pinyin,
		"comment":        h.Comment,
		"image_path":     h.ImagePath,
		"standard_image": h.StandardImage,
		"ctime":          h.Ctime,
		"mtime":          h.Mtime,
	}
}

func (r *HanziRepo) Create(ctx context.Context, h *model.Hanzi) error {
	sqlStr, args, err := builder.BuildInsert("hanzi", []map[string]interface{}{hanziRow(h)})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *HanziRepo) Get(ctx context.Context, id string) (*model.Hanzi, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("hanzi", where, hanziColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	h, err := scanHanzi(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// GetByCharacter returns the most recently touched record for a character.
// Used only when character-identity matching is explicitly requested.
func (r *HanziRepo) GetByCharacter(ctx context.Context, character string) (*model.Hanzi, error) {
	where := map[string]interface{}{
		"character": character,
		"_orderby":  "mtime desc",
		"_limit":    []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("hanzi", where, hanziColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	h, err := scanHanzi(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

func (r *HanziRepo) Update(ctx context.Context, h *model.Hanzi) error {
	update := hanziRow(h)
	delete(update, "id")
	delete(update, "ctime")
	sqlStr, args, err := builder.BuildUpdate("hanzi", map[string]interface{}{"id": h.ID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *HanziRepo) UpdateStandardImage(ctx context.Context, id, path string, mtime int64) error {
	const query = `UPDATE hanzi SET standard_image = $1, mtime = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, path, mtime, id)
	return err
}

func (r *HanziRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM hanzi WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// NextID previews the id the allocator would hand out for a structure class.
// It takes no lock; the authoritative allocation happens in InsertAllocate.
func (r *HanziRepo) NextID(ctx context.Context, structure model.StructureClass) (string, error) {
	const query = `SELECT id FROM hanzi WHERE id LIKE $1 ORDER BY id DESC LIMIT 1`
	prefix := string(structure.Prefix())
	var last string
	err := r.db.QueryRowContext(ctx, query, prefix+"%").Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, nextSequence(last)), nil
}

// InsertAllocate assigns the next free id under the record's structure-class
// prefix and inserts, all in one transaction. Allocations for the same prefix
// serialize on a per-prefix advisory lock; the unique primary key backstops
// anything that slips past, retried once.
func (r *HanziRepo) InsertAllocate(ctx context.Context, h *model.Hanzi) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id, err := r.insertAllocateOnce(ctx, h)
		if err == appErr.ErrConflict && attempt == 0 {
			continue
		}
		return id, err
	}
	return "", appErr.ErrConflict
}

func (r *HanziRepo) insertAllocateOnce(ctx context.Context, h *model.Hanzi) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id, err := allocateLocked(ctx, tx, h.Structure)
	if err != nil {
		return "", err
	}
	h.ID = id
	if err := insertTx(ctx, tx, h); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Rekey deletes the record under oldID and reinserts it under a freshly
// allocated id matching h.Structure, atomically. Implemented as delete+insert
// so the id-prefix invariant can never be observed violated.
func (r *HanziRepo) Rekey(ctx context.Context, oldID string, h *model.Hanzi) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id, err := allocateLocked(ctx, tx, h.Structure)
	if err != nil {
		return "", err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM hanzi WHERE id = $1`, oldID)
	if err != nil {
		return "", err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", appErr.ErrNotFound
	}
	h.ID = id
	if err := insertTx(ctx, tx, h); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// allocateLocked computes the next id for a prefix inside tx. It takes a
// transaction-scoped advisory lock on the prefix first: a plain FOR UPDATE on
// the max row is not enough under READ COMMITTED, where a transaction that
// waited out the lock still reads with its original snapshot and misses the
// row the winner just inserted. The advisory lock serializes allocations
// before the read, and covers the empty-prefix case where there is no row to
// lock at all.
func allocateLocked(ctx context.Context, tx *sql.Tx, structure model.StructureClass) (string, error) {
	prefix := string(structure.Prefix())
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "hanzi_id_"+prefix); err != nil {
		return "", err
	}
	const query = `SELECT id FROM hanzi WHERE id LIKE $1 ORDER BY id DESC LIMIT 1`
	var last string
	err := tx.QueryRowContext(ctx, query, prefix+"%").Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, nextSequence(last)), nil
}

// nextSequence parses the 4-digit suffix of the highest existing id. A
// malformed suffix restarts the sequence at 1, matching the allocator's
// behavior on an empty prefix.
func nextSequence(lastID string) int {
	if len(lastID) < 2 {
		return 1
	}
	n, err := strconv.Atoi(lastID[1:])
	if err != nil {
		return 1
	}
	return n + 1
}

func insertTx(ctx context.Context, tx *sql.Tx, h *model.Hanzi) error {
	sqlStr, args, err := builder.BuildInsert("hanzi", []map[string]interface{}{hanziRow(h)})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *HanziRepo) List(ctx context.Context, filter model.HanziFilter) ([]*model.Hanzi, int, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			placeholders = append(placeholders, arg(id))
		}
		conds = append(conds, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf("(character LIKE %s OR pinyin LIKE %s OR id LIKE %s)", p, p, p))
	}
	if filter.Structure != "" {
		conds = append(conds, "structure = "+arg(string(filter.Structure)))
	}
	if filter.Level != "" {
		conds = append(conds, "level = "+arg(string(filter.Level)))
	}
	if filter.Variant != "" {
		conds = append(conds, "variant = "+arg(string(filter.Variant)))
	}
	if filter.StrokeCount > 0 {
		conds = append(conds, "stroke_count = "+arg(filter.StrokeCount))
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM hanzi" + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + strings.Join(hanziColumns, ", ") + " FROM hanzi" + whereClause + " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
		query += " OFFSET " + arg(filter.Offset)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*model.Hanzi
	for rows.Next() {
		h, err := scanHanzi(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, h)
	}
	return list, total, rows.Err()
}

// StrokeSearch matches records whose stroke_order contains every token of the
// pattern, in any position.
func (r *HanziRepo) StrokeSearch(ctx context.Context, tokens []string, limit, offset int) ([]*model.Hanzi, error) {
	var conds []string
	var args []interface{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		args = append(args, "%"+token+"%")
		conds = append(conds, fmt.Sprintf("stroke_order LIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}
	query := "SELECT " + strings.Join(hanziColumns, ", ") + " FROM hanzi WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Hanzi
	for rows.Next() {
		h, err := scanHanzi(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}
