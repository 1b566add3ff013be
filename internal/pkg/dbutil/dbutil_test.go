package dbutil

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRewritesLimitClause(t *testing.T) {
	query, args := Finalize(
		"SELECT * FROM hanzi WHERE level=? ORDER BY id LIMIT ?,?",
		[]interface{}{"A", 20, 10},
	)
	require.Equal(t, "SELECT * FROM hanzi WHERE level=$1 ORDER BY id LIMIT $2 OFFSET $3", query)
	// gendry emits LIMIT offset,count; postgres wants LIMIT count OFFSET
	// offset, so the two args swap.
	require.Equal(t, []interface{}{"A", 10, 20}, args)
}

func TestFinalizeWithoutLimit(t *testing.T) {
	query, args := Finalize("SELECT * FROM hanzi WHERE id=?", []interface{}{"10001"})
	require.Equal(t, "SELECT * FROM hanzi WHERE id=$1", query)
	require.Equal(t, []interface{}{"10001"}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(nil))
}
