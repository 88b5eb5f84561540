package trip_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/taxiemissions/internal/domain/trip"
)

func TestRowHash_FoldsDriverTypes(t *testing.T) {
	at := time.Date(2023, 7, 4, 14, 30, 0, 0, time.UTC)
	ny, _ := time.LoadLocation("America/New_York")

	a := trip.RowHash([]any{int64(1), 2.5, "x", at, nil})
	b := trip.RowHash([]any{int32(1), float32(2.5), []byte("x"), at.In(ny), nil})
	assert.Equal(t, a, b)

	assert.NotEqual(t, trip.RowHash([]any{"ab", "c"}), trip.RowHash([]any{"a", "bc"}))
	assert.NotEqual(t, trip.RowHash([]any{nil}), trip.RowHash([]any{int64(0)}))
	assert.NotEqual(t, trip.RowHash([]any{"1"}), trip.RowHash([]any{int64(1)}))
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	rows := [][]any{{int64(1), 2.0}, {int64(2), 3.0}, {int64(3), nil}}

	var f1, f2 trip.Fingerprint
	for _, r := range rows {
		f1.Add(r)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		f2.Add(rows[i])
	}
	assert.Equal(t, f1.String(), f2.String())
	assert.Equal(t, int64(3), f1.Count())

	f2.Add(rows[0])
	assert.NotEqual(t, f1.String(), f2.String())
}

func TestDeduplicator(t *testing.T) {
	d := trip.NewDeduplicator()
	assert.False(t, d.Seen([]any{int64(1), "a"}))
	assert.False(t, d.Seen([]any{int64(2), "a"}))
	assert.True(t, d.Seen([]any{1.0, []byte("a")}))
}

func TestDeduplicator_KeepsDistinctRows(t *testing.T) {
	d := trip.NewDeduplicator()
	at := time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 200000; i++ {
		row := []any{int64(i % 7), at.Add(time.Duration(i) * time.Second), float64(i) / 10}
		if d.Seen(row) {
			t.Fatalf("row %d reported as a duplicate", i)
		}
	}
	assert.True(t, d.Seen([]any{int64(3), at.Add(10 * time.Second), 1.0}))
}
