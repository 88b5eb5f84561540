package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
)

func TestQuoteIdentifier(t *testing.T) {
	q, err := database.QuoteIdentifier("postgres", "yellow_trips")
	require.NoError(t, err)
	assert.Equal(t, `"yellow_trips"`, q)

	q, err = database.QuoteIdentifier("mysql", "tpep_pickup_datetime")
	require.NoError(t, err)
	assert.Equal(t, "`tpep_pickup_datetime`", q)

	for _, bad := range []string{"", "1trips", "trips; DROP TABLE x", `a"b`, "a.b"} {
		_, err := database.QuoteIdentifier("sqlite", bad)
		assert.Error(t, err, bad)
	}
}
