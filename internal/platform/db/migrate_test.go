package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "migrations/0001_community.sql", names[0])

	body, err := migrationFS.ReadFile(names[0])
	require.NoError(t, err)
	schema := string(body)
	for _, table := range []string{"products", "generic_products", "prices", "price_history", "price_observations", "price_votes", "idempotency_keys", "community_activity"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	require.True(t, strings.Contains(schema, "UNIQUE (observation_id, voter_id)"))
	require.True(t, strings.Contains(schema, "UNIQUE (product_id, supermarket)"))
}
