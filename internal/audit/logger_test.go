package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSuccessRecordsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Success(context.Background(), "category.created", "clerk@city.gov", "category", "12", map[string]string{
		"name": "Road Works",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, true, record["audit"])
	require.Equal(t, "category.created", record["action"])
	require.Equal(t, "clerk@city.gov", record["actor"])
	require.Equal(t, "category", record["resource_type"])
	require.Equal(t, "12", record["resource_id"])
	require.Equal(t, "success", record["status"])
	require.Equal(t, "Road Works", record["detail_name"])
	require.NotEmpty(t, record["timestamp"])
}

func TestFailureOmitsResourceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Failure(context.Background(), "user.authority_created", "unknown", map[string]string{
		"reason": "invalid api key",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "failure", record["status"])
	require.Equal(t, "invalid api key", record["detail_reason"])
	require.NotContains(t, record, "resource_type")
	require.NotContains(t, record, "resource_id")
}
