package dynamo

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrKey(t *testing.T) {
	key := strKey("user_id", "u1")
	require.Len(t, key, 1)
	assert.Equal(t, "u1", key["user_id"].(*types.AttributeValueMemberS).Value)
}

func TestCompositeKey(t *testing.T) {
	key := compositeKey("gateway", "stripe", "gateway_ref", "cs_1")
	require.Len(t, key, 2)
	assert.Equal(t, "stripe", key["gateway"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "cs_1", key["gateway_ref"].(*types.AttributeValueMemberS).Value)
}

func TestBuildUpdateExpr(t *testing.T) {
	expr, names, values, err := buildUpdateExpr(map[string]interface{}{
		"status":     "expired",
		"expires_at": int64(1700000000),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, "SET "))
	assert.Len(t, names, 2)
	assert.Len(t, values, 2)

	// Every placeholder in the expression resolves to a real name and value.
	for nameKey, attr := range names {
		assert.Contains(t, expr, nameKey)
		assert.Contains(t, []string{"status", "expires_at"}, attr)
	}
	for valueKey := range values {
		assert.Contains(t, expr, valueKey)
	}
}

func TestBuildUpdateExpr_Empty(t *testing.T) {
	_, _, _, err := buildUpdateExpr(map[string]interface{}{})
	assert.Error(t, err)
}
