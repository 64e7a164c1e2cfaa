package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestExtractAuthKey(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	assert.Nil(t, ExtractAuthKey(ctx))

	ctx.Request.Header.Set(AuthKeyHeader, "abcdEFGH12345678")
	key := ExtractAuthKey(ctx)
	require.NotNil(t, key)
	assert.Equal(t, "abcdEFGH12345678", key.String())

	ctx.Request.Header.Set(AuthKeyHeader, "short")
	assert.Nil(t, ExtractAuthKey(ctx))
}

func TestParseUint(t *testing.T) {
	v, ok := ParseUint("10128407")
	assert.True(t, ok)
	assert.Equal(t, uint64(10128407), v)

	for _, bad := range []string{"", "-1", "+1", "1e3", "abc", "18446744073709551616"} {
		_, ok := ParseUint(bad)
		assert.False(t, ok, bad)
	}
}

func TestPathParam(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	assert.Equal(t, "", PathParam(ctx, "name"))
	ctx.SetUserValue("name", "griffpatch")
	assert.Equal(t, "griffpatch", PathParam(ctx, "name"))
}
