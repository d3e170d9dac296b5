package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-manager/internal/renewal"
)

func testTarget() *renewal.Target {
	return &renewal.Target{
		CommonName: "example.com",
		Parts: []*renewal.TargetPart{
			{Identifiers: []string{"example.com", "www.example.com", "other.org"}, SiteID: 1},
		},
	}
}

func TestSingleSplit(t *testing.T) {
	r := renewal.New("test")
	orders, err := Single{}.Split(r, testTarget())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "main", orders[0].Name())
	assert.Equal(t, []string{"example.com", "other.org", "www.example.com"}, orders[0].Target.Identifiers())
}

func TestDomainSplit(t *testing.T) {
	r := renewal.New("test")
	orders, err := Domain{}.Split(r, testTarget())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// 稳定排序：example.com 在 other.org 前面
	assert.Equal(t, "example.com", orders[0].CacheKeyPart)
	assert.Equal(t, []string{"example.com", "www.example.com"}, orders[0].Target.Identifiers())
	assert.Equal(t, "example.com", orders[0].Target.CommonName)
	assert.Equal(t, []int{1}, orders[0].Target.SiteIDs())

	assert.Equal(t, "other.org", orders[1].CacheKeyPart)
	assert.Equal(t, []string{"other.org"}, orders[1].Target.Identifiers())
	// 公用名不属于这一组，落到组内第一个标识符
	assert.Equal(t, "other.org", orders[1].Target.CommonName)
}

func TestDomainSplitWildcard(t *testing.T) {
	r := renewal.New("test")
	target := &renewal.Target{
		CommonName: "*.example.com",
		Parts: []*renewal.TargetPart{
			{Identifiers: []string{"*.example.com", "example.com"}},
		},
	}

	orders, err := Domain{}.Split(r, target)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "example.com", orders[0].CacheKeyPart)
	assert.Equal(t, "*.example.com", orders[0].Target.CommonName)
}
