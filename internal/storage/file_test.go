package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-manager/internal/renewal"
)

func newTestRenewal(name string, domains ...string) *renewal.Renewal {
	r := renewal.New(name)
	r.TargetOptions = &renewal.TargetOptions{
		Plugin:      "manual",
		CommonName:  domains[0],
		Identifiers: domains,
	}
	r.OrderOptions = &renewal.OrderOptions{Plugin: "single"}
	r.ValidationOptions = &renewal.ValidationOptions{Plugin: "dns"}
	return r
}

func TestRenewalStoreRoundTrip(t *testing.T) {
	store, err := NewRenewalStore(t.TempDir())
	require.NoError(t, err)

	r := newTestRenewal("站点", "persist.example.com")
	require.NoError(t, store.Save(r))
	assert.False(t, r.New, "保存后运行期标志应复位")

	byName, err := store.Find("站点")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byName.ID)
	assert.Equal(t, []string{"persist.example.com"}, byName.TargetOptions.Identifiers)

	byID, err := store.Find(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "站点", byID.FriendlyName)
}

func TestRenewalStoreDeleteAndClean(t *testing.T) {
	store, err := NewRenewalStore(t.TempDir())
	require.NoError(t, err)

	r := newTestRenewal("待删", "gone.example.com")
	require.NoError(t, store.Save(r))
	require.NoError(t, store.Delete(r))

	// 软删除后不可见但文件还在
	_, err = store.Find(r.ID)
	assert.Error(t, err)
	all, err := store.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	removed, err := store.Clean()
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, removed)

	removed, err = store.Clean()
	require.NoError(t, err)
	assert.Empty(t, removed, "重复清理应是空操作")
}

func TestRenewalStoreSkipsCorrupted(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRenewalStore(dir)
	require.NoError(t, err)

	good := newTestRenewal("正常", "ok.example.com")
	require.NoError(t, store.Save(good))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.renewal.json"), []byte("{not json"), 0600))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)
}

func TestRenewalStoreBackfillsID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRenewalStore(dir)
	require.NoError(t, err)

	// 手工迁移来的记录可能没有ID字段，按文件名补
	raw := `{"friendly_name":"迁移","target":{"plugin":"manual"},"order":{"plugin":"single"},"validation":{"plugin":"dns"},"store":[],"installation":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy-id.renewal.json"), []byte(raw), 0600))

	r, err := store.Find("legacy-id")
	require.NoError(t, err)
	assert.Equal(t, "legacy-id", r.ID)
}

func TestGlobalValidationOptionMatch(t *testing.T) {
	opt := &GlobalValidationOption{Pattern: "*.Example.COM"}

	assert.True(t, opt.Match("www.example.com"))
	assert.True(t, opt.Match("*.example.com"))
	assert.False(t, opt.Match("example.com"))
	assert.False(t, opt.Match("a.b.example.com"))

	exact := &GlobalValidationOption{Pattern: "example.com"}
	assert.True(t, exact.Match("EXAMPLE.COM"))
	assert.False(t, exact.Match("www.example.com"))
}

func TestGlobalValidationOptions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRenewalStore(dir)
	require.NoError(t, err)

	// 文件不存在时不算错误
	opts, err := store.GlobalValidationOptions()
	require.NoError(t, err)
	assert.Nil(t, opts)

	raw := `[
  {"pattern": "*.example.com", "validation": {"plugin": "dns", "provider": "aliyun"}},
  {"pattern": "", "validation": {"plugin": "dns"}},
  {"pattern": "other.org", "validation": null}
]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "globaloptions.json"), []byte(raw), 0600))

	opts, err = store.GlobalValidationOptions()
	require.NoError(t, err)
	require.Len(t, opts, 1, "空模式和空配置应被过滤")
	assert.Equal(t, "*.example.com", opts[0].Pattern)
	assert.Equal(t, "dns", opts[0].Validation.Plugin)
}
