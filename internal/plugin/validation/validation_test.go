package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-manager/internal/acme"
	"acme-manager/internal/plugin"
	"acme-manager/internal/provider"
	"acme-manager/internal/renewal"
)

// fakeDNS 内存DNS提供商
type fakeDNS struct {
	records map[string]*provider.DNSRecord
	next    int
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{records: make(map[string]*provider.DNSRecord)}
}

func (f *fakeDNS) Name() string { return "fake" }

func (f *fakeDNS) AddRecord(ctx context.Context, dom, rr, recordType, value string) error {
	f.next++
	id := string(rune('a' + f.next))
	f.records[id] = &provider.DNSRecord{RecordID: id, RR: rr, Type: recordType, Value: value}
	return nil
}

func (f *fakeDNS) DeleteRecord(ctx context.Context, dom, recordID string) error {
	delete(f.records, recordID)
	return nil
}

func (f *fakeDNS) FindRecord(ctx context.Context, dom, rr, recordType, value string) (*provider.DNSRecord, error) {
	for _, r := range f.records {
		if r.RR == rr && r.Type == recordType && (value == "" || r.Value == value) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeDNS) ListRecords(ctx context.Context, dom string) ([]*provider.DNSRecord, error) {
	var out []*provider.DNSRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func dnsContext(identifier, keyAuth string) *plugin.ValidationContext {
	return &plugin.ValidationContext{
		Identifier:       identifier,
		Label:            identifier,
		KeyAuthorization: keyAuth,
		Challenge:        &acme.Challenge{Type: acme.ChallengeTypeDNS01, Token: "token"},
	}
}

func TestDNSLifecycle(t *testing.T) {
	fake := newFakeDNS()
	d := NewDNS(&renewal.ValidationOptions{PropagationSeconds: 1}, fake)
	ctx := context.Background()

	res := d.PrepareChallenge(ctx, dnsContext("example.com", "token.thumb"))
	require.True(t, res.Success())
	require.Len(t, fake.records, 1)

	for _, r := range fake.records {
		assert.Equal(t, "_acme-challenge.example.com", r.RR)
		assert.Equal(t, "TXT", r.Type)
		assert.Equal(t, txtRecordValue("token.thumb"), r.Value)
	}

	res = d.Commit(ctx)
	require.True(t, res.Success())

	res = d.CleanUp(ctx)
	require.True(t, res.Success())
	assert.Empty(t, fake.records)
}

func TestDNSWildcardStripped(t *testing.T) {
	fake := newFakeDNS()
	d := NewDNS(&renewal.ValidationOptions{PropagationSeconds: 1}, fake)

	res := d.PrepareChallenge(context.Background(), dnsContext("*.example.com", "ka"))
	require.True(t, res.Success())

	for _, r := range fake.records {
		// 通配符前缀不进入记录名
		assert.Equal(t, "_acme-challenge.example.com", r.RR)
	}
}

func TestDNSCommitNoRecords(t *testing.T) {
	// 没有新记录时Commit不等待（传播等待只发生一次）
	d := NewDNS(&renewal.ValidationOptions{PropagationSeconds: 600}, newFakeDNS())
	res := d.Commit(context.Background())
	assert.True(t, res.Success())
}

func TestDNSDisabled(t *testing.T) {
	d := NewDNS(&renewal.ValidationOptions{}, nil)
	disabled, reason := d.Disabled()
	assert.True(t, disabled)
	assert.NotEmpty(t, reason)

	d = NewDNS(&renewal.ValidationOptions{Disabled: true}, newFakeDNS())
	disabled, _ = d.Disabled()
	assert.True(t, disabled)
}

func TestDNSParallelism(t *testing.T) {
	d := NewDNS(nil, newFakeDNS())
	p := d.Parallelism()
	assert.True(t, p.Has(plugin.ParallelPrepare))
	assert.True(t, p.Has(plugin.ParallelAnswer))
	assert.True(t, p.Has(plugin.ParallelReuse))

	h := NewHTTP(&renewal.ValidationOptions{Webroot: "/tmp"})
	assert.Equal(t, plugin.ParallelNone, h.Parallelism())
}

func TestDNSSelectChallenge(t *testing.T) {
	d := NewDNS(nil, newFakeDNS())
	choices := []acme.Challenge{
		{Type: acme.ChallengeTypeHTTP01},
		{Type: acme.ChallengeTypeDNS01},
	}
	chal := d.SelectChallenge(choices)
	require.NotNil(t, chal)
	assert.Equal(t, acme.ChallengeTypeDNS01, chal.Type)

	assert.Nil(t, d.SelectChallenge([]acme.Challenge{{Type: acme.ChallengeTypeHTTP01}}))
}

func TestHTTPLifecycle(t *testing.T) {
	webroot := t.TempDir()
	h := NewHTTP(&renewal.ValidationOptions{Webroot: webroot})
	ctx := context.Background()

	vc := &plugin.ValidationContext{
		Identifier:       "example.com",
		KeyAuthorization: "token.thumb",
		Challenge:        &acme.Challenge{Type: acme.ChallengeTypeHTTP01, Token: "token"},
	}

	res := h.PrepareChallenge(ctx, vc)
	require.True(t, res.Success())

	path := filepath.Join(webroot, ".well-known", "acme-challenge", "token")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "token.thumb", string(data))

	res = h.CleanUp(ctx)
	require.True(t, res.Success())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestHTTPDisabled(t *testing.T) {
	h := NewHTTP(&renewal.ValidationOptions{})
	disabled, reason := h.Disabled()
	assert.True(t, disabled)
	assert.NotEmpty(t, reason)
}
