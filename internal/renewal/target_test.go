package renewal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetIdentifiers(t *testing.T) {
	target := &Target{
		Parts: []*TargetPart{
			{Identifiers: []string{"B.example.com", "a.example.com"}},
			{Identifiers: []string{"a.example.com", "c.example.com"}},
		},
	}
	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, target.Identifiers())
}

func TestTargetSiteIDs(t *testing.T) {
	target := &Target{
		Parts: []*TargetPart{
			{Identifiers: []string{"a.example.com"}, SiteID: 3},
			{Identifiers: []string{"b.example.com"}},
			{Identifiers: []string{"c.example.com"}, SiteID: 1},
		},
	}
	assert.Equal(t, []int{3, 1}, target.SiteIDs())
}

func TestTargetValidate(t *testing.T) {
	target := &Target{
		CommonName: "example.com",
		Parts:      []*TargetPart{{Identifiers: []string{"example.com", "www.example.com"}}},
	}
	assert.NoError(t, target.Validate(100))
}

func TestTargetValidateEmpty(t *testing.T) {
	target := &Target{}
	assert.Error(t, target.Validate(100))
}

func TestTargetValidateTooMany(t *testing.T) {
	part := &TargetPart{}
	for i := 0; i < 5; i++ {
		part.Identifiers = append(part.Identifiers, string(rune('a'+i))+".example.com")
	}
	target := &Target{Parts: []*TargetPart{part}}

	assert.NoError(t, target.Validate(5))
	assert.Error(t, target.Validate(4))
	assert.NoError(t, target.Validate(0))
}

func TestTargetValidateCommonName(t *testing.T) {
	// 公用名必须出现在标识符列表中
	target := &Target{
		CommonName: "other.com",
		Parts:      []*TargetPart{{Identifiers: []string{"example.com"}}},
	}
	assert.Error(t, target.Validate(100))

	// 超长公用名
	long := strings.Repeat("a", 60) + ".example.com"
	target = &Target{
		CommonName: long,
		Parts:      []*TargetPart{{Identifiers: []string{long}}},
	}
	assert.Error(t, target.Validate(100))
}
