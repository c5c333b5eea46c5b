package bpjson

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestSchemaValidateAcceptsWellFormedDocument(t *testing.T) {
	doc := decode(t, `{
		"producer_account_name": "bpvalidate",
		"producer_public_key": "EOS...",
		"org": {
			"candidate_name": "Poplexity",
			"location": {"name": "Remote", "country": "US", "latitude": 1, "longitude": 1}
		},
		"nodes": [{"node_type": ["producer"]}]
	}`)

	stream := findings.New()
	ok := NewSchema().Validate(findings.ClassBPJSON, doc, stream)
	require.True(t, ok)
	require.Empty(t, stream.All())
}

func TestSchemaValidateRejectsMissingRequiredField(t *testing.T) {
	doc := decode(t, `{"producer_account_name": "bpvalidate"}`)

	stream := findings.New()
	ok := NewSchema().Validate(findings.ClassBPJSON, doc, stream)
	require.False(t, ok)
	require.True(t, stream.HasKind(findings.Err))
}

func TestSchemaValidateRejectsBadNodeType(t *testing.T) {
	doc := decode(t, `{
		"producer_account_name": "bpvalidate",
		"producer_public_key": "EOS...",
		"org": {"candidate_name": "Poplexity", "location": {"name": "R", "country": "US", "latitude": 1, "longitude": 1}},
		"nodes": [{"node_type": ["not-a-real-type"]}]
	}`)

	stream := findings.New()
	ok := NewSchema().Validate(findings.ClassBPJSON, doc, stream)
	require.False(t, ok)
}

func TestCheckSocialsRequiresMinimumValidEntries(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"twitter": "example",
	}, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckSocialsAcceptsFourValidEntries(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"twitter":  "example",
		"github":   "example",
		"telegram": "example",
		"youtube":  "example",
	}, stream)

	require.Empty(t, stream.All())
}

func TestCheckSocialsFlagsUnrecognizedNetworkAsErr(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"myspace": "example",
	}, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckSocialsRejectsAbsoluteURL(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"twitter": "https://twitter.com/example",
	}, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckSocialsRejectsAtPrefixedHandle(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"twitter": "@example",
	}, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckSocialsRequiresKeybaseTrailingSlash(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"keybase": "example",
	}, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckSocialsAcceptsKeybaseWithTrailingSlash(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"keybase":  "example/",
		"github":   "example",
		"telegram": "example",
		"youtube":  "example",
	}, stream)

	require.Empty(t, stream.All())
}

func TestCheckSocialsAcceptsWechatAndRedditWithoutPrefix(t *testing.T) {
	stream := findings.New()
	CheckSocials(context.Background(), findings.ClassBPJSON, map[string]string{
		"wechat":   "example_id",
		"reddit":   "example",
		"github":   "example",
		"telegram": "example",
	}, stream)

	require.Empty(t, stream.All())
}

type stubMXResolver struct {
	records []string
	err     error
}

func (s stubMXResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	return s.records, s.err
}

func TestCheckEmailDomainRequiresMXRecord(t *testing.T) {
	stream := findings.New()
	CheckEmailDomain(context.Background(), findings.ClassBPJSON, "ops@example.org", stubMXResolver{}, stream)
	require.True(t, stream.HasKind(findings.Err))
}

func TestCheckEmailDomainAcceptsResolvedMX(t *testing.T) {
	stream := findings.New()
	CheckEmailDomain(context.Background(), findings.ClassBPJSON, "ops@example.org", stubMXResolver{records: []string{"mx1.example.org"}}, stream)
	require.Empty(t, stream.All())
}

func TestCheckEmailDomainRejectsMalformedAddress(t *testing.T) {
	stream := findings.New()
	CheckEmailDomain(context.Background(), findings.ClassBPJSON, "not-an-email", stubMXResolver{}, stream)
	require.True(t, stream.HasKind(findings.Err))
}
