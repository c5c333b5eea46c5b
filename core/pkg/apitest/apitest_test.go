package apitest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/chainprofile"
	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

func newSuite(profile *chainprofile.Profile) *Suite {
	return New(httpprobe.New(nil), nil, profile)
}

func TestGetInfoFlagsMismatchedChainID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chain_id":"deadbeef","server_version_string":"v3.1.2"}`))
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	stream := findings.New()
	newSuite(profile).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Crit))
}

func TestGetInfoFlagsDeprecatedVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chain_id":"aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906","server_version_string":"v2.1.0"}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Warn))
}

func TestGetInfoAcceptsCurrentVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chain_id":"aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906","server_version_string":"v3.1.2"}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestGetInfoNormalizesDirtyVersionSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chain_id":"aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906","server_version_string":"v3.1.2-dirty"}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestGetInfoFlagsClockSkew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Mon, 02 Jan 2006 15:05:00 GMT")
		w.Write([]byte(`{"chain_id":"aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906","head_block_time":"2006-01-02T15:04:00.000"}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Crit))
}

func TestGetInfoAcceptsFreshHeadBlockTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "Mon, 02 Jan 2006 15:04:03 GMT")
		w.Write([]byte(`{"chain_id":"aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906","head_block_time":"2006-01-02T15:04:00.000"}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).GetInfo(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.False(t, stream.HasKind(findings.Crit))
}

func TestABISerializerFlagsTransactionCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[]}`))
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	profile.BigBlockID = "123456"
	profile.BigBlockTxCount = 2

	stream := findings.New()
	newSuite(profile).ABISerializer(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestABISerializerAcceptsMatchingCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[1,2]}`))
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	profile.BigBlockID = "123456"
	profile.BigBlockTxCount = 2

	stream := findings.New()
	newSuite(profile).ABISerializer(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestErrorMessageFlagsEmptyDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"details":[]}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(nil).ErrorMessage(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestErrorMessageAcceptsNonEmptyDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"details":[{"message":"whoops"}]}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(nil).ErrorMessage(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestPatreonousFlagsBlockedTableRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).Patreonous(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestDisabledSideEffectActionsFlagsExposedManagementEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(nil).DisabledSideEffectActions(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Crit))
}

func TestDisabledSideEffectActionsToleratesRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example.org/not-found", http.StatusFound)
	}))
	defer srv.Close()

	client := httpprobe.New(nil)
	client.HTTP = &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	stream := findings.New()
	New(client, nil, nil).DisabledSideEffectActions(context.Background(), findings.ClassAPIEndpoint, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestWalletFlagsMissingAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[]}`))
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	profile.TestAccount = "bpone"
	profile.TestPublicKey = "EOS8testkey"

	stream := findings.New()
	newSuite(profile).Wallet(context.Background(), findings.ClassWallet, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestWalletAcceptsPopulatedAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[{"account_name":"bpone"}]}`))
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	profile.TestAccount = "bpone"
	profile.TestPublicKey = "EOS8testkey"

	stream := findings.New()
	newSuite(profile).Wallet(context.Background(), findings.ClassWallet, srv.URL, stream)

	require.Empty(t, stream.All())
}

func TestHistoryV1SetsTraditionalHistoryType(t *testing.T) {
	actions := make([]string, 100)
	for i := range actions {
		actions[i] = `{"block_time":"2099-01-01T00:00:00.000"}`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "get_actions"):
			w.Write([]byte(`{"last_irreversible_block":100,"actions":[` + strings.Join(actions, ",") + `]}`))
		case strings.Contains(r.URL.Path, "get_key_accounts"):
			w.Write([]byte(`{"account_names":["bpone"]}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	profile := chainprofile.Default()
	profile.TestPublicKey = "EOS8testkey"

	stream := findings.New()
	historyType := newSuite(profile).HistoryV1(context.Background(), findings.ClassHistory, srv.URL, stream)

	require.Equal(t, "traditional", historyType)
	require.False(t, stream.HasKind(findings.Err))
}

func TestHyperionV2HealthFlagsMissingFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"1.0","host":"` + r.Host + `","query_time_ms":10,"features":{},"health":[]}`))
	}))
	defer srv.Close()

	stream := findings.New()
	newSuite(chainprofile.Default()).HyperionV2(context.Background(), findings.ClassHyperion, srv.URL, stream)

	require.True(t, stream.HasKind(findings.Err))
}
