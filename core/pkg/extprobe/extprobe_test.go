package extprobe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleNmapXML = `<?xml version="1.0"?>
<nmaprun>
  <host>
    <ports>
      <port protocol="tcp" portid="443">
        <script id="ssl-enum-ciphers" output="...">
          <table key="TLSv1.0"></table>
          <table key="TLSv1.2"></table>
          <table key="TLSv1.3"></table>
        </script>
      </port>
    </ports>
  </host>
</nmaprun>`

func TestParseNmapTLSVersions(t *testing.T) {
	versions, err := ParseNmapTLSVersions([]byte(sampleNmapXML))
	require.NoError(t, err)
	require.Equal(t, []string{"TLSv1.0", "TLSv1.2", "TLSv1.3"}, versions)
}

func TestParseNmapTLSVersionsInvalidXML(t *testing.T) {
	_, err := ParseNmapTLSVersions([]byte("not xml"))
	require.Error(t, err)
}

func TestParseCurlHTTP2(t *testing.T) {
	require.True(t, ParseCurlHTTP2("* Using HTTP2, server supports multiplexing\n< HTTP/2 200"))
	require.False(t, ParseCurlHTTP2("* Using HTTP1.1"))
}
