package services

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyChecksumIsStable(t *testing.T) {
	data := []byte("grant application budget 2026")

	first := Identify(data, "budget.xlsx")
	second := Identify(data, "budget.xlsx")

	assert.Equal(t, first.ChecksumHex, second.ChecksumHex, "identical bytes must produce identical checksums")
	assert.NotEqual(t, first.StorageName, second.StorageName, "storage names must be unique per upload")
}

func TestIdentifyChecksumFormat(t *testing.T) {
	identity := Identify([]byte("hello"), "hello.txt")

	require.Len(t, identity.ChecksumHex, 64)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), identity.ChecksumHex)
}

func TestIdentifyStorageNameCarriesSanitizedOriginal(t *testing.T) {
	identity := Identify([]byte("x"), "Q3 report (final).pdf")

	assert.True(t, strings.HasSuffix(identity.StorageName, "Q3_report__final_.pdf"))
	assert.NotContains(t, identity.StorageName, " ")
	assert.NotContains(t, identity.StorageName, "(")
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":        "report.pdf",
		"a b/c\\d.txt":      "a_b_c_d.txt",
		"über-grant.docx":   "_ber-grant.docx",
		"":                  "unnamed",
		"...":               "...",
		"UPPER-lower_9.gif": "UPPER-lower_9.gif",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeName(input), "input %q", input)
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("payload")
	identity := Identify(data, "p.txt")

	assert.True(t, VerifyChecksum(data, identity.ChecksumHex))
	assert.False(t, VerifyChecksum([]byte("tampered"), identity.ChecksumHex))
}
