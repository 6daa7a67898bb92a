package discovery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

func TestDocLinkFor(t *testing.T) {
	assert.Equal(t,
		"https://docs.kalix.io/javascript/views.html#changing",
		DocLinkFor("KLX-00112"))
	assert.Equal(t,
		"https://docs.kalix.io/javascript/views.html",
		DocLinkFor("KLX-00199"))
	assert.Equal(t,
		"https://docs.kalix.io/javascript/value-entity.html",
		DocLinkFor("KLX-002"))
	assert.Equal(t, "", DocLinkFor("ZZZ-00112"))
	assert.Equal(t, "", DocLinkFor("KLX"))
	assert.Equal(t, "", DocLinkFor(""))
}

func TestFormatError_FullReport(t *testing.T) {
	content := "{\n  \"name\": \"some-name\",\n  \"version\": \"some-version\"\n}"
	readSource := func(name string) ([]byte, error) {
		require.Equal(t, "package.test.json", name)
		return []byte(content), nil
	}

	report := FormatError(&protocol.UserFunctionError{
		Code:    "KLX-00112",
		Message: "test message",
		Detail:  "test details",
		SourceLocations: []*protocol.SourceLocation{
			{FileName: "package.test.json", StartLine: 1, StartCol: 3, EndLine: 2, EndCol: 5},
		},
	}, readSource)

	expected := "Error reported from Kalix: KLX-00112 test message\n" +
		"\n" +
		"test details\n" +
		"See documentation: https://docs.kalix.io/javascript/views.html#changing\n" +
		"\n" +
		"At package.test.json:2:4:\n" +
		"  \"name\": \"some-name\",\n" +
		"  \"version\": \"some-version\""
	assert.Equal(t, expected, report)
}

func TestFormatError_NoDetail(t *testing.T) {
	report := FormatError(&protocol.UserFunctionError{
		Code:    "KLX-00207",
		Message: "just a message",
	}, nil)
	assert.Equal(t, "Error reported from Kalix: KLX-00207 just a message", report)
}

func TestFormatError_UnknownCodeOmitsDocLink(t *testing.T) {
	report := FormatError(&protocol.UserFunctionError{
		Code:    "XXX-999",
		Message: "m",
		Detail:  "d",
	}, nil)
	assert.Equal(t, "Error reported from Kalix: XXX-999 m\n\nd", report)
}

func TestFormatError_UnreadableSourceOmitsExcerpt(t *testing.T) {
	report := FormatError(&protocol.UserFunctionError{
		Code:    "KLX-00112",
		Message: "m",
		SourceLocations: []*protocol.SourceLocation{
			{FileName: "gone.js", StartLine: 3, StartCol: 0, EndLine: 3, EndCol: 1},
		},
	}, func(string) ([]byte, error) { return nil, fmt.Errorf("missing") })

	assert.Equal(t, "Error reported from Kalix: KLX-00112 m\n\nAt gone.js:4:1:", report)
}

func TestFormatError_LocationClampedToFile(t *testing.T) {
	readSource := func(string) ([]byte, error) { return []byte("only line"), nil }
	report := FormatError(&protocol.UserFunctionError{
		Code:    "KLX-00112",
		Message: "m",
		SourceLocations: []*protocol.SourceLocation{
			{FileName: "f", StartLine: 0, StartCol: 0, EndLine: 9, EndCol: 0},
		},
	}, readSource)
	assert.Equal(t, "Error reported from Kalix: KLX-00112 m\n\nAt f:1:1:\nonly line", report)
}
