package discovery

import (
	"fmt"
	"strings"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// SystemName is the framework brand used in user-visible diagnostics.
const SystemName = "Kalix"

// SourceReader loads the content of a user source file named in an error
// report. Returning an error omits the source excerpt.
type SourceReader func(fileName string) ([]byte, error)

// FormatError renders a reported user function error as multi-line
// human-readable text: a header with the code and message, the detail with its
// documentation link, and one source excerpt per location. The format is
// stable; tooling parses it.
func FormatError(err *protocol.UserFunctionError, readSource SourceReader) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Error reported from %s: %s %s", SystemName, err.Code, err.Message)

	if err.Detail != "" {
		fmt.Fprintf(&b, "\n\n%s", err.Detail)
		if link := DocLinkFor(err.Code); link != "" {
			fmt.Fprintf(&b, "\nSee documentation: %s", link)
		}
	}

	for _, location := range err.SourceLocations {
		b.WriteString("\n\n")
		b.WriteString(formatLocation(location, readSource))
	}

	return b.String()
}

// formatLocation renders one "At file:line:col:" block with the referenced
// source lines quoted verbatim. Line and column are zero-based on the wire and
// one-based in the output.
func formatLocation(location *protocol.SourceLocation, readSource SourceReader) string {
	heading := fmt.Sprintf("At %s:%d:%d:", location.FileName, location.StartLine+1, location.StartCol+1)

	if readSource == nil {
		return heading
	}
	content, err := readSource(location.FileName)
	if err != nil {
		return heading
	}

	lines := strings.Split(string(content), "\n")
	start := int(location.StartLine)
	end := int(location.EndLine)
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end {
		return heading
	}

	excerpt := append([]string{heading}, lines[start:end+1]...)
	return strings.Join(excerpt, "\n")
}
