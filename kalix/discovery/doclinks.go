package discovery

// Documentation links for reported error codes. A code's first seven
// characters (the "KLX-NNN" class) select the page; the full code may select a
// section fragment on that page.

const docBase = "https://docs.kalix.io/javascript/"

// codeClasses maps a code class prefix to its documentation page.
var codeClasses = map[string]string{
	"KLX-001": "views.html",
	"KLX-002": "value-entity.html",
	"KLX-003": "event-sourced-entities.html",
	"KLX-004": "replicated-entity.html",
	"KLX-005": "actions.html",
	"KLX-006": "proto.html",
	"KLX-007": "publishing-subscribing.html",
	"KLX-008": "topology.html",
	"KLX-009": "kalix.html",
}

// codeSections maps a full code to the fragment within its class page.
var codeSections = map[string]string{
	"KLX-00112": "changing",
	"KLX-00115": "query",
	"KLX-00207": "accessing-state",
	"KLX-00402": "replicated-data-types",
	"KLX-00502": "actions-as-pub-sub",
}

// DocLinkFor returns the documentation URL for an error code, the empty string
// for an unknown code.
func DocLinkFor(code string) string {
	if len(code) < 7 {
		return ""
	}
	page, ok := codeClasses[code[:7]]
	if !ok {
		return ""
	}
	url := docBase + page
	if fragment, ok := codeSections[code]; ok {
		url += "#" + fragment
	}
	return url
}
