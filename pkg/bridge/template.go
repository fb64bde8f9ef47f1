package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fedbridge/fedbridge/pkg/saml"
)

// StatusSuccess is the SAML success status code
const StatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

// nameIDFormatEmail is the NameID format asserted for every subject
const nameIDFormatEmail = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"

// assertionTimeLayout matches the ISO-8601 millisecond form existing SP
// deployments were validated against
const assertionTimeLayout = "2006-01-02T15:04:05.000Z"

// assertionValidityWindow is the fixed clock-skew tolerance on either side
// of the issue instant. Not configurable.
const assertionValidityWindow = 5 * time.Minute

// attributeTemplate renders one SAML attribute of the subject
const attributeTemplate = `<saml2:Attribute Name="{attributeName}" NameFormat="urn:oasis:names:tc:SAML:2.0:attrname-format:basic">
        <saml2:AttributeValue xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="xs:{attributeType}">{attributeValue}</saml2:AttributeValue>
      </saml2:Attribute>
    `

// ResponseParams is the full set of substitution values for one login
// response. Derived from the authenticated user, the correlated request, and
// the engine's clock at fill time; consumed exactly once.
type ResponseParams struct {
	RequestID   string
	Destination string
	Audience    string
	IdPEntityID string
	NameID      string
	StatusCode  string
	Attributes  []Attribute
}

// TemplateEngine fills the operator-provided login response template.
// Deterministic given a clock and ID source; no external I/O.
type TemplateEngine struct {
	clock clockwork.Clock
	newID func() string
}

// NewTemplateEngine creates an engine on the real clock
func NewTemplateEngine() *TemplateEngine {
	return NewTemplateEngineWithClock(clockwork.NewRealClock())
}

// NewTemplateEngineWithClock creates an engine on the given clock. Tests use
// a fake clock to pin the validity window.
func NewTemplateEngineWithClock(clock clockwork.Clock) *TemplateEngine {
	return &TemplateEngine{
		clock: clock,
		newID: func() string {
			// 128-bit random ids; collisions within the validity window are
			// not a practical concern at this size
			return "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Fill substitutes the session values into the template and returns the
// response ID together with the completed document.
func (e *TemplateEngine) Fill(template string, params ResponseParams) (saml.FilledResponse, error) {
	if params.RequestID == "" {
		return saml.FilledResponse{}, fmt.Errorf("response params require a request id")
	}
	if params.Destination == "" {
		return saml.FilledResponse{}, fmt.Errorf("response params require a destination")
	}
	if params.NameID == "" {
		return saml.FilledResponse{}, fmt.Errorf("response params require a subject NameID")
	}

	status := params.StatusCode
	if status == "" {
		status = StatusSuccess
	}

	now := e.clock.Now().UTC()
	notBefore := now.Add(-assertionValidityWindow)
	notOnOrAfter := now.Add(assertionValidityWindow)

	responseID := e.newID()

	document := replaceTags(template, map[string]string{
		"ID":                                  responseID,
		"AssertionID":                         e.newID(),
		"Destination":                         params.Destination,
		"Audience":                            params.Audience,
		"SubjectRecipient":                    params.Audience,
		"EntityID":                            params.Audience,
		"NameIDFormat":                        nameIDFormatEmail,
		"NameID":                              xmlEscape(params.NameID),
		"Issuer":                              params.IdPEntityID,
		"IssueInstant":                        now.Format(assertionTimeLayout),
		"ConditionsNotBefore":                 notBefore.Format(assertionTimeLayout),
		"ConditionsNotOnOrAfter":              notOnOrAfter.Format(assertionTimeLayout),
		"SubjectConfirmationDataNotOnOrAfter": notOnOrAfter.Format(assertionTimeLayout),
		"AssertionConsumerServiceURL":         params.Destination,
		"InResponseTo":                        params.RequestID,
		"StatusCode":                          status,
		"Attributes":                          renderAttributes(params.Attributes),
	})

	return saml.FilledResponse{ID: responseID, Document: document}, nil
}

// Filler binds params into a callback for the IdP's response creation
func (e *TemplateEngine) Filler(params ResponseParams) saml.TemplateFiller {
	return func(template string) (saml.FilledResponse, error) {
		return e.Fill(template, params)
	}
}

// renderAttributes serializes the attribute block. Only present attributes
// appear; the engine never emits an empty AttributeValue.
func renderAttributes(attributes []Attribute) string {
	var block strings.Builder
	for _, attribute := range attributes {
		block.WriteString(replaceTags(attributeTemplate, map[string]string{
			"attributeName":  xmlEscape(attribute.Name),
			"attributeType":  attribute.Type,
			"attributeValue": xmlEscape(attribute.Value),
		}))
	}
	return block.String()
}

// replaceTags substitutes {Tag} markers in the template. Unknown markers are
// left intact so template mistakes show up in the output rather than
// vanishing silently.
func replaceTags(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for tag, value := range values {
		pairs = append(pairs, "{"+tag+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// xmlEscape escapes text content for embedding in the XML template
func xmlEscape(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(value)
}
