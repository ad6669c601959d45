package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"respstream/internal/domain"
)

// FunctionCall is the accumulated argument JSON of one function call item.
type FunctionCall struct {
	ItemID    string `json:"item_id"`
	Arguments string `json:"arguments"`
}

// StreamResult summarizes everything a Collector saw.
type StreamResult struct {
	ResponseID    string                    `json:"response_id,omitempty"`
	Model         string                    `json:"model,omitempty"`
	Status        domain.ResponseStatus     `json:"status,omitempty"`
	Text          string                    `json:"text"`
	Refusal       string                    `json:"refusal,omitempty"`
	Reasoning     string                    `json:"reasoning,omitempty"`
	FunctionCalls []FunctionCall            `json:"function_calls,omitempty"`
	Incomplete    *domain.IncompleteDetails `json:"incomplete_details,omitempty"`
	Usage         *domain.ResponseUsage     `json:"usage,omitempty"`
	Error         *domain.ResponseError     `json:"error,omitempty"`
	APIErrors     []*domain.APIError        `json:"api_errors,omitempty"`
	Events        int                       `json:"events"`
	Errors        int                       `json:"errors"`
}

// textParts accumulates keyed text in first-seen key order.
type textParts struct {
	order []string
	parts map[string]*strings.Builder
}

func (t *textParts) builder(key string) *strings.Builder {
	if t.parts == nil {
		t.parts = make(map[string]*strings.Builder)
	}
	b, ok := t.parts[key]
	if !ok {
		b = &strings.Builder{}
		t.parts[key] = b
		t.order = append(t.order, key)
	}
	return b
}

func (t *textParts) append(key, s string) { t.builder(key).WriteString(s) }

// replace sets the final text of key; done events are authoritative over
// the deltas that preceded them.
func (t *textParts) replace(key, s string) {
	b := t.builder(key)
	b.Reset()
	b.WriteString(s)
}

func (t *textParts) join() string {
	var out strings.Builder
	for _, k := range t.order {
		out.WriteString(t.parts[k].String())
	}
	return out.String()
}

func contentKey(itemID string, contentIndex int) string {
	return itemID + "/" + strconv.Itoa(contentIndex)
}

// Collector folds a response stream into its final state. OnEvent and
// OnError are safe to use as interpreter callbacks; the getters may be
// called from any goroutine.
type Collector struct {
	mu sync.Mutex

	text      textParts
	refusal   textParts
	reasoning textParts
	args      textParts

	responseID string
	model      string
	status     domain.ResponseStatus
	incomplete *domain.IncompleteDetails
	usage      *domain.ResponseUsage
	respErr    *domain.ResponseError
	apiErrs    []*domain.APIError

	events int
	errors int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// OnEvent is the interpreter's success callback.
func (c *Collector) OnEvent(ev domain.ResponseStreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events++

	switch e := ev.(type) {
	case domain.ResponseCreated:
		c.snapshot(e.Response)
	case domain.ResponseInProgress:
		c.snapshot(e.Response)
	case domain.ResponseCompleted:
		c.snapshot(e.Response)
	case domain.ResponseFailed:
		c.snapshot(e.Response)
		if c.status == "" {
			c.status = domain.ResponseStatusFailed
		}
	case domain.ResponseIncomplete:
		if e.Response != nil {
			c.snapshot(*e.Response)
		}
		c.status = domain.ResponseStatusIncomplete
		if e.Details != nil {
			c.incomplete = e.Details
		}
	case domain.OutputTextDelta:
		c.text.append(contentKey(e.ItemID, e.ContentIndex), e.Delta)
	case domain.OutputTextDone:
		c.text.replace(contentKey(e.ItemID, e.ContentIndex), e.Text)
	case domain.RefusalDelta:
		c.refusal.append(contentKey(e.ItemID, e.ContentIndex), e.Delta)
	case domain.RefusalDone:
		c.refusal.replace(contentKey(e.ItemID, e.ContentIndex), e.Refusal)
	case domain.FunctionCallArgumentsDelta:
		c.args.append(e.ItemID, e.Delta)
	case domain.FunctionCallArgumentsDone:
		c.args.replace(e.ItemID, e.Arguments)
	case domain.ReasoningSummaryTextDelta:
		c.reasoning.append(e.ItemID+"/"+strconv.Itoa(e.SummaryIndex), e.Delta)
	}
}

func (c *Collector) snapshot(s domain.ResponseSnapshot) {
	if s.ID != "" {
		c.responseID = s.ID
	}
	if s.Model != "" {
		c.model = s.Model
	}
	if s.Status != "" {
		c.status = s.Status
	}
	if s.IncompleteDetails != nil {
		c.incomplete = s.IncompleteDetails
	}
	if s.Usage != nil {
		c.usage = s.Usage
	}
	if s.Error != nil {
		c.respErr = s.Error
	}
}

// OnError is the interpreter's failure callback.
func (c *Collector) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
	if apiErr, ok := domain.AsAPIError(err); ok {
		c.apiErrs = append(c.apiErrs, apiErr)
	}
}

// Text returns the output text accumulated so far.
func (c *Collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.join()
}

// Result returns a summary of the stream so far.
func (c *Collector) Result() StreamResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := StreamResult{
		ResponseID: c.responseID,
		Model:      c.model,
		Status:     c.status,
		Text:       c.text.join(),
		Refusal:    c.refusal.join(),
		Reasoning:  c.reasoning.join(),
		Incomplete: c.incomplete,
		Usage:      c.usage,
		Error:      c.respErr,
		APIErrors:  append([]*domain.APIError(nil), c.apiErrs...),
		Events:     c.events,
		Errors:     c.errors,
	}
	for _, id := range c.args.order {
		r.FunctionCalls = append(r.FunctionCalls, FunctionCall{ItemID: id, Arguments: c.args.parts[id].String()})
	}
	return r
}

// ValidateJSON checks the accumulated text with ValidateStructured.
func (c *Collector) ValidateJSON(schema json.RawMessage) (any, error) {
	return ValidateStructured(c.Text(), schema)
}

// ValidateStructured parses text as JSON and checks it against a JSON
// Schema. Markdown code fences around the JSON are tolerated.
func ValidateStructured(text string, schema json.RawMessage) (any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &parsed); err != nil {
		return nil, domain.NewDomainError("ValidateStructured", domain.ErrSchemaInvalid, "output is not JSON: "+err.Error())
	}
	if err := validateJSONSchema(schema, parsed); err != nil {
		return nil, domain.NewDomainError("ValidateStructured", domain.ErrSchemaInvalid, err.Error())
	}
	return parsed, nil
}

// validateJSONSchema validates parsed JSON against a JSON Schema.
func validateJSONSchema(schemaBytes json.RawMessage, data any) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(schemaBytes))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
