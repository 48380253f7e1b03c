package actionitems

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// ArtifactName is the download file name
	ArtifactName = "action_items.json"
	// ArtifactContentType is the download media type
	ArtifactContentType = "application/json"

	previewLimit = 1000
)

// FailureKind classifies why a model reply was rejected
type FailureKind string

const (
	FailureMalformedJSON FailureKind = "malformed_json"
	FailureSchema        FailureKind = "schema"
)

// ErrNoArtifact is returned when a failed result is asked for a download
var ErrNoArtifact = errors.New("no artifact for a failed extraction")

// Result is the outcome of presenting a model reply. Exactly one variant is
// populated: Items when OK, or Failure with Raw and Reason otherwise.
type Result struct {
	Items   []Item      `json:"items,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Raw     string      `json:"raw,omitempty"`
}

// OK reports whether the reply parsed into items
func (r Result) OK() bool {
	return r.Failure == ""
}

// Message returns the user-facing error text for a failed result
func (r Result) Message() string {
	switch r.Failure {
	case FailureMalformedJSON:
		return "model returned malformed JSON"
	case FailureSchema:
		return "model returned JSON that does not match the action item schema"
	default:
		return ""
	}
}

// Artifact renders the items as the downloadable JSON document, indented by
// four spaces.
func (r Result) Artifact() ([]byte, error) {
	if !r.OK() {
		return nil, ErrNoArtifact
	}

	items := r.Items
	if items == nil {
		items = []Item{}
	}
	return json.MarshalIndent(items, "", "    ")
}

// Presenter parses model replies strictly
type Presenter struct {
	validate *validator.Validate
}

// NewPresenter creates a new presenter
func NewPresenter() *Presenter {
	return &Presenter{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Present classifies raw as a list of action items or as a diagnostic.
// Replies that are not JSON fail as malformed; JSON of the wrong shape fails
// schema validation. Raw text is kept verbatim on failure.
func (p *Presenter) Present(raw string) Result {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid([]byte(raw)) {
			return Result{Failure: FailureMalformedJSON, Reason: err.Error(), Raw: raw}
		}
		return Result{Failure: FailureSchema, Reason: "top level value must be an array", Raw: raw}
	}
	if elements == nil {
		return Result{Failure: FailureSchema, Reason: "top level value must be an array", Raw: raw}
	}

	items := make([]Item, 0, len(elements))
	for idx, element := range elements {
		item, err := p.parseItem(element)
		if err != nil {
			return Result{Failure: FailureSchema, Reason: fmt.Sprintf("item %d: %v", idx, err), Raw: raw}
		}
		items = append(items, item)
	}

	return Result{Items: items}
}

func (p *Presenter) parseItem(element json.RawMessage) (Item, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(element, &fields); err != nil || fields == nil {
		return Item{}, fmt.Errorf("must be an object")
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Item{}, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}
	if len(fields) != len(requiredKeys) {
		var extra []string
		for key := range fields {
			if !isRequiredKey(key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		return Item{}, fmt.Errorf("unexpected keys: %s", strings.Join(extra, ", "))
	}

	decoder := json.NewDecoder(bytes.NewReader(element))
	decoder.DisallowUnknownFields()

	var item Item
	if err := decoder.Decode(&item); err != nil {
		return Item{}, fmt.Errorf("invalid field type: %w", err)
	}

	if err := p.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Item{}, fmt.Errorf("field %s failed %s validation (value %v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value())
		}
		return Item{}, err
	}

	return item, nil
}

func isRequiredKey(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Preview shortens a transcript for display to its first 1000 characters,
// appending "..." when anything was cut.
func Preview(transcript string) string {
	runes := []rune(transcript)
	if len(runes) <= previewLimit {
		return transcript
	}
	return string(runes[:previewLimit]) + "..."
}
