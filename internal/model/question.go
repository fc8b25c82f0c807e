package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidAnswer is returned when a submitted value does not fit the question type.
var ErrInvalidAnswer = errors.New("invalid answer value")

// maxTextAnswer caps free-text answers.
const maxTextAnswer = 1000

// QuestionType identifies the variant of a Question body.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionMultiChoice  QuestionType = "multi-choice"
	QuestionTrueFalse    QuestionType = "true-false"
	QuestionFillBlank    QuestionType = "fill-blank"
)

// Option is one selectable choice.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnswerValue holds a student's selection. Which field is set depends on the
// question type: Choice for single-choice and true-false, Choices for
// multi-choice, Text for fill-blank.
type AnswerValue struct {
	Choice  string   `json:"choice,omitempty"`
	Choices []string `json:"choices,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// QuestionBody is the type-specific part of a question. The set of
// implementations is closed to this package.
type QuestionBody interface {
	Type() QuestionType
	// Choices returns the selectable options in authoring order; nil for fill-blank.
	Choices() []Option
	// DecodeAnswer parses a raw client value into an AnswerValue.
	DecodeAnswer(raw json.RawMessage) (AnswerValue, error)
	// Matches reports whether v is the correct answer.
	Matches(v AnswerValue) bool
	validate() error
	correct() any
}

// Question is one gradable item of an exam.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Marks         float64      `json:"marks"`
	NegativeMarks float64      `json:"negative_marks"`
	Explanation   string       `json:"explanation,omitempty"`
	Body          QuestionBody `json:"-"`
}

// SingleChoice has exactly one correct option.
type SingleChoice struct {
	Options []Option
	Correct string
}

// MultiChoice is correct only when the selected set equals Correct.
type MultiChoice struct {
	Options []Option
	Correct []string
}

// TrueFalse has the implicit options "true" and "false".
type TrueFalse struct {
	Correct bool
}

// FillBlank compares free text case-insensitively after trimming.
type FillBlank struct {
	Accepted string
}

// Validate checks the common fields and the body.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: question without id", ErrInvalidDefinition)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("%w: question %q must carry positive marks", ErrInvalidDefinition, q.ID)
	}
	if q.NegativeMarks < 0 {
		return fmt.Errorf("%w: question %q has negative penalty", ErrInvalidDefinition, q.ID)
	}
	if q.Body == nil {
		return fmt.Errorf("%w: question %q has no body", ErrInvalidDefinition, q.ID)
	}
	if err := q.Body.validate(); err != nil {
		return fmt.Errorf("%w: question %q: %v", ErrInvalidDefinition, q.ID, err)
	}
	return nil
}

// Key returns the correct answer in the same shape as a student's selection.
func (q *Question) Key() AnswerValue {
	switch b := q.Body.(type) {
	case *SingleChoice:
		return AnswerValue{Choice: b.Correct}
	case *MultiChoice:
		set := slices.Clone(b.Correct)
		slices.Sort(set)
		return AnswerValue{Choices: set}
	case *TrueFalse:
		return AnswerValue{Choice: strconv.FormatBool(b.Correct)}
	case *FillBlank:
		return AnswerValue{Text: b.Accepted}
	}
	return AnswerValue{}
}

type questionWire struct {
	ID            string          `json:"id"`
	Type          QuestionType    `json:"type"`
	Text          string          `json:"text"`
	Marks         float64         `json:"marks"`
	NegativeMarks float64         `json:"negative_marks"`
	Options       []Option        `json:"options,omitempty"`
	Correct       json.RawMessage `json:"correct"`
	Explanation   string          `json:"explanation,omitempty"`
}

// MarshalJSON flattens the body into the wire form.
func (q Question) MarshalJSON() ([]byte, error) {
	if q.Body == nil {
		return nil, fmt.Errorf("question %q has no body", q.ID)
	}
	correct, err := json.Marshal(q.Body.correct())
	if err != nil {
		return nil, err
	}
	w := questionWire{
		ID:            q.ID,
		Type:          q.Body.Type(),
		Text:          q.Text,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
		Correct:       correct,
		Explanation:   q.Explanation,
	}
	// true-false options are implicit and never travel on the wire.
	if w.Type != QuestionTrueFalse {
		w.Options = q.Body.Choices()
	}
	return json.Marshal(w)
}

// UnmarshalJSON builds the body variant named by "type".
func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var body QuestionBody
	switch w.Type {
	case QuestionSingleChoice:
		var correct string
		if err := json.Unmarshal(w.Correct, &correct); err != nil {
			return fmt.Errorf("question %q: correct must be an option id: %w", w.ID, err)
		}
		body = &SingleChoice{Options: w.Options, Correct: correct}
	case QuestionMultiChoice:
		var correct []string
		if err := json.Unmarshal(w.Correct, &correct); err != nil {
			return fmt.Errorf("question %q: correct must be a list of option ids: %w", w.ID, err)
		}
		body = &MultiChoice{Options: w.Options, Correct: correct}
	case QuestionTrueFalse:
		if len(w.Options) > 0 {
			return fmt.Errorf("question %q: true-false takes no options", w.ID)
		}
		var correct bool
		if err := json.Unmarshal(w.Correct, &correct); err != nil {
			return fmt.Errorf("question %q: correct must be a boolean: %w", w.ID, err)
		}
		body = &TrueFalse{Correct: correct}
	case QuestionFillBlank:
		if len(w.Options) > 0 {
			return fmt.Errorf("question %q: fill-blank takes no options", w.ID)
		}
		var accepted string
		if err := json.Unmarshal(w.Correct, &accepted); err != nil {
			return fmt.Errorf("question %q: correct must be a string: %w", w.ID, err)
		}
		body = &FillBlank{Accepted: accepted}
	default:
		return fmt.Errorf("question %q: unknown type %q", w.ID, w.Type)
	}

	*q = Question{
		ID:            w.ID,
		Text:          w.Text,
		Marks:         w.Marks,
		NegativeMarks: w.NegativeMarks,
		Explanation:   w.Explanation,
		Body:          body,
	}
	return nil
}

// ─── SingleChoice ───────────────────────────────────────────────────

func (b *SingleChoice) Type() QuestionType { return QuestionSingleChoice }
func (b *SingleChoice) Choices() []Option  { return b.Options }
func (b *SingleChoice) correct() any       { return b.Correct }

func (b *SingleChoice) validate() error {
	if err := validateOptions(b.Options); err != nil {
		return err
	}
	if !hasOption(b.Options, b.Correct) {
		return fmt.Errorf("correct option %q not among options", b.Correct)
	}
	return nil
}

func (b *SingleChoice) DecodeAnswer(raw json.RawMessage) (AnswerValue, error) {
	var choice string
	if err := json.Unmarshal(raw, &choice); err != nil {
		return AnswerValue{}, fmt.Errorf("%w: expected an option id", ErrInvalidAnswer)
	}
	if !hasOption(b.Options, choice) {
		return AnswerValue{}, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, choice)
	}
	return AnswerValue{Choice: choice}, nil
}

func (b *SingleChoice) Matches(v AnswerValue) bool {
	return v.Choice != "" && v.Choice == b.Correct
}

// ─── MultiChoice ────────────────────────────────────────────────────

func (b *MultiChoice) Type() QuestionType { return QuestionMultiChoice }
func (b *MultiChoice) Choices() []Option  { return b.Options }
func (b *MultiChoice) correct() any       { return b.Correct }

func (b *MultiChoice) validate() error {
	if err := validateOptions(b.Options); err != nil {
		return err
	}
	if len(b.Correct) == 0 {
		return errors.New("multi-choice needs at least one correct option")
	}
	seen := make(map[string]struct{}, len(b.Correct))
	for _, id := range b.Correct {
		if !hasOption(b.Options, id) {
			return fmt.Errorf("correct option %q not among options", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("correct option %q listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (b *MultiChoice) DecodeAnswer(raw json.RawMessage) (AnswerValue, error) {
	var choices []string
	if err := json.Unmarshal(raw, &choices); err != nil {
		return AnswerValue{}, fmt.Errorf("%w: expected a list of option ids", ErrInvalidAnswer)
	}
	if len(choices) == 0 {
		return AnswerValue{}, fmt.Errorf("%w: empty selection", ErrInvalidAnswer)
	}
	for _, id := range choices {
		if !hasOption(b.Options, id) {
			return AnswerValue{}, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, id)
		}
	}
	set := slices.Clone(choices)
	slices.Sort(set)
	return AnswerValue{Choices: slices.Compact(set)}, nil
}

func (b *MultiChoice) Matches(v AnswerValue) bool {
	if len(v.Choices) == 0 {
		return false
	}
	want := slices.Clone(b.Correct)
	slices.Sort(want)
	got := slices.Clone(v.Choices)
	slices.Sort(got)
	return slices.Equal(want, slices.Compact(got))
}

// ─── TrueFalse ──────────────────────────────────────────────────────

var trueFalseOptions = []Option{{ID: "true", Text: "True"}, {ID: "false", Text: "False"}}

func (b *TrueFalse) Type() QuestionType { return QuestionTrueFalse }
func (b *TrueFalse) Choices() []Option  { return trueFalseOptions }
func (b *TrueFalse) correct() any       { return b.Correct }
func (b *TrueFalse) validate() error    { return nil }

func (b *TrueFalse) DecodeAnswer(raw json.RawMessage) (AnswerValue, error) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return AnswerValue{Choice: strconv.FormatBool(asBool)}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(asString)); err == nil {
			return AnswerValue{Choice: strconv.FormatBool(parsed)}, nil
		}
	}
	return AnswerValue{}, fmt.Errorf("%w: expected true or false", ErrInvalidAnswer)
}

func (b *TrueFalse) Matches(v AnswerValue) bool {
	return v.Choice == strconv.FormatBool(b.Correct)
}

// ─── FillBlank ──────────────────────────────────────────────────────

func (b *FillBlank) Type() QuestionType { return QuestionFillBlank }
func (b *FillBlank) Choices() []Option  { return nil }
func (b *FillBlank) correct() any       { return b.Accepted }

func (b *FillBlank) validate() error {
	if strings.TrimSpace(b.Accepted) == "" {
		return errors.New("fill-blank needs an accepted answer")
	}
	return nil
}

func (b *FillBlank) DecodeAnswer(raw json.RawMessage) (AnswerValue, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return AnswerValue{}, fmt.Errorf("%w: expected text", ErrInvalidAnswer)
	}
	if strings.TrimSpace(text) == "" {
		return AnswerValue{}, fmt.Errorf("%w: empty text", ErrInvalidAnswer)
	}
	if len(text) > maxTextAnswer {
		return AnswerValue{}, fmt.Errorf("%w: text longer than %d bytes", ErrInvalidAnswer, maxTextAnswer)
	}
	return AnswerValue{Text: text}, nil
}

func (b *FillBlank) Matches(v AnswerValue) bool {
	return normalizeText(v.Text) != "" && normalizeText(v.Text) == normalizeText(b.Accepted)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateOptions(opts []Option) error {
	if len(opts) < 2 {
		return errors.New("needs at least two options")
	}
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if strings.TrimSpace(o.ID) == "" {
			return errors.New("option without id")
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("duplicate option id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

func hasOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}

// StudentQuestion is a question as delivered to the student, without the key
// and with options in the attempt's order.
type StudentQuestion struct {
	Index   int          `json:"index"`
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Marks   float64      `json:"marks"`
	Options []Option     `json:"options,omitempty"`
}
