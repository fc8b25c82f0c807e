package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionJSON = `{
	"id": "6f1c5a4e-8d44-4c8b-9d9e-0c3f2f0c1a11",
	"version": 3,
	"title": "Physics",
	"duration_seconds": 1800,
	"passing_threshold": 50,
	"flags": {"shuffle_questions": true, "negative_marking": true},
	"questions": [
		{"id": "q1", "type": "single-choice", "marks": 1,
		 "options": [{"id": "a", "text": "A"}, {"id": "b", "text": "B"}], "correct": "a"},
		{"id": "q2", "type": "multi-choice", "marks": 2, "negative_marks": 0.5,
		 "options": [{"id": "a", "text": "A"}, {"id": "b", "text": "B"}, {"id": "c", "text": "C"}], "correct": ["a", "c"]},
		{"id": "q3", "type": "true-false", "marks": 1, "correct": false},
		{"id": "q4", "type": "fill-blank", "marks": 1, "correct": "Newton", "explanation": "SI unit of force."}
	]
}`

func TestDefinitionDecodesTaggedUnion(t *testing.T) {
	var def ExamDefinition
	require.NoError(t, json.Unmarshal([]byte(definitionJSON), &def))
	require.NoError(t, def.Validate())

	require.Len(t, def.Questions, 4)
	assert.IsType(t, &SingleChoice{}, def.Questions[0].Body)
	assert.IsType(t, &MultiChoice{}, def.Questions[1].Body)
	assert.IsType(t, &TrueFalse{}, def.Questions[2].Body)
	assert.IsType(t, &FillBlank{}, def.Questions[3].Body)
	assert.Equal(t, 5.0, def.TotalMarks())
	assert.True(t, def.Flags.NegativeMarking)

	encoded, err := json.Marshal(def)
	require.NoError(t, err)
	var again ExamDefinition
	require.NoError(t, json.Unmarshal(encoded, &again))
	assert.Equal(t, def.Questions[1].Body, again.Questions[1].Body)
	assert.Equal(t, def.Questions[2].Body, again.Questions[2].Body)
	assert.Equal(t, "SI unit of force.", again.Questions[3].Explanation)
}

func TestQuestionKey(t *testing.T) {
	var def ExamDefinition
	require.NoError(t, json.Unmarshal([]byte(definitionJSON), &def))

	assert.Equal(t, AnswerValue{Choice: "a"}, def.Questions[0].Key())
	assert.Equal(t, AnswerValue{Choices: []string{"a", "c"}}, def.Questions[1].Key())
	assert.Equal(t, AnswerValue{Choice: "false"}, def.Questions[2].Key())
	assert.Equal(t, AnswerValue{Text: "Newton"}, def.Questions[3].Key())

	// Every key is accepted by its own question.
	for _, q := range def.Questions {
		assert.True(t, q.Body.Matches(q.Key()), q.ID)
	}
}

func TestQuestionRejectsInvalidShapes(t *testing.T) {
	cases := map[string]string{
		"unknown type":         `{"id":"q","type":"essay","marks":1,"correct":"x"}`,
		"fill-blank options":   `{"id":"q","type":"fill-blank","marks":1,"options":[{"id":"a"}],"correct":"x"}`,
		"true-false options":   `{"id":"q","type":"true-false","marks":1,"options":[{"id":"a"}],"correct":true}`,
		"single wrong correct": `{"id":"q","type":"single-choice","marks":1,"correct":["a"]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var q Question
			assert.Error(t, json.Unmarshal([]byte(raw), &q))
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	base := func() ExamDefinition {
		return ExamDefinition{
			ID:              uuid.New(),
			DurationSeconds: 60,
			Questions: []Question{
				{ID: "q1", Marks: 1, Body: &TrueFalse{Correct: true}},
			},
		}
	}

	def := base()
	assert.NoError(t, def.Validate())

	def = base()
	def.DurationSeconds = 0
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.Questions = nil
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.Questions = append(def.Questions, def.Questions[0])
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.Questions[0].Body = &SingleChoice{Options: []Option{{ID: "a"}, {ID: "b"}}, Correct: "z"}
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.Questions[0].Body = &MultiChoice{Options: []Option{{ID: "a"}, {ID: "b"}}}
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.Questions[0].Body = &FillBlank{Accepted: "  "}
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)

	def = base()
	def.PassingThreshold = 120
	assert.ErrorIs(t, def.Validate(), ErrInvalidDefinition)
}

func TestDecodeAnswer(t *testing.T) {
	single := &SingleChoice{Options: []Option{{ID: "a"}, {ID: "b"}}, Correct: "a"}
	v, err := single.DecodeAnswer(json.RawMessage(`"b"`))
	require.NoError(t, err)
	assert.Equal(t, AnswerValue{Choice: "b"}, v)
	_, err = single.DecodeAnswer(json.RawMessage(`"z"`))
	assert.ErrorIs(t, err, ErrInvalidAnswer)
	_, err = single.DecodeAnswer(json.RawMessage(`["a"]`))
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	multi := &MultiChoice{Options: []Option{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Correct: []string{"a", "c"}}
	v, err = multi.DecodeAnswer(json.RawMessage(`["c","a","c"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, v.Choices)
	_, err = multi.DecodeAnswer(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	tf := &TrueFalse{Correct: true}
	v, err = tf.DecodeAnswer(json.RawMessage(`true`))
	require.NoError(t, err)
	assert.Equal(t, "true", v.Choice)
	v, err = tf.DecodeAnswer(json.RawMessage(`"False"`))
	require.NoError(t, err)
	assert.Equal(t, "false", v.Choice)
	_, err = tf.DecodeAnswer(json.RawMessage(`"maybe"`))
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	fill := &FillBlank{Accepted: "Newton"}
	_, err = fill.DecodeAnswer(json.RawMessage(`"   "`))
	assert.ErrorIs(t, err, ErrInvalidAnswer)
}

func TestMatches(t *testing.T) {
	multi := &MultiChoice{Options: []Option{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Correct: []string{"c", "a"}}
	assert.True(t, multi.Matches(AnswerValue{Choices: []string{"a", "c"}}))
	assert.False(t, multi.Matches(AnswerValue{Choices: []string{"a"}}))
	assert.False(t, multi.Matches(AnswerValue{Choices: []string{"a", "b", "c"}}))

	fill := &FillBlank{Accepted: "Newton"}
	assert.True(t, fill.Matches(AnswerValue{Text: "  nEwToN "}))
	assert.False(t, fill.Matches(AnswerValue{Text: "Newtonian"}))

	tf := &TrueFalse{Correct: false}
	assert.True(t, tf.Matches(AnswerValue{Choice: "false"}))
	assert.False(t, tf.Matches(AnswerValue{}))
}
