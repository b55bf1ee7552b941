package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionValidate(t *testing.T) {
	valid := Question{
		Prompt:  "What is 2 + 2?",
		Options: [4]string{"3", "4", "5", "6"},
		Answer:  "B",
	}
	assert.NoError(t, valid.Validate())

	noPrompt := valid
	noPrompt.Prompt = ""
	assert.Error(t, noPrompt.Validate())

	emptyOption := valid
	emptyOption.Options[2] = ""
	assert.Error(t, emptyOption.Validate())

	badAnswer := valid
	badAnswer.Answer = "4"
	assert.Error(t, badAnswer.Validate())

	badAnswer.Answer = "E"
	assert.Error(t, badAnswer.Validate())
}

func TestCorrectOption(t *testing.T) {
	q := Question{
		Prompt:  "Capital of France?",
		Options: [4]string{"Paris", "Lyon", "Nice", "Lille"},
		Answer:  "A",
	}
	assert.Equal(t, "Paris", q.CorrectOption())

	q.Answer = "D"
	assert.Equal(t, "Lille", q.CorrectOption())
}

func TestQuestionsRoundTrip(t *testing.T) {
	questions := []Question{
		{Prompt: "Q1", Options: [4]string{"a", "b", "c", "d"}, Answer: "A", Explanation: "because"},
		{Prompt: "Q2", Options: [4]string{"w", "x", "y", "z"}, Answer: "D"},
	}
	encoded, err := EncodeQuestions(questions)
	require.NoError(t, err)

	quiz := Quiz{Questions: encoded}
	decoded, err := quiz.DecodeQuestions()
	require.NoError(t, err)
	assert.Equal(t, questions, decoded)
}

func TestDecodeQuestions_Broken(t *testing.T) {
	quiz := Quiz{Questions: "{not an array"}
	_, err := quiz.DecodeQuestions()
	assert.Error(t, err)
}
