package models

const (
	DefaultMaxChunkTokens = 300
	DefaultTopK           = 5
	DefaultPreviewChars   = 200
	DefaultModel          = "gpt-4o-mini"
	DefaultTemperature    = 0.7
	ContextSeparator      = "\n\n"
)

var (
	AnswerInstructions = `Answer the question using only the numbered context above, which is an excerpt of the video's transcript.
Guidelines:
- Reply in the same language as the question.
- Summarise the key points in three to five sentences.
- Cite the supporting passage number inline, next to its timestamp, for example "[1] (2:22)".
- If the context does not contain the information needed, say so explicitly instead of guessing.`

	ProfileInstructionTemplate = `Asker background: works as %s at %s. Tailor examples and suggested applications to this background.`

	MergeQuestionsTemplate = `Combine the following questions and answer them together, drawing out the connections between them:

%s`
)
