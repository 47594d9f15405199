package openai

import "fmt"

const relevanceResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "score": {
      "type": "integer",
      "minimum": 0,
      "maximum": 10
    }
  },
  "required": ["score"],
  "additionalProperties": false
}`

const relevancePromptTemplate = `You are an expert at evaluating how relevant a passage is to a search query.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Scoring guidelines:
- 0-2: The passage is completely irrelevant to the query.
- 3-5: The passage has some related information but does not answer the query.
- 6-8: The passage is relevant and partially answers the query.
- 9-10: The passage is highly relevant and directly answers the query.
- Judge only the passage text. Do not use outside knowledge.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Query: "what is the capital of france"
Passage: "Paris is the capital and largest city of France."
Output:
{"score":10}

Example:
Query: "what is the capital of france"
Passage: "The Loire valley is known for its wine."
Output:
{"score":1}`

const relevanceUserTemplate = `Query: %s

Passage: %s`

// buildSystemPrompt creates the system prompt with the response schema embedded.
func buildSystemPrompt() string {
	return fmt.Sprintf(relevancePromptTemplate, relevanceResponseSchema)
}

func buildUserPrompt(query, passage string) string {
	return fmt.Sprintf(relevanceUserTemplate, scrubString(query), scrubString(passage))
}
