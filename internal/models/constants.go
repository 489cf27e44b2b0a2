package models

const (
	ContextSeparator = "\n\n"
	SourceHeader     = "Source: %s | Page: %d"

	// FallbackAnswer is returned when the chat provider produced no content.
	FallbackAnswer = "I could not generate an answer."
	NotFoundAnswer = "I could not find this information in the uploaded document."
)

var (
	SystemPromptTemplate = `You are an engineering document assistant.
Answer using ONLY the context provided below.
If the answer is not present in the context, say:
'` + NotFoundAnswer + `'
Do not use any knowledge outside of the provided context.
Always reference the page number when possible (e.g. 'According to page 4...').

Context:
%s`

	MemoryPromptTemplate = `

Known facts about the user:
%s`

	FactPromptTemplate = `Extract personal facts that the user explicitly stated about themselves in the message below.
Only include facts the user stated directly. Do not infer anything. Ignore facts about the documents.
Return ONLY a JSON array of short strings, for example ["My name is Ana", "I work as a civil engineer"].
Return [] if there are none.

User: %s
Assistant: %s`
)
