package agent

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/tool"
)

const routerPrompt = `You are the router of a question-answering assistant.
Classify the user's latest message into exactly one route:
- "end": greetings, thanks, small talk, or anything that needs no information to answer.
- "rag": questions about the user's own documents or any topic that may be covered by the local knowledge base.
- "answer": general questions you can answer reliably from your own knowledge.

Reply with a single JSON object and nothing else:
{"route": "end" | "rag" | "answer", "reply": "<short friendly reply, only when route is end>"}`

const judgePrompt = `You decide whether retrieved context is enough to answer a question.
The context is sufficient only if it contains the facts needed for a complete, correct answer.
Empty or off-topic context is never sufficient.

Reply with a single JSON object and nothing else:
{"sufficient": true | false, "reason": "<one sentence>"}`

const directPrompt = `You are a friendly assistant. Reply briefly and naturally to the user's latest message.`

const answerPrompt = `You are a helpful assistant answering the user's latest question.
Use the context below when it is relevant and mention the source of any fact you take from it.
If the context does not contain the answer, say so plainly, then answer from general knowledge only if you are confident.`

// noContext stands in for the context sections when neither retrieval nor web search ran.
const noContext = "No external context available."

func history(msgs []store.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			out = append(out, llm.Human(m.Content))
		case store.RoleAssistant:
			out = append(out, llm.AI(m.Content))
		case store.RoleSystem:
			out = append(out, llm.System(m.Content))
		}
	}
	return out
}

func withSystem(prompt string, msgs []store.Message) []llms.MessageContent {
	return append([]llms.MessageContent{llm.System(prompt)}, history(msgs)...)
}

func formatKnowledge(chunks []ContextChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] source: %s", i+1, c.Source)
		if c.Page > 0 {
			fmt.Fprintf(&sb, ", page %d", c.Page)
		}
		fmt.Fprintf(&sb, " (relevance %.2f)\n%s", c.Score, c.Text)
	}
	return sb.String()
}

func judgeRequest(query string, chunks []ContextChunk) []llms.MessageContent {
	return []llms.MessageContent{
		llm.System(judgePrompt),
		llm.Human(fmt.Sprintf("Question:\n%s\n\nRetrieved context:\n%s", query, formatKnowledge(chunks))),
	}
}

// answerContext renders the sections available to the answer node. Absent
// sections are omitted; an empty web search is still shown as a section so
// the model knows it was tried.
func answerContext(s State) string {
	var sections []string
	if len(s.RetrievedContext) > 0 {
		sections = append(sections, "Knowledge Base Information:\n"+formatKnowledge(s.RetrievedContext))
	}
	if s.SearchResults != nil {
		sections = append(sections, "Web Search Results:\n"+tool.FormatWebResults(s.SearchResults))
	}
	if len(sections) == 0 {
		return noContext
	}
	return strings.Join(sections, "\n\n")
}

func answerRequest(s State) []llms.MessageContent {
	return withSystem(answerPrompt+"\n\n"+answerContext(s), s.Messages)
}
