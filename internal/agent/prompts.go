package agent

import (
	"fmt"
	"strings"

	"github.com/agalue/voice-assistant/internal/types"
)

// promptTier names one of the four simplified system-prompt templates.
type promptTier string

const (
	tierInstant  promptTier = "instant"
	tierSimple   promptTier = "simple"
	tierComplex  promptTier = "complex"
	tierFallback promptTier = "fallback"
)

const maxPromptLines = 50

var promptTemplates = map[promptTier]string{
	tierInstant: `You are a helpful voice assistant.
Respond naturally and briefly to greetings, acknowledgments, and simple questions.
Keep responses conversational and under 20 words.
Use the provided conversation context for continuity.`,

	tierSimple: `You are a helpful voice assistant.

CORE CAPABILITIES:
- Answer questions using your knowledge or available tools
- Remember facts when users ask (use the remember_fact tool)
- Search your memory when asked (use the search_long_term_memory tool)
- Execute code for calculations and analysis (use the execute_code tool)
- Get current time/date information (use the get_current_time tool)

MEMORY SYSTEM:
- SHORT-TERM: the conversation context below covers the current session
- LONG-TERM: tools cover persistent memory across sessions

RESPONSE STYLE:
- Be concise and conversational for voice interaction
- Provide direct answers without excessive explanation
- Ask clarifying questions if the request is unclear`,

	tierComplex: `You are a voice assistant capable of complex task coordination.

CORE CAPABILITIES:
- Coordinate multiple tools for complex workflows
- Break down multi-step requests into logical sequences
- Execute code, analyze files, and automate tasks
- Search web content and interact with websites
- Manage memory and maintain conversation context

WORKFLOW APPROACH:
1. Analyze the request complexity and required capabilities
2. Plan the sequence of tools needed
3. Execute tools in logical order, using results from previous steps
4. Deliver a comprehensive, actionable result

RESPONSE STYLE:
- Explain your plan briefly before executing complex workflows
- Be thorough but concise`,

	tierFallback: `You are a sophisticated voice assistant.

CAPABILITIES:
- Answer questions using knowledge and available tools
- Execute code for calculations, analysis, and automation
- Manage persistent memory across conversations
- Handle both simple queries and complex multi-step tasks

TOOL USAGE:
- Select appropriate tools based on the request
- For calculations/analysis: use execute_code
- For time/date: use get_current_time
- For memory: use remember_fact or search_long_term_memory

RESPONSE GUIDELINES:
- Keep responses concise and conversational
- Ask for clarification when requests are ambiguous`,
}

func init() {
	for tier, prompt := range promptTemplates {
		lines := strings.Split(strings.TrimSpace(prompt), "\n")
		if len(lines) > maxPromptLines {
			panic(fmt.Sprintf("agent: prompt template %q exceeds %d lines (%d)", tier, maxPromptLines, len(lines)))
		}
	}
}

func tierFor(c types.QueryComplexity) promptTier {
	switch c {
	case types.ComplexityInstant:
		return tierInstant
	case types.ComplexityFact, types.ComplexityReasoning:
		return tierSimple
	case types.ComplexityMultiStep:
		return tierComplex
	default:
		return tierFallback
	}
}

// systemPrompt returns the base template for complexity plus optional RAG
// snippets and conversation context, each clearly delimited for the model.
func systemPrompt(c types.QueryComplexity, ragSnippets []string, conversationContext string) string {
	var b strings.Builder
	b.WriteString(promptTemplates[tierFor(c)])

	if len(ragSnippets) > 0 {
		b.WriteString("\n\nRELEVANT INFORMATION:\n")
		for _, s := range ragSnippets {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	if conversationContext != "" {
		b.WriteString("\nCONVERSATION CONTEXT:\n")
		b.WriteString(conversationContext)
	}

	return b.String()
}
