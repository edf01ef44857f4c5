// Package instant implements the InstantHandler component (C7): a static
// regex-pattern table keyed by response type producing sub-50ms templated
// replies without any LLM call.
package instant

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/agalue/voice-assistant/internal/types"
)

// ResponseType names one category of instant reply.
type ResponseType string

const (
	Greeting       ResponseType = "greeting"
	Acknowledgment ResponseType = "acknowledgment"
	Farewell       ResponseType = "farewell"
	Confirmation   ResponseType = "confirmation"
	Negation       ResponseType = "negation"
	Appreciation   ResponseType = "appreciation"
	Casual         ResponseType = "casual"
	ToolListing    ResponseType = "tool_listing"
)

// Response is one instant reply, carrying the metadata the FSM logs.
type Response struct {
	Text         string
	ResponseType ResponseType
	Confidence   float64
	Cached       bool
}

// Context optionally customizes response selection.
type Context struct {
	TimeOfDay string // "morning", "afternoon", "evening", or ""
	UserName  string
}

type patternTable struct {
	patterns  []*regexp.Regexp
	responses []string
}

var tables = map[ResponseType]patternTable{
	Greeting: {
		patterns: compile(
			`\b(hi|hello|hey|good morning|good afternoon|good evening)\b`,
			`^(morning|afternoon|evening)$`,
			`\b(what's up|how are you|how's it going)\b`,
		),
		responses: []string{
			"Hello! How can I help you?",
			"Hi there! What can I do for you?",
			"Good to hear from you! What do you need?",
			"Hello! I'm here to assist you.",
			"Hi! Ready to help with whatever you need.",
			"Hey! What's on your mind?",
			"Good to see you! How can I assist?",
			"Hello! What would you like to know?",
		},
	},
	Acknowledgment: {
		patterns: compile(
			`\b(thanks?|thank you|thx|appreciate it)\b`,
			`^(got it|understood|makes sense|i see)$`,
		),
		responses: []string{
			"You're welcome!",
			"Happy to help!",
			"Glad I could assist!",
			"Anytime!",
			"My pleasure!",
			"You got it!",
			"No problem at all!",
			"Always here to help!",
		},
	},
	Farewell: {
		patterns: compile(
			`\b(bye|goodbye|see you|talk later|catch you later)\b`,
			`^(later|peace|take care)$`,
		),
		responses: []string{
			"Goodbye! Have a great day!",
			"See you later!",
			"Take care!",
			"Until next time!",
			"Catch you later!",
			"Have a wonderful day!",
			"Talk to you soon!",
			"Farewell!",
		},
	},
	Confirmation: {
		patterns: compile(
			`^(yes|yeah|yep|yup|sure|ok|okay|alright|right|correct)$`,
			`^(absolutely|definitely|of course|certainly)$`,
		),
		responses: []string{
			"Great! What's next?",
			"Perfect! How can I help further?",
			"Excellent! What else do you need?",
			"Sounds good! What would you like to do?",
			"Wonderful! I'm ready for your next request.",
			"Got it! What's the next step?",
			"Perfect! How else can I assist?",
			"Excellent! What can I do for you now?",
		},
	},
	Negation: {
		patterns: compile(
			`^(no|nope|nah|not really|not now)$`,
			`^(never mind|forget it|cancel)$`,
		),
		responses: []string{
			"No problem! Let me know if you need anything else.",
			"Understood! I'm here when you're ready.",
			"Got it! Feel free to ask if you change your mind.",
			"No worries! I'll be here if you need me.",
			"Alright! Just let me know if you need help later.",
			"Sure thing! I'm available whenever you need assistance.",
			"Okay! Don't hesitate to reach out if you need anything.",
			"Understood! I'm here whenever you're ready.",
		},
	},
	Casual: {
		patterns: compile(
			`^(cool|nice|great|awesome|sweet|neat)$`,
			`^(wow|amazing|incredible|fantastic)$`,
		),
		responses: []string{
			"Right? Glad you think so!",
			"I'm happy you like it!",
			"Awesome! Anything else I can help with?",
			"Great to hear! What's next?",
			"Fantastic! How else can I assist?",
			"Nice! What would you like to do now?",
			"Excellent! I'm here for whatever you need.",
			"Wonderful! What can I help you with next?",
		},
	},
	Appreciation: {
		patterns: compile(
			`\b(good job|well done|nice work|excellent)\b`,
			`\b(impressive|helpful|useful)\b`,
		),
		responses: []string{
			"Thank you! I'm glad I could help!",
			"I appreciate that! Happy to assist anytime.",
			"Thanks! That means a lot. What else can I do?",
			"Thank you! I'm here whenever you need help.",
			"I'm so glad it was helpful! What's next?",
			"Thanks! I love being able to help you out.",
			"That's wonderful to hear! How else can I assist?",
			"Thank you! I'm always ready to help.",
		},
	},
	ToolListing: {
		patterns: compile(
			`(what tools|all tools|available tools|tools you have)`,
			`(what can you do|your capabilities|list tools)`,
			`(show tools|show all tools|tools available)`,
			`(what are your tools|what tools do you have)`,
			`(list all tools|show me tools)`,
		),
		responses: []string{"I have access to many tools! Let me list them for you."},
	},
}

// orderedTypes fixes pattern-table scan order so the first-match semantics
// of the original are reproducible (Go map iteration order is random).
var orderedTypes = []ResponseType{
	Greeting, Acknowledgment, Farewell, Confirmation, Negation, Casual, Appreciation, ToolListing,
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Handler matches instant-eligible queries and renders templated replies.
type Handler struct {
	mu    sync.Mutex
	cache map[string]Response
	rng   *rand.Rand
}

// New creates a Handler with a fresh response cache.
func New() *Handler {
	return &Handler{
		cache: make(map[string]Response),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// ToolLister returns the ToolDescriptors rendered by the tool-listing
// pattern. Supplied by the caller (the live tool registry); the handler
// renders them in the order given.
type ToolLister func() []types.ToolDescriptor

// Handle matches query against the pattern tables, returning nil if none
// match. listTools supplies the live tool registry for TOOL_LISTING queries.
func (h *Handler) Handle(query string, ctx Context, listTools ToolLister) *Response {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	normalized := strings.ToLower(strings.TrimSpace(query))

	h.mu.Lock()
	if cached, ok := h.cache[normalized]; ok {
		h.mu.Unlock()
		cached.Cached = true
		return &cached
	}
	h.mu.Unlock()

	resp := h.matchPatterns(normalized, ctx, listTools)
	if resp == nil {
		return nil
	}

	h.mu.Lock()
	h.cache[normalized] = *resp
	h.mu.Unlock()

	return resp
}

// IsInstant reports whether query matches any instant pattern, without
// rendering a response.
func (h *Handler) IsInstant(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return false
	}

	h.mu.Lock()
	_, cached := h.cache[normalized]
	h.mu.Unlock()
	if cached {
		return true
	}

	for _, rt := range orderedTypes {
		for _, p := range tables[rt].patterns {
			if p.MatchString(normalized) {
				return true
			}
		}
	}
	return false
}

func (h *Handler) matchPatterns(query string, ctx Context, listTools ToolLister) *Response {
	for _, rt := range orderedTypes {
		table := tables[rt]
		for _, p := range table.patterns {
			loc := p.FindStringIndex(query)
			if loc == nil {
				continue
			}
			confidence := matchConfidence(query, loc)
			text := h.selectResponse(rt, table.responses, ctx, listTools)
			return &Response{Text: text, ResponseType: rt, Confidence: confidence}
		}
	}
	return nil
}

// matchConfidence mirrors the original's _calculate_confidence cascade:
// exact full-string match, then full-span match, then length-ratio penalty,
// defaulting to a flat base.
func matchConfidence(query string, loc []int) float64 {
	matched := query[loc[0]:loc[1]]
	switch {
	case matched == query:
		return 0.95
	case loc[0] == 0 && loc[1] == len(query):
		return 0.9
	case len(query) > len(matched)*2:
		return 0.6
	default:
		return 0.8
	}
}

func (h *Handler) selectResponse(rt ResponseType, responses []string, ctx Context, listTools ToolLister) string {
	if rt == ToolListing {
		return h.renderToolListing(listTools)
	}

	candidates := responses
	if rt == Greeting {
		switch ctx.TimeOfDay {
		case "morning":
			if filtered := filterContains(responses, "morning", "day"); len(filtered) > 0 {
				candidates = filtered
			}
		case "evening":
			if filtered := filterContains(responses, "evening", "night"); len(filtered) > 0 {
				candidates = filtered
			}
		}
	}

	selected := candidates[h.rng.Intn(len(candidates))]

	if ctx.UserName != "" && (rt == Greeting || rt == Farewell) && h.rng.Float64() < 0.3 {
		return fmt.Sprintf("%s %s!", strings.TrimRight(selected, "!"), ctx.UserName)
	}
	return selected
}

func filterContains(responses []string, needles ...string) []string {
	var out []string
	for _, r := range responses {
		lower := strings.ToLower(r)
		for _, n := range needles {
			if strings.Contains(lower, n) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// maxEnumerated is the §9 Open Question resolution: enumerate the full
// registry when it holds at most this many tools, otherwise list a
// representative subset plus an honest remainder count.
const maxEnumerated = 6

func (h *Handler) renderToolListing(listTools ToolLister) string {
	if listTools == nil {
		return "I have access to several tools for time, memory, web automation, file editing, and more! Try asking me 'What time is it?' or 'Remember something' to see them in action."
	}
	tools := listTools()
	if len(tools) == 0 {
		return "I don't have any tools available at the moment."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I have access to %d tools", len(tools))
	if len(tools) <= maxEnumerated {
		b.WriteString(":\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
		}
	} else {
		fmt.Fprintf(&b, ". Here are %d of them:\n", maxEnumerated)
		for _, t := range tools[:maxEnumerated] {
			fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
		}
		fmt.Fprintf(&b, "...and %d more.\n", len(tools)-maxEnumerated)
	}
	b.WriteString("Ask me to use any of these, or try something like 'What time is it?'")
	return b.String()
}

// ClearCache empties the response cache.
func (h *Handler) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = make(map[string]Response)
}
