// Package classifier implements the Classifier component (C6): regex
// pattern tables assign a QueryComplexity and confidence, ported pattern
// for pattern from the reference implementation, with the tie-break order
// spec'd in §4.6.
package classifier

import (
	"regexp"
	"strings"
	"sync"

	"github.com/agalue/voice-assistant/internal/types"
)

type patternEntry struct {
	pattern    *regexp.Regexp
	confidence float64
}

var instantPatterns = compile(map[string]float64{
	`(?i)\b(hi|hello|hey|good morning|good afternoon|good evening)\b`: 0.95,
	`(?i)\b(thanks?|thank you|thx)\b`:                                 0.95,
	`(?i)\b(yes|yeah|yep|ok|okay|sure|alright)\b`:                     0.90,
	`(?i)\b(no|nope|nah)\b`:                                           0.90,
	`(?i)\b(bye|goodbye|see you|talk later)\b`:                        0.95,
	`(?i)^(got it|understood|makes sense)$`:                           0.95,
	`(?i)^(cool|nice|great|awesome|perfect)$`:                         0.85,
	`(?i)(what tools|all tools|available tools|tools you have)`:       0.95,
	`(?i)(what can you do|your capabilities|list tools)`:              0.95,
	`(?i)(show tools|show all tools|tools available)`:                 0.90,
})

var explicitFactPatterns = compile(map[string]float64{
	`(?i)\b(what time|current time|time is it)\b`: 0.95,
	`(?i)\b(what date|today's date|current date)\b`: 0.95,
	`(?i)\b(what day|day of the week)\b`:            0.90,
	`(?i)\b(what is|define|definition of)\b`:         0.85,
	`(?i)\b(how many|how much|how long|how far)\b`:   0.80,
	`(?i)\b(when did|when was|when will)\b`:          0.80,
	`(?i)\b(where is|where are|where can)\b`:         0.75,
})

var simpleReasoningPatterns = compile(map[string]float64{
	`(?i)\b(explain|tell me about|describe)\b`:               0.85,
	`(?i)\b(how does|how do|why does|why do)\b`:               0.80,
	`(?i)\b(what are the|list the|show me)\b`:                 0.75,
	`(?i)\b(remember that|save this|store)\b`:                 0.90,
	`(?i)\b(what do you remember|recall|search memory)\b`:     0.90,
	`(?i)\b(calculate|compute|math|add|subtract|multiply|divide)\b`: 0.85,
})

var complexPatterns = compile(map[string]float64{
	`(?i)\b(create|build|develop|make|generate)\b.*\b(script|program|tool|system)\b`: 0.90,
	`(?i)\b(analyze|process|extract).*\b(data|file|website)\b`:                       0.85,
	`(?i)\b(research|investigate|study)\b.*\b(and|then)\b`:                           0.80,
	`(?i)\b(download|scrape|get).*\b(and|then)\b.*\b(analyze|process)\b`:             0.85,
	`(?i)\b(automate|schedule|monitor|track)\b`:                                      0.80,
	`(?i)\b(test|validate|check).*\b(and|then)\b`:                                    0.75,
})

var toolSuggestionPatterns = []struct {
	pattern *regexp.Regexp
	tools   []string
}{
	{regexp.MustCompile(`(?i)\b(time|date|day)\b`), []string{"get_current_time"}},
	{regexp.MustCompile(`(?i)\b(remember|save|store)\b`), []string{"remember_fact"}},
	{regexp.MustCompile(`(?i)\b(recall|search memory|what do you remember)\b`), []string{"search_long_term_memory"}},
	{regexp.MustCompile(`(?i)\b(calculate|compute|run|execute)\b`), []string{"execute_code"}},
	{regexp.MustCompile(`(?i)\b(analyze.*file|process.*data)\b`), []string{"analyze_file"}},
	{regexp.MustCompile(`(?i)\b(website|web|scrape|download)\b`), []string{"web_automation_task"}},
	{regexp.MustCompile(`(?i)\b(file|folder|directory)\b`), []string{"filesystem"}},
}

func compile(m map[string]float64) []patternEntry {
	out := make([]patternEntry, 0, len(m))
	for p, c := range m {
		out = append(out, patternEntry{pattern: regexp.MustCompile(p), confidence: c})
	}
	return out
}

// Classifier assigns a QueryComplexity to free text. Pure and side-effect
// free aside from an internal memoization cache.
type Classifier struct {
	mu    sync.Mutex
	cache map[string]types.Classification
}

// New creates a Classifier with an empty memoization cache.
func New() *Classifier {
	return &Classifier{cache: make(map[string]types.Classification)}
}

// Classify returns the Classification for a query, memoized by normalized
// (trimmed, lowercased) text.
func (c *Classifier) Classify(query string) types.Classification {
	if strings.TrimSpace(query) == "" {
		return types.Classification{
			Complexity: types.ComplexityInstant,
			Confidence: 0,
			Reasoning:  "Empty query",
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(query))

	c.mu.Lock()
	if cached, ok := c.cache[normalized]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	result := classifyWithPatterns(normalized)
	result.SuggestedTools = suggestTools(normalized)

	c.mu.Lock()
	c.cache[normalized] = result
	c.mu.Unlock()

	return result
}

func classifyWithPatterns(query string) types.Classification {
	for _, e := range instantPatterns {
		if e.pattern.MatchString(query) {
			return types.Classification{
				Complexity: types.ComplexityInstant,
				Confidence: e.confidence,
				Reasoning:  "Matched instant pattern",
			}
		}
	}

	maxComplex, _ := bestMatch(complexPatterns, query)

	if maxComplex > 0.7 {
		return types.Classification{
			Complexity: types.ComplexityMultiStep,
			Confidence: maxComplex,
			Reasoning:  "Matched complex pattern",
		}
	}

	maxFact, _ := bestMatch(explicitFactPatterns, query)
	maxReasoning, _ := bestMatch(simpleReasoningPatterns, query)

	switch {
	case maxFact > maxReasoning && maxFact > 0.6:
		return types.Classification{
			Complexity: types.ComplexityFact,
			Confidence: maxFact,
			Reasoning:  "Matched explicit fact pattern",
		}
	case maxReasoning > 0.6:
		return types.Classification{
			Complexity: types.ComplexityReasoning,
			Confidence: maxReasoning,
			Reasoning:  "Matched simple reasoning pattern",
		}
	case maxComplex > 0.5:
		return types.Classification{
			Complexity: types.ComplexityMultiStep,
			Confidence: maxComplex,
			Reasoning:  "Matched complex pattern (lower confidence)",
		}
	default:
		return types.Classification{
			Complexity: types.ComplexityReasoning,
			Confidence: 0.5,
			Reasoning:  "Default classification - no strong pattern match",
		}
	}
}

func bestMatch(entries []patternEntry, query string) (float64, *regexp.Regexp) {
	var best float64
	var bestPattern *regexp.Regexp
	for _, e := range entries {
		if e.pattern.MatchString(query) && e.confidence > best {
			best = e.confidence
			bestPattern = e.pattern
		}
	}
	return best, bestPattern
}

func suggestTools(query string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, entry := range toolSuggestionPatterns {
		if entry.pattern.MatchString(query) {
			for _, tool := range entry.tools {
				if _, ok := seen[tool]; !ok {
					seen[tool] = struct{}{}
					out = append(out, tool)
				}
			}
		}
	}
	return out
}

// PerformanceTarget returns the response-time/api-call targets for a
// complexity level, used for telemetry only.
func PerformanceTarget(c types.QueryComplexity) (responseTime float64, apiCalls float64) {
	switch c {
	case types.ComplexityInstant:
		return 0.05, 0
	case types.ComplexityFact:
		return 0.3, 0.5
	case types.ComplexityReasoning:
		return 1.0, 1
	case types.ComplexityMultiStep:
		return 5.0, 3
	default:
		return 1.0, 1
	}
}
