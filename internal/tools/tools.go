// Package tools implements the ToolSelector component (C10): a registry of
// ToolDescriptor scored against a query by keyword overlap, usage history
// and context, with a default in-process registry and an MCP-backed
// alternate adapter (mcp.go).
package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z0-9]{3,}\b`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"of": {}, "with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "have": {},
	"has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"can": {}, "may": {}, "might": {}, "must": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {},
	"they": {}, "me": {}, "him": {}, "her": {}, "us": {}, "them": {},
}

func extractKeywords(text string) map[string]struct{} {
	lower := strings.ToLower(text)
	out := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// SelectionContext carries optional signals that bias tool scoring.
type SelectionContext struct {
	Complexity   types.QueryComplexity
	TimeSensitive bool
	RecentTools  []string
}

// Selection is the outcome of one SelectTools call.
type Selection struct {
	SelectedTools     []string
	ConfidenceScores  map[string]float64
	SelectionReasoning string
	Cached            bool
}

// Invoker executes a selected tool by ID, given its JSON-encoded arguments.
type Invoker interface {
	Invoke(ctx context.Context, toolID string, argsJSON string) (string, error)
}

// Selector selects and tracks tools. The default in-process Registry and
// the MCP-backed adapter both implement it.
type Selector interface {
	Invoker
	SelectTools(query string, maxTools int, sctx SelectionContext) Selection
	RecordUsage(toolID string, success bool, latencyMs float64)
	Descriptors() []types.ToolDescriptor
}

// ToolHandler executes one tool in-process.
type ToolHandler func(ctx context.Context, argsJSON string) (string, error)

type registeredTool struct {
	descriptor types.ToolDescriptor
	handler    ToolHandler
}

// Registry is the default in-process ToolSelector implementation.
type Registry struct {
	mu    sync.Mutex
	tools map[string]*registeredTool
	cache map[string]Selection
}

var _ Selector = (*Registry)(nil)

// NewRegistry creates a Registry seeded with the nine default tools (§2c).
func NewRegistry() *Registry {
	r := &Registry{
		tools: make(map[string]*registeredTool),
		cache: make(map[string]Selection),
	}
	for _, t := range seedTools() {
		r.Register(t.ID, t.Description, t.Category, t.Keywords, nil)
	}
	return r
}

func seedTools() []types.ToolDescriptor {
	return []types.ToolDescriptor{
		{ID: "get_current_time", Description: "Get current time, date, and datetime information",
			Keywords: []string{"time", "date", "datetime", "current", "now", "today", "clock"}, Category: "time", SuccessRate: 1.0},
		{ID: "remember_fact", Description: "Store information in long-term memory for future recall",
			Keywords: []string{"remember", "save", "store", "memory", "fact", "information"}, Category: "memory", SuccessRate: 1.0},
		{ID: "search_long_term_memory", Description: "Search stored memories and information from previous conversations",
			Keywords: []string{"search", "memory", "recall", "find", "remember", "previous", "stored"}, Category: "memory", SuccessRate: 1.0},
		{ID: "execute_code", Description: "Execute code for calculations, data processing, and automation",
			Keywords: []string{"code", "execute", "run", "calculate", "compute", "script"}, Category: "code", SuccessRate: 1.0},
		{ID: "analyze_file", Description: "Analyze CSV, JSON, text, and other data files",
			Keywords: []string{"analyze", "file", "csv", "json", "data", "process"}, Category: "data", SuccessRate: 1.0},
		{ID: "create_script", Description: "Generate scripts for automation",
			Keywords: []string{"create", "script", "generate", "automation"}, Category: "code", SuccessRate: 1.0},
		{ID: "system_task", Description: "System monitoring, disk usage, process management, file organization",
			Keywords: []string{"system", "monitor", "disk", "process", "file", "organization", "cleanup"}, Category: "system", SuccessRate: 1.0},
		{ID: "web_automation_task", Description: "AI-powered web interactions, scraping, and form filling",
			Keywords: []string{"web", "website", "scrape", "automation", "browser", "form", "internet"}, Category: "web", SuccessRate: 1.0},
		{ID: "filesystem", Description: "File and directory operations, reading, writing, listing",
			Keywords: []string{"file", "directory", "folder", "read", "write", "list", "filesystem"}, Category: "files", SuccessRate: 1.0},
	}
}

// Register adds or replaces a tool. A nil handler means Invoke returns an
// unimplemented error, useful for descriptors backing external registries.
func (r *Registry) Register(id, description, category string, keywords []string, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[id] = &registeredTool{
		descriptor: types.ToolDescriptor{
			ID: id, Description: description, Keywords: keywords, Category: category, SuccessRate: 1.0,
		},
		handler: handler,
	}
}

// Descriptors returns a snapshot of all registered tools.
func (r *Registry) Descriptors() []types.ToolDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invoke runs the tool's registered handler.
func (r *Registry) Invoke(ctx context.Context, toolID string, argsJSON string) (string, error) {
	r.mu.Lock()
	t, ok := r.tools[toolID]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("tool %q is not registered", toolID)
	}
	if t.handler == nil {
		return "", fmt.Errorf("tool %q has no in-process handler", toolID)
	}
	return t.handler(ctx, argsJSON)
}

// SelectTools scores every registered tool against query and returns the
// top maxTools, preferring category diversity, per §4.10.
func (r *Registry) SelectTools(query string, maxTools int, sctx SelectionContext) Selection {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Selection{SelectionReasoning: "Empty query"}
	}

	cacheKey := selectionCacheKey(trimmed, maxTools, sctx)

	r.mu.Lock()
	if cached, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		cached.Cached = true
		return cached
	}
	r.mu.Unlock()

	queryKeywords := extractKeywords(trimmed)
	scores := r.scoreTools(trimmed, queryKeywords, sctx)
	selected := selectTopTools(scores, r.categoryOf, maxTools)
	reasoning := generateReasoning(selected, scores, r.categoryOf)

	confidences := make(map[string]float64, len(selected))
	for _, id := range selected {
		confidences[id] = scores[id]
	}

	result := Selection{SelectedTools: selected, ConfidenceScores: confidences, SelectionReasoning: reasoning}

	r.mu.Lock()
	r.cache[cacheKey] = result
	r.mu.Unlock()

	return result
}

func (r *Registry) categoryOf(toolID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tools[toolID]; ok {
		return t.descriptor.Category
	}
	return ""
}

func (r *Registry) scoreTools(query string, queryKeywords map[string]struct{}, sctx SelectionContext) map[string]float64 {
	r.mu.Lock()
	snapshot := make(map[string]types.ToolDescriptor, len(r.tools))
	for id, t := range r.tools {
		snapshot[id] = t.descriptor
	}
	r.mu.Unlock()

	lowerQuery := strings.ToLower(query)
	scores := make(map[string]float64, len(snapshot))

	for id, desc := range snapshot {
		var score float64

		matches := 0
		for kw := range queryKeywords {
			if containsString(desc.Keywords, kw) {
				matches++
			}
		}
		if matches > 0 {
			score += min64(0.6, float64(matches)*0.2)
		}

		descLower := strings.ToLower(desc.Description)
		descMatches := 0
		for kw := range queryKeywords {
			if strings.Contains(descLower, kw) {
				descMatches++
			}
		}
		if descMatches > 0 {
			score += min64(0.3, float64(descMatches)*0.1)
		}

		if strings.Contains(lowerQuery, strings.ToLower(id)) {
			score += 0.4
		} else if strings.Contains(lowerQuery, strings.ToLower(desc.Category)) {
			score += 0.2
		}

		if desc.UsageCount > 0 {
			score += min64(0.1, float64(desc.UsageCount)/100)
		}

		score += desc.SuccessRate * 0.1

		if !desc.LastUsed.IsZero() {
			hoursSince := time.Since(desc.LastUsed).Hours()
			recency := 0.05 * (1 - hoursSince/24)
			if recency > 0 {
				score += recency
			}
		}

		score = applyContextAdjustments(score, id, desc, sctx)

		if score > 1.0 {
			score = 1.0
		}
		scores[id] = score
	}

	return scores
}

func applyContextAdjustments(score float64, toolID string, desc types.ToolDescriptor, sctx SelectionContext) float64 {
	switch sctx.Complexity {
	case types.ComplexityInstant:
		if desc.Category == "time" || desc.Category == "memory" {
			score *= 1.2
		}
	case types.ComplexityMultiStep:
		if desc.Category == "code" || desc.Category == "web" || desc.Category == "system" {
			score *= 1.3
		}
	}

	if sctx.TimeSensitive && desc.Category == "time" {
		score *= 1.5
	}

	if containsString(sctx.RecentTools, toolID) {
		score *= 0.8
	}

	return score
}

func selectTopTools(scores map[string]float64, categoryOf func(string) string, maxTools int) []string {
	if len(scores) == 0 || maxTools <= 0 {
		return nil
	}

	type scored struct {
		id    string
		score float64
	}
	sortedTools := make([]scored, 0, len(scores))
	for id, s := range scores {
		sortedTools = append(sortedTools, scored{id, s})
	}
	sort.Slice(sortedTools, func(i, j int) bool {
		if sortedTools[i].score != sortedTools[j].score {
			return sortedTools[i].score > sortedTools[j].score
		}
		return sortedTools[i].id < sortedTools[j].id
	})

	var selected []string
	usedCategories := make(map[string]struct{})

	for _, st := range sortedTools {
		if len(selected) >= maxTools {
			break
		}
		if st.score < 0.1 {
			continue
		}
		cat := categoryOf(st.id)
		if _, used := usedCategories[cat]; !used || len(selected) == 0 {
			selected = append(selected, st.id)
			usedCategories[cat] = struct{}{}
		}
	}

	for _, st := range sortedTools {
		if len(selected) >= maxTools {
			break
		}
		if st.score < 0.1 || containsString(selected, st.id) {
			continue
		}
		selected = append(selected, st.id)
	}

	if len(selected) > maxTools {
		selected = selected[:maxTools]
	}
	return selected
}

func generateReasoning(selected []string, scores map[string]float64, categoryOf func(string) string) string {
	if len(selected) == 0 {
		return "No relevant tools found for query"
	}

	var parts []string
	for _, id := range selected {
		score := scores[id]
		var confidence string
		switch {
		case score > 0.7:
			confidence = "high"
		case score > 0.4:
			confidence = "medium"
		default:
			confidence = "low"
		}
		parts = append(parts, fmt.Sprintf("%s (%s relevance, %s category)", id, confidence, categoryOf(id)))
	}
	return fmt.Sprintf("Selected %d tools: %s", len(selected), strings.Join(parts, ", "))
}

// RecordUsage updates usage_count, last_used and success_rate/avg_latency_ms
// via an EMA with alpha=0.1 (§2c).
func (r *Registry) RecordUsage(toolID string, success bool, latencyMs float64) {
	const alpha = 0.1

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tools[toolID]
	if !ok {
		return
	}
	t.descriptor.UsageCount++
	t.descriptor.LastUsed = time.Now()

	if success {
		t.descriptor.SuccessRate = t.descriptor.SuccessRate*(1-alpha) + alpha
	} else {
		t.descriptor.SuccessRate = t.descriptor.SuccessRate * (1 - alpha)
	}

	if t.descriptor.AvgLatencyMs == 0 {
		t.descriptor.AvgLatencyMs = latencyMs
	} else {
		t.descriptor.AvgLatencyMs = t.descriptor.AvgLatencyMs*(1-alpha) + latencyMs*alpha
	}
}

func selectionCacheKey(query string, maxTools int, sctx SelectionContext) string {
	combined := fmt.Sprintf("%s|%d|%s|%v|%v", query, maxTools, sctx.Complexity, sctx.TimeSensitive, sctx.RecentTools)
	sum := md5.Sum([]byte(combined))
	return hex.EncodeToString(sum[:])
}

func containsString(list []string, needle string) bool {
	for _, s := range list {
		if s == needle {
			return true
		}
	}
	return false
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
