// Package agent implements the tool-augmented LLM agent (C12 AgentInvoker):
// prompt construction, concurrent tool/RAG fan-out, budget enforcement, and
// the memory-intent preprocessing bypass that skips the LLM entirely for
// explicit store/forget phrasing.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agalue/voice-assistant/internal/cache"
	"github.com/agalue/voice-assistant/internal/ctxwindow"
	"github.com/agalue/voice-assistant/internal/llm"
	"github.com/agalue/voice-assistant/internal/memory"
	"github.com/agalue/voice-assistant/internal/rag"
	"github.com/agalue/voice-assistant/internal/tools"
	"github.com/agalue/voice-assistant/internal/types"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChatClient is the narrow contract the agent needs from an LLM endpoint;
// internal/llm.Client satisfies it via ChatWithTools.
type ChatClient interface {
	ChatWithTools(ctx context.Context, messages []api.Message, tools []llm.ToolSpec) (llm.ChatResult, error)
}

// storagePatterns/forgetPattern implement the original's narrower
// high-confidence-verb bypass split (§2c): only these exact phrasings skip
// the LLM; ambiguous recall language always flows through the LLM with RAG
// context attached instead.
var (
	storageThatPattern = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:remember|store)\s+that\s+(.+)$`)
	dontForgetPattern  = regexp.MustCompile(`(?i)^\s*(?:please\s+)?don'?t\s+forget\s+(?:that\s+)?(.+)$`)
	forgetThatPattern  = regexp.MustCompile(`(?i)^\s*(?:please\s+)?forget\s+that\s+(.+)$`)
)

// memoryIntent classifies a query as an explicit store/forget bypass
// candidate, or neither (in which case the LLM is always invoked).
func memoryIntent(query string) (isStore, isForget bool, payload string) {
	if m := storageThatPattern.FindStringSubmatch(query); m != nil {
		return true, false, strings.TrimSpace(m[1])
	}
	if m := dontForgetPattern.FindStringSubmatch(query); m != nil {
		return true, false, strings.TrimSpace(m[1])
	}
	if m := forgetThatPattern.FindStringSubmatch(query); m != nil {
		return false, true, strings.TrimSpace(m[1])
	}
	return false, false, ""
}

const maxToolRounds = 3

// Result is the outcome of one agent turn.
type Result struct {
	Response   string
	Complexity types.QueryComplexity
	ToolsUsed  []string
	CacheHit   bool
	BudgetMet  bool
	UsedRAG    bool
}

// Invoker is the C12 AgentInvoker: it owns prompt construction, the
// concurrent tool-selection/RAG fan-out, budget enforcement, and the
// response cache/context-window/tool-usage side effects of a successful turn.
type Invoker struct {
	chat    ChatClient
	toolSel tools.Selector
	rag     *rag.Gate
	mem     memory.Service
	cache   *cache.Cache
	window  *ctxwindow.Window
	log     *zap.Logger
}

// New wires an AgentInvoker from its already-constructed dependencies.
func New(chat ChatClient, toolSel tools.Selector, ragGate *rag.Gate, mem memory.Service, respCache *cache.Cache, window *ctxwindow.Window, log *zap.Logger) *Invoker {
	return &Invoker{chat: chat, toolSel: toolSel, rag: ragGate, mem: mem, cache: respCache, window: window, log: log}
}

// Invoke processes one user query end to end.
func (a *Invoker) Invoke(ctx context.Context, query string, classification types.Classification) (Result, error) {
	start := time.Now()
	budget := classification.Complexity.LatencyBudget()

	if isStore, isForget, payload := memoryIntent(query); isStore || isForget {
		return a.handleMemoryIntent(ctx, isStore, payload)
	}

	contextFingerprint := a.window.GetOptimized(query, 400)
	cacheKey := cache.ResponseKey(query, classification.Complexity, contextFingerprint)
	if cached, ok := a.cache.Get(types.TierResponse, cacheKey); ok {
		return Result{Response: cached, Complexity: classification.Complexity, CacheHit: true, BudgetMet: true}, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var toolSelection tools.Selection
	var ragQuery rag.Query
	var ragResult rag.Result

	g, _ := errgroup.WithContext(timeoutCtx)
	g.Go(func() error {
		toolSelection = a.toolSel.SelectTools(query, classification.Complexity.MaxTools(), tools.SelectionContext{Complexity: classification.Complexity})
		return nil
	})
	g.Go(func() error {
		ragQuery = a.rag.Analyze(query, rag.Context{Complexity: classification.Complexity})
		if ragQuery.ActivationLevel == rag.Disabled {
			return nil
		}
		res, err := a.rag.Retrieve(ragQuery, 5)
		if err != nil {
			a.log.Warn("rag retrieval failed, continuing without it", zap.Error(err))
			return nil
		}
		ragResult = res
		return nil
	})
	_ = g.Wait() // both sides are best-effort; neither returns a real error

	prompt := systemPrompt(classification.Complexity, ragResult.RetrievedContent, contextFingerprint)
	descriptorsByID := make(map[string]types.ToolDescriptor, len(toolSelection.SelectedTools))
	for _, d := range a.toolSel.Descriptors() {
		descriptorsByID[d.ID] = d
	}
	toolSpecs := make([]llm.ToolSpec, 0, len(toolSelection.SelectedTools))
	for _, id := range toolSelection.SelectedTools {
		toolSpecs = append(toolSpecs, toolSpecFor(descriptorsByID[id], id))
	}

	messages := []api.Message{llm.SystemMessage(prompt), llm.UserMessage(query)}

	response, toolsUsed, err := a.runToolLoop(timeoutCtx, messages, toolSpecs)
	processingTime := time.Since(start)
	budgetMet := processingTime <= budget

	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			a.log.Warn("agent turn exceeded budget, returning apology", zap.Duration("budget", budget))
			return Result{
				Response:   "I'm sorry, that's taking longer than expected. Could you try again?",
				Complexity: classification.Complexity,
				BudgetMet:  false,
			}, nil
		}
		return Result{}, fmt.Errorf("agent: invoke: %w", err)
	}

	if budgetMet {
		a.cache.Put(types.TierResponse, cacheKey, response)
	}

	a.window.Add(query, types.KindUserUtterance, types.PriorityHigh, nil)
	a.window.Add(response, types.KindAssistantReply, types.PriorityHigh, nil)

	for _, id := range toolsUsed {
		a.toolSel.RecordUsage(id, true, float64(processingTime.Milliseconds()))
	}

	return Result{
		Response:   response,
		Complexity: classification.Complexity,
		ToolsUsed:  toolsUsed,
		BudgetMet:  budgetMet,
		UsedRAG:    ragQuery.ActivationLevel != rag.Disabled,
	}, nil
}

// runToolLoop drives the LLM round trip: the model may ask for tool calls,
// which are executed and fed back, up to maxToolRounds before forcing a
// final plain-text answer.
func (a *Invoker) runToolLoop(ctx context.Context, messages []api.Message, toolSpecs []llm.ToolSpec) (string, []string, error) {
	var toolsUsed []string

	for round := 0; round < maxToolRounds; round++ {
		result, err := a.chat.ChatWithTools(ctx, messages, toolSpecs)
		if err != nil {
			return "", toolsUsed, err
		}

		if len(result.ToolCalls) == 0 {
			return result.Content, toolsUsed, nil
		}

		messages = append(messages, llm.AssistantMessage(result.Content))
		for _, call := range result.ToolCalls {
			argsJSON := marshalArgs(call.Arguments)
			output, err := a.toolSel.Invoke(ctx, call.Name, argsJSON)
			if err != nil {
				output = fmt.Sprintf("tool %q failed: %v", call.Name, err)
			}
			toolsUsed = append(toolsUsed, call.Name)
			messages = append(messages, llm.ToolResultMessage(call.Name, output))
		}
	}

	// Ran out of rounds: ask once more with tools disabled to force a final answer.
	result, err := a.chat.ChatWithTools(ctx, messages, nil)
	if err != nil {
		return "", toolsUsed, err
	}
	return result.Content, toolsUsed, nil
}

func (a *Invoker) handleMemoryIntent(ctx context.Context, isStore bool, payload string) (Result, error) {
	if payload == "" {
		return Result{Response: "What would you like me to remember?", BudgetMet: true}, nil
	}

	if isStore {
		if err := a.mem.StoreFact(ctx, payload); err != nil {
			a.log.Warn("memory store failed", zap.Error(err))
			return Result{Response: "I couldn't save that just now, sorry.", BudgetMet: true}, nil
		}
		return Result{Response: fmt.Sprintf("Got it, I'll remember that %s.", payload), BudgetMet: true}, nil
	}

	count, err := a.mem.Forget(ctx, payload)
	if err != nil {
		a.log.Warn("memory forget failed", zap.Error(err))
		return Result{Response: "I couldn't forget that just now, sorry.", BudgetMet: true}, nil
	}
	if count == 0 {
		return Result{Response: "I didn't have anything stored about that.", BudgetMet: true}, nil
	}
	return Result{Response: "Done, I've forgotten that.", BudgetMet: true}, nil
}

// toolArgSchemas names the one string argument each built-in tool expects,
// matching the key wireBuiltinTools/extractArg look for in cmd/assistant's
// handlers. Tools not listed here (e.g. get_current_time) take no arguments.
var toolArgSchemas = map[string]string{
	"remember_fact":           "fact",
	"search_long_term_memory": "query",
	"execute_code":            "code",
	"analyze_file":            "file",
	"create_script":           "description",
	"system_task":             "task",
	"web_automation_task":     "task",
	"filesystem":              "path",
}

// toolSpecFor builds the llm.ToolSpec the model sees for one selected tool,
// using the registry's real description (falling back to the bare id only
// if the descriptor lookup somehow misses) and a single-string parameter
// schema for tools that take an argument.
func toolSpecFor(d types.ToolDescriptor, id string) llm.ToolSpec {
	description := d.Description
	if description == "" {
		description = id
	}

	params := map[string]any{}
	if argName, ok := toolArgSchemas[id]; ok {
		params[argName] = map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("The %s to pass to %s", argName, id),
		}
	}

	return llm.ToolSpec{Name: id, Description: description, Parameters: params}
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range args {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%q:%q", k, fmt.Sprint(v))
	}
	b.WriteByte('}')
	return b.String()
}
