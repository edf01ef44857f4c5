// Voice Assistant - a fully offline voice assistant pipeline using sherpa-onnx
// for wake-word-gated speech capture, local neural ASR/TTS, and an Ollama
// tool-augmented agent for anything past canned instant responses.
//
// Pipeline: AudioCapture -> VAD/Framer -> ASR -> ConfidenceScorer -> Classifier
// -> InstantHandler or AgentInvoker (ToolSelector + RAGGate + Memory Service +
// ResponseCache + ContextWindow) -> TTSEngine -> AudioPlayer, all coordinated
// by the ConversationFSM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agalue/voice-assistant/internal/agent"
	"github.com/agalue/voice-assistant/internal/asr"
	"github.com/agalue/voice-assistant/internal/audio"
	"github.com/agalue/voice-assistant/internal/cache"
	"github.com/agalue/voice-assistant/internal/classifier"
	"github.com/agalue/voice-assistant/internal/config"
	"github.com/agalue/voice-assistant/internal/confidence"
	"github.com/agalue/voice-assistant/internal/ctxwindow"
	"github.com/agalue/voice-assistant/internal/fsm"
	"github.com/agalue/voice-assistant/internal/instant"
	"github.com/agalue/voice-assistant/internal/llm"
	"github.com/agalue/voice-assistant/internal/logging"
	"github.com/agalue/voice-assistant/internal/memory"
	"github.com/agalue/voice-assistant/internal/rag"
	"github.com/agalue/voice-assistant/internal/tools"
	"github.com/agalue/voice-assistant/internal/tts"
	"github.com/agalue/voice-assistant/internal/types"
	"github.com/agalue/voice-assistant/internal/vad"
	"github.com/agalue/voice-assistant/internal/wake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("voice assistant starting",
		zap.String("stt_provider", cfg.STTProvider),
		zap.String("tts_provider", cfg.TTSProvider),
		zap.String("tts_voice", cfg.TTSVoice))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	llmClient, err := llm.NewClient(&llm.Config{
		Host:        cfg.OllamaURL,
		Model:       cfg.OllamaModel,
		Temperature: float64(cfg.Temperature),
	})
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}

	log.Info("checking Ollama connection", zap.String("url", cfg.OllamaURL))
	if err := llmClient.HealthCheck(ctx); err != nil {
		log.Fatal("Ollama connection failed", zap.Error(err))
	}
	log.Info("Ollama connected", zap.String("model", cfg.OllamaModel))

	asrEngine, err := asr.NewSherpaEngine(asr.SherpaConfig{
		Encoder:    cfg.WhisperEncoder,
		Decoder:    cfg.WhisperDecoder,
		Tokens:     cfg.WhisperTokens,
		SampleRate: cfg.SampleRate,
		Language:   cfg.STTLanguage,
		Provider:   cfg.STTProvider,
		NumThreads: cfg.STTThreads,
		Debug:      cfg.Verbose,
	}, log)
	if err != nil {
		log.Fatal("failed to create ASR engine", zap.Error(err))
	}
	defer asrEngine.Close()
	log.Info("speech recognition ready")

	synthesizer, err := tts.NewSynthesizer(&tts.Config{
		Model:      cfg.TTSModel,
		Voices:     cfg.TTSVoices,
		Tokens:     cfg.TTSTokens,
		DataDir:    cfg.TTSData,
		Lexicon:    cfg.TTSLexicon,
		Language:   cfg.TTSLanguage,
		SpeakerID:  cfg.TTSSpeakerID,
		Speed:      cfg.TTSSpeed,
		Provider:   cfg.TTSProvider,
		Verbose:    cfg.Verbose,
		TTSThreads: cfg.TTSThreads,
	})
	if err != nil {
		log.Fatal("failed to create TTS synthesizer", zap.Error(err))
	}
	defer synthesizer.Close()
	log.Info("text-to-speech ready")

	memSvc := newMemoryService(ctx, cfg, llmClient, log)

	toolSelector := newToolSelector(ctx, cfg, memSvc, log)

	respCache, err := cache.New(cache.Config{
		MaxEntries:  cfg.CacheMaxEntries,
		MaxMemoryMB: float64(cfg.CacheMaxMemoryMB),
		PersistDir:  cfg.CachePersistDir,
	}, log)
	if err != nil {
		log.Fatal("failed to create response cache", zap.Error(err))
	}

	contextWindow := ctxwindow.New(ctxwindow.Config{
		MaxTokens:            cfg.ContextMaxTokens,
		MaxEntries:           cfg.ContextMaxEntries,
		CompressionThreshold: 0.8,
	})

	var ragGate *rag.Gate
	if cfg.RAGEnabled {
		ragGate = rag.New(memoryRetriever{svc: memSvc})
	} else {
		ragGate = rag.New(nil)
	}

	invoker := agent.New(llmClient, toolSelector, ragGate, memSvc, respCache, contextWindow, log)

	player, err := audio.NewPlayer(synthesizer.SampleRate(), cfg.AudioBufferMs, nil)
	if err != nil {
		log.Fatal("failed to create audio player", zap.Error(err))
	}
	defer player.Close()

	capturer, err := audio.NewCapturer(cfg.SampleRate, nil)
	if err != nil {
		log.Fatal("failed to create audio capturer", zap.Error(err))
	}
	defer capturer.Close()

	framer := vad.New(vad.DefaultConfig(cfg.SampleRate), float64(cfg.VadThreshold), log)
	wakeDetector := wake.New(wakeWords(cfg.WakeWord), cfg.WakeSensitivity)
	scorer := confidence.New()
	cls := classifier.New()
	instantHandler := instant.New()

	machine := fsm.New(
		fsm.Config{
			ConversationTimeout: time.Duration(cfg.ConversationTimeoutSec * float64(time.Second)),
			MaxRetries:          cfg.MaxRetries,
			WakeAckText:         "Yes?",
			PostPlaybackDelay:   time.Duration(cfg.PostPlaybackDelayMs) * time.Millisecond,
		},
		log, wakeDetector, framer, asrEngine, scorer, cls, instantHandler, invoker,
		synthesizer, player, capturer,
		func() []types.ToolDescriptor { return toolSelector.Descriptors() },
	)

	frames, err := capturer.StartFrames(ctx)
	if err != nil {
		log.Fatal("failed to start audio capture", zap.Error(err))
	}

	if cfg.WakeWord != "" {
		log.Info("listening for wake word", zap.String("wake_word", cfg.WakeWord))
	} else {
		log.Info("listening for default wake words", zap.Strings("wake_words", wakeWords(cfg.WakeWord)))
	}

	runDone := make(chan error, 1)
	go func() { runDone <- machine.Run(ctx, frames) }()

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-runDone:
		if err != nil {
			log.Warn("conversation loop exited", zap.Error(err))
		}
	}

	cancel()

	select {
	case <-runDone:
		log.Info("shutdown complete")
	case <-time.After(5 * time.Second):
		log.Warn("shutdown timeout, forcing exit")
	}
}

func wakeWords(configured string) []string {
	if configured == "" {
		return []string{"computer", "hey computer"}
	}
	return []string{configured}
}

// newToolSelector builds the in-process tool registry, optionally importing
// an external MCP server's catalogue alongside the built-in tools when one
// is configured (§2b/§6). Falls back to the plain in-process registry if the
// MCP server can't be reached.
func newToolSelector(ctx context.Context, cfg *config.Config, mem memory.Service, log *zap.Logger) tools.Selector {
	if cfg.MCPServerCommand == "" && cfg.MCPServerURL == "" {
		reg := tools.NewRegistry()
		wireBuiltinTools(reg, mem, log)
		return reg
	}

	mcpReg := tools.NewMCPRegistry()
	if err := mcpReg.RegisterServer(ctx, tools.MCPServerConfig{
		Name:    cfg.MCPServerName,
		Command: cfg.MCPServerCommand,
		URL:     cfg.MCPServerURL,
	}); err != nil {
		log.Error("failed to connect to MCP tool server, using built-in tools only",
			zap.String("server", cfg.MCPServerName), zap.Error(err))
		reg := tools.NewRegistry()
		wireBuiltinTools(reg, mem, log)
		return reg
	}

	log.Info("imported tools from MCP server", zap.String("server", cfg.MCPServerName))
	wireBuiltinTools(mcpReg.Registry, mem, log)
	return mcpReg
}

// newMemoryService builds the real Postgres+pgvector Memory Service when a
// database URL is configured, falling back to the in-memory scripted service
// (facts survive only for the process lifetime) otherwise.
func newMemoryService(ctx context.Context, cfg *config.Config, embedder memory.Embedder, log *zap.Logger) memory.Service {
	if cfg.MemoryDatabaseURL == "" {
		log.Info("memory-database-url not set, using in-process memory store (not persisted)")
		return memory.NewScriptedService()
	}

	pool, err := pgxpool.New(ctx, cfg.MemoryDatabaseURL)
	if err != nil {
		log.Error("failed to connect to memory database, falling back to in-process store", zap.Error(err))
		return memory.NewScriptedService()
	}
	if err := pool.Ping(ctx); err != nil {
		log.Error("memory database unreachable, falling back to in-process store", zap.Error(err))
		return memory.NewScriptedService()
	}

	log.Info("persistent memory service connected")
	return memory.NewPGService(pool, embedder)
}

// wireBuiltinTools registers handlers for the built-in tools that don't need
// an external MCP server: time lookups and long-term memory access.
func wireBuiltinTools(reg *tools.Registry, mem memory.Service, log *zap.Logger) {
	reg.Register("get_current_time", "Get current time, date, and datetime information", "time",
		[]string{"time", "date", "datetime", "current", "now", "today", "clock"},
		func(ctx context.Context, argsJSON string) (string, error) {
			return time.Now().Format("Monday, January 2, 2006 at 3:04 PM"), nil
		})

	reg.Register("remember_fact", "Store information in long-term memory for future recall", "memory",
		[]string{"remember", "save", "store", "memory", "fact", "information"},
		func(ctx context.Context, argsJSON string) (string, error) {
			fact := extractArg(argsJSON, "fact")
			if fact == "" {
				return "", fmt.Errorf("remember_fact: missing %q argument", "fact")
			}
			if err := mem.StoreFact(ctx, fact); err != nil {
				log.Warn("remember_fact failed", zap.Error(err))
				return "", err
			}
			return "stored", nil
		})

	reg.Register("search_long_term_memory", "Search stored memories and information from previous conversations", "memory",
		[]string{"search", "memory", "recall", "find", "remember", "previous", "stored"},
		func(ctx context.Context, argsJSON string) (string, error) {
			q := extractArg(argsJSON, "query")
			results, err := mem.Search(ctx, q, 5)
			if err != nil {
				log.Warn("search_long_term_memory failed", zap.Error(err))
				return "", err
			}
			if len(results) == 0 {
				return "no relevant memories found", nil
			}
			out := ""
			for i, r := range results {
				if i > 0 {
					out += "; "
				}
				out += r.Content
			}
			return out, nil
		})
}

// extractArg pulls a single string field out of a tool-call argument blob
// built by agent.marshalArgs (a flat {"key":"value",...} object), avoiding a
// dependency on a JSON library for this narrow internal shape.
func extractArg(argsJSON, key string) string {
	marker := `"` + key + `":"`
	idx := indexOf(argsJSON, marker)
	if idx < 0 {
		return ""
	}
	start := idx + len(marker)
	end := indexOf(argsJSON[start:], `"`)
	if end < 0 {
		return ""
	}
	return argsJSON[start : start+end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// memoryRetriever adapts the Memory Service's Search to rag.Retriever so the
// RAG gate's real retrieval path (rather than its simulated fallback) is
// backed by the same store as the remember_fact/search_long_term_memory tools.
type memoryRetriever struct {
	svc memory.Service
}

func (m memoryRetriever) Retrieve(q rag.Query, maxResults int) ([]string, []float64, []string, error) {
	text := q.ProcessedQuery
	if text == "" {
		text = q.OriginalQuery
	}
	results, err := m.svc.Search(context.Background(), text, maxResults)
	if err != nil {
		return nil, nil, nil, err
	}
	snippets := make([]string, 0, len(results))
	scores := make([]float64, 0, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, r.Content)
		scores = append(scores, r.Score)
		sources = append(sources, r.Source)
	}
	return snippets, scores, sources, nil
}
