package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const storytellerSystemPrompt = `You are a dramatic storyteller for a village werewolf game (Loup-Garou). When players are killed, you tell a short atmospheric story about their fate. Keep it to 2-3 sentences. Be gothic and dramatic, fitting for a village plagued by werewolves.`

// Storyteller narrates the deaths announced in the history.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

// globalStoryteller is nil when no provider is configured (feature disabled).
var globalStoryteller Storyteller

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"Game history so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about the latest deaths. Never reveal a living player's role."),
	}

	var fullText strings.Builder
	opts := append(append([]llms.CallOption(nil), s.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(conf AppConfig) []llms.CallOption {
	var opts []llms.CallOption
	log := logger.WithField("component", "storyteller")

	if conf.StorytellerTemperature != "" {
		f, err := strconv.ParseFloat(conf.StorytellerTemperature, 64)
		if err != nil || f < 0 || f > 1 {
			log.Warnf("invalid temperature %q, using the model default", conf.StorytellerTemperature)
		} else {
			opts = append(opts, llms.WithTemperature(f))
			log.Debugf("temperature=%.2f", f)
		}
	}

	if conf.StorytellerThinking != "" {
		mode := llms.ThinkingMode(conf.StorytellerThinking)
		switch mode {
		case llms.ThinkingModeNone, llms.ThinkingModeLow, llms.ThinkingModeMedium, llms.ThinkingModeHigh, llms.ThinkingModeAuto:
			opts = append(opts, llms.WithThinkingMode(mode))
			log.Debugf("thinking=%s", mode)
		default:
			log.Warnf("invalid thinking %q (valid: none, low, medium, high, auto)", conf.StorytellerThinking)
		}
	}

	return opts
}

var errNoProvider = errors.New("no storyteller provider configured")

// newStorytellerModel builds the language model for the configured provider.
func newStorytellerModel(conf AppConfig) (llms.Model, error) {
	model := conf.StorytellerModel
	switch conf.StorytellerProvider {
	case "ollama":
		return ollama.New(ollama.WithModel(model), ollama.WithServerURL(conf.StorytellerOllamaURL))
	case "openai":
		return openai.New(openai.WithModel(model))
	case "claude":
		return anthropic.New(anthropic.WithModel(model))
	case "gemini":
		return googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		return openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(conf.GroqAPIKey),
		)
	case "openai-compatible":
		if conf.StorytellerURL == "" {
			return nil, errors.New("storyteller_url is required for the openai-compatible provider")
		}
		opts := []openai.Option{openai.WithModel(model), openai.WithBaseURL(conf.StorytellerURL)}
		if conf.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(conf.StorytellerAPIKey))
		}
		return openai.New(opts...)
	case "":
		return nil, errNoProvider
	default:
		return nil, fmt.Errorf("unknown storyteller provider %q", conf.StorytellerProvider)
	}
}

// initStoryteller sets up the global storyteller from config. A missing or
// broken provider leaves the feature off.
func initStoryteller(conf AppConfig) {
	log := logger.WithFields(logrus.Fields{"component": "storyteller", "provider": conf.StorytellerProvider, "model": conf.StorytellerModel})

	llm, err := newStorytellerModel(conf)
	if errors.Is(err, errNoProvider) {
		log.Info("disabled (set storyteller_provider to enable)")
		return
	}
	if err != nil {
		log.Warnf("failed to init: %v", err)
		return
	}
	globalStoryteller = &llmStoryteller{llm: llm, systemPrompt: storytellerSystemPrompt, callOpts: buildCallOpts(conf)}
	log.Info("enabled")
}

// maybeGenerateStory streams a short story into the history after deaths.
// It returns at once; the text shows up progressively through
// broadcastGameUpdate.
func maybeGenerateStory(sessionID string, round int, phase string) {
	if globalStoryteller == nil {
		return
	}
	teller := globalStoryteller
	st := store

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log := logger.WithFields(logrus.Fields{"session": sessionID, "round": round, "phase": phase})

		descriptions, err := st.Descriptions(ctx, sessionID)
		if err != nil {
			log.Warnf("Storyteller: fetch history: %v", err)
			return
		}

		// Empty description keeps the line hidden until text arrives
		storyID, err := st.AppendEvent(ctx, HistoryEvent{SessionID: sessionID, Round: round, Phase: phase, Kind: EventStory})
		if err != nil {
			logError("maybeGenerateStory: insert placeholder", err)
			return
		}

		var mu sync.Mutex
		var buf strings.Builder

		// Pushes partial text to the store and clients every 300ms
		done := make(chan struct{})
		flushed := make(chan struct{})
		go func() {
			defer close(flushed)
			ticker := time.NewTicker(300 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					text := strings.TrimSpace(buf.String())
					mu.Unlock()
					if text != "" {
						if err := st.UpdateEvent(ctx, storyID, text); err != nil {
							log.Warnf("Storyteller: partial update: %v", err)
							continue
						}
						broadcastGameUpdate()
					}
				case <-done:
					return
				}
			}
		}()

		_, err = teller.Tell(ctx, descriptions, func(chunk string) {
			mu.Lock()
			buf.WriteString(chunk)
			mu.Unlock()
		})
		close(done)
		<-flushed

		mu.Lock()
		finalText := strings.TrimSpace(buf.String())
		mu.Unlock()

		if err != nil || finalText == "" {
			if err != nil {
				log.Warnf("Storyteller: %v", err)
			}
			if delErr := st.DeleteEvent(context.Background(), storyID); delErr != nil {
				logError("maybeGenerateStory: delete placeholder", delErr)
			}
			broadcastGameUpdate()
			return
		}

		if err := st.UpdateEvent(context.Background(), storyID, finalText); err != nil {
			logError("maybeGenerateStory: final update", err)
			return
		}
		log.Info("Storyteller: story complete")
		broadcastGameUpdate()
	}()
}
