package chat

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

// DefaultUncensoredModelID is the model used by the unfiltered chat
// endpoint. It bypasses the selector entirely.
const DefaultUncensoredModelID = "cognitivecomputations/dolphin3.0-mistral-24b"

// Registry holds the known upstream models with secondary indices by
// task and provider. Every registered model serves the chat task; the
// remaining task indices derive from capabilities.
type Registry struct {
	mu         sync.RWMutex
	models     map[string]types.ModelConfig
	order      []string
	byTask     map[types.TaskType][]string
	byProvider map[types.ModelProvider][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:     make(map[string]types.ModelConfig),
		byTask:     make(map[types.TaskType][]string),
		byProvider: make(map[types.ModelProvider][]string),
	}
}

// DefaultRegistry returns a registry preloaded with the stock model set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	defaults := []types.ModelConfig{
		{
			ID:        "meta-llama/llama-3.3-70b-instruct",
			Name:      "Llama 3.3 70B",
			Provider:  types.ProviderOpenRouter,
			Supports:  types.ModelCapabilities{Streaming: true},
			MaxTokens: 8192,
			IsActive:  true,
		},
		{
			ID:        "openai/gpt-4o-mini",
			Name:      "GPT-4o Mini",
			Provider:  types.ProviderOpenRouter,
			Supports:  types.ModelCapabilities{Tools: true, Vision: true, Streaming: true},
			MaxTokens: 16384,
			IsActive:  true,
		},
		{
			ID:        "google/gemini-2.0-flash-001",
			Name:      "Gemini 2.0 Flash",
			Provider:  types.ProviderOpenRouter,
			Supports:  types.ModelCapabilities{Tools: true, Vision: true, Streaming: true},
			MaxTokens: 8192,
			IsActive:  true,
		},
		{
			ID:        DefaultUncensoredModelID,
			Name:      "Dolphin 3.0 Mistral 24B",
			Provider:  types.ProviderOpenRouter,
			Supports:  types.ModelCapabilities{Streaming: true},
			MaxTokens: 8192,
			IsActive:  true,
		},
		{
			ID:        "gemini-2.0-flash-exp-image-generation",
			Name:      "Gemini Image Generation",
			Provider:  types.ProviderGemini,
			Supports:  types.ModelCapabilities{ImageGeneration: true},
			MaxTokens: 8192,
			IsActive:  true,
		},
		{
			ID:        "gemini-2.5-flash-preview-tts",
			Name:      "Gemini Speech",
			Provider:  types.ProviderGemini,
			Supports:  types.ModelCapabilities{AudioProcessing: true},
			MaxTokens: 8192,
			IsActive:  true,
		},
		{
			ID:        "veo-2.0-generate-001",
			Name:      "Veo 2",
			Provider:  types.ProviderGemini,
			Supports:  types.ModelCapabilities{VideoGeneration: true},
			MaxTokens: 1024,
			IsActive:  true,
		},
	}
	for _, cfg := range defaults {
		// Stock entries are known valid.
		if err := r.Register(cfg); err != nil {
			panic(fmt.Sprintf("invalid default model %q: %v", cfg.ID, err))
		}
	}
	return r
}

// Register validates and inserts (or replaces) a model, then rebuilds
// the secondary indices. All validation failures are reported together.
func (r *Registry) Register(cfg types.ModelConfig) error {
	var result *multierror.Error
	if cfg.ID == "" {
		result = multierror.Append(result, fmt.Errorf("model id is required"))
	}
	if cfg.Name == "" {
		result = multierror.Append(result, fmt.Errorf("model name is required"))
	}
	if !lo.Contains(types.KnownProviders, cfg.Provider) {
		result = multierror.Append(result, fmt.Errorf("unknown provider %q", cfg.Provider))
	}
	if cfg.MaxTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("max tokens must be positive"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return types.WrapError(types.CodeValidation, "invalid model configuration", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.models[cfg.ID] = cfg
	r.rebuildIndices()
	return nil
}

// Get returns a model by id.
func (r *Registry) Get(id string) (types.ModelConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.models[id]
	return cfg, ok
}

// SetActive toggles a model's availability and rebuilds the indices.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.models[id]
	if !ok {
		return types.NewAppError(types.CodeModelNotFound, fmt.Sprintf("model %q is not registered", id), nil)
	}
	cfg.IsActive = active
	r.models[id] = cfg
	r.rebuildIndices()
	return nil
}

// ModelsForTask returns the active models serving a task, in
// registration order.
func (r *Registry) ModelsForTask(task types.TaskType) []types.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.byTask[task])
}

// ModelsForProvider returns the active models of one provider, in
// registration order.
func (r *Registry) ModelsForProvider(provider types.ModelProvider) []types.ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.byProvider[provider])
}

func (r *Registry) resolve(ids []string) []types.ModelConfig {
	out := make([]types.ModelConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.models[id])
	}
	return out
}

// rebuildIndices recomputes the task and provider indices from scratch.
// Caller holds the write lock.
func (r *Registry) rebuildIndices() {
	r.byTask = make(map[types.TaskType][]string)
	r.byProvider = make(map[types.ModelProvider][]string)

	for _, id := range r.order {
		cfg := r.models[id]
		if !cfg.IsActive {
			continue
		}
		r.byProvider[cfg.Provider] = append(r.byProvider[cfg.Provider], id)

		for _, task := range tasksFor(cfg) {
			r.byTask[task] = append(r.byTask[task], id)
		}
	}
}

func tasksFor(cfg types.ModelConfig) []types.TaskType {
	tasks := []types.TaskType{types.TaskChat}
	if cfg.Supports.ImageGeneration {
		tasks = append(tasks, types.TaskImage)
	}
	if cfg.Supports.AudioProcessing {
		tasks = append(tasks, types.TaskAudio)
	}
	if cfg.Supports.VideoGeneration {
		tasks = append(tasks, types.TaskVideo)
	}
	if cfg.Supports.Vision {
		tasks = append(tasks, types.TaskVision)
	}
	return tasks
}
