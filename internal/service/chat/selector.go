package chat

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

// Selector picks an upstream model for a request. Selection is
// deterministic: given the same registry contents and the same request
// parameters, it always returns the same model.
type Selector struct {
	registry *Registry
}

// NewSelector creates a selector over the registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// SelectModel resolves the model for a task and requested model family.
// Candidates come from the task index in registration order; the family
// then filters them: simple excludes tool-capable models, with_tools and
// memory require tool support, anything else passes all candidates. An
// emptied set falls back to the model matching the task's defining
// capability, then to any tool-capable model when memory was requested,
// then to the first active candidate.
func (s *Selector) SelectModel(modelType types.ModelType, taskType types.TaskType, useMemory bool) (types.ModelConfig, error) {
	if taskType == "" {
		taskType = types.TaskChat
	}

	candidates := s.registry.ModelsForTask(taskType)
	if len(candidates) == 0 {
		return types.ModelConfig{}, types.NewAppError(types.CodeModelNotFound,
			fmt.Sprintf("no active model available for task %q", taskType), nil)
	}

	filtered := candidates
	switch modelType {
	case types.ModelSimple:
		filtered = lo.Filter(candidates, func(cfg types.ModelConfig, _ int) bool {
			return !cfg.Supports.Tools
		})
	case types.ModelWithTools, types.ModelMemory:
		filtered = lo.Filter(candidates, func(cfg types.ModelConfig, _ int) bool {
			return cfg.Supports.Tools
		})
	}
	if len(filtered) > 0 {
		return filtered[0], nil
	}

	if cfg, ok := s.taskCapabilityFallback(candidates, taskType); ok {
		return cfg, nil
	}
	if useMemory {
		if cfg, ok := lo.Find(candidates, func(cfg types.ModelConfig) bool {
			return cfg.Supports.Tools
		}); ok {
			return cfg, nil
		}
	}
	return candidates[0], nil
}

// taskCapabilityFallback prefers the candidate carrying the capability
// that defines the task.
func (s *Selector) taskCapabilityFallback(candidates []types.ModelConfig, taskType types.TaskType) (types.ModelConfig, bool) {
	var match func(types.ModelCapabilities) bool
	switch taskType {
	case types.TaskImage:
		match = func(c types.ModelCapabilities) bool { return c.ImageGeneration }
	case types.TaskAudio:
		match = func(c types.ModelCapabilities) bool { return c.AudioProcessing }
	case types.TaskVideo:
		match = func(c types.ModelCapabilities) bool { return c.VideoGeneration }
	case types.TaskVision:
		match = func(c types.ModelCapabilities) bool { return c.Vision }
	default:
		return types.ModelConfig{}, false
	}
	return lo.Find(candidates, func(cfg types.ModelConfig) bool {
		return match(cfg.Supports)
	})
}

// SupportsTools reports whether tool schemas should be attached for the
// request. This is a policy on the REQUESTED family and memory flag, not
// on the model actually selected: a fallback selection does not change
// the answer.
func (s *Selector) SupportsTools(modelType types.ModelType, useMemory bool) bool {
	return modelType == types.ModelWithTools || modelType == types.ModelMemory || useMemory
}
