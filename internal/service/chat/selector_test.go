package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

func selectorWith(models ...types.ModelConfig) *Selector {
	r := NewRegistry()
	for _, m := range models {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return NewSelector(r)
}

func TestSelector_RoutesByFamily(t *testing.T) {
	s := selectorWith(
		testModel("plain", types.ModelCapabilities{}),
		testModel("tooled", types.ModelCapabilities{Tools: true}),
	)

	simple, err := s.SelectModel(types.ModelSimple, types.TaskChat, false)
	require.NoError(t, err)
	require.Equal(t, "plain", simple.ID)

	withTools, err := s.SelectModel(types.ModelWithTools, types.TaskChat, false)
	require.NoError(t, err)
	require.Equal(t, "tooled", withTools.ID)

	memModel, err := s.SelectModel(types.ModelMemory, types.TaskChat, false)
	require.NoError(t, err)
	require.Equal(t, "tooled", memModel.ID)

	// An unknown family passes all candidates through.
	anyModel, err := s.SelectModel("experimental", types.TaskChat, false)
	require.NoError(t, err)
	require.Equal(t, "plain", anyModel.ID)
}

func TestSelector_Deterministic(t *testing.T) {
	s := selectorWith(
		testModel("a", types.ModelCapabilities{Tools: true}),
		testModel("b", types.ModelCapabilities{Tools: true}),
	)

	for i := 0; i < 20; i++ {
		m, err := s.SelectModel(types.ModelWithTools, types.TaskChat, false)
		require.NoError(t, err)
		require.Equal(t, "a", m.ID, "selection must be stable across calls")
	}
}

func TestSelector_FallsBackWhenFamilyUnmatched(t *testing.T) {
	// Only a tool-less model is registered; a tools request still
	// resolves rather than failing.
	s := selectorWith(testModel("plain", types.ModelCapabilities{}))

	m, err := s.SelectModel(types.ModelWithTools, types.TaskChat, false)
	require.NoError(t, err)
	require.Equal(t, "plain", m.ID)
}

func TestSelector_MemoryFallbackPrefersTools(t *testing.T) {
	// Simple filtering empties the set (every model is tool-capable);
	// with the memory flag the tool-capable candidate wins outright.
	s := selectorWith(
		testModel("tooled-a", types.ModelCapabilities{Tools: true}),
		testModel("tooled-b", types.ModelCapabilities{Tools: true}),
	)

	m, err := s.SelectModel(types.ModelSimple, types.TaskChat, true)
	require.NoError(t, err)
	require.Equal(t, "tooled-a", m.ID)
}

func TestSelector_NoModelForTask(t *testing.T) {
	s := selectorWith(testModel("plain", types.ModelCapabilities{}))

	_, err := s.SelectModel(types.ModelSimple, types.TaskVideo, false)
	appErr, ok := types.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, types.CodeModelNotFound, appErr.Code)
}

func TestSelector_TaskCapabilityFallback(t *testing.T) {
	// The tools filter empties the image candidate set; the fallback
	// prefers the model carrying the task's defining capability.
	s := selectorWith(
		testModel("plain", types.ModelCapabilities{}),
		testModel("imager", types.ModelCapabilities{ImageGeneration: true}),
	)

	m, err := s.SelectModel(types.ModelWithTools, types.TaskImage, false)
	require.NoError(t, err)
	require.Equal(t, "imager", m.ID)
}

// SupportsTools answers from the requested family and memory flag alone;
// a fallback to a model without tool support does not change the answer.
func TestSelector_SupportsToolsIgnoresFallback(t *testing.T) {
	s := selectorWith(testModel("plain", types.ModelCapabilities{}))

	selected, err := s.SelectModel(types.ModelWithTools, types.TaskChat, false)
	require.NoError(t, err)
	require.False(t, selected.Supports.Tools, "fallback model lacks tool support")

	require.True(t, s.SupportsTools(types.ModelWithTools, false))
	require.True(t, s.SupportsTools(types.ModelMemory, false))
	require.True(t, s.SupportsTools(types.ModelSimple, true))
	require.False(t, s.SupportsTools(types.ModelSimple, false))
	require.False(t, s.SupportsTools("", false))
}
