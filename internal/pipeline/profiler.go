package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sre-agent/qos-advisor/internal/llm/adapter"
	"github.com/sre-agent/qos-advisor/internal/llm/types"
)

// TaskProfiler maps the user's free-text workload description onto one or
// more QoS profiles from the catalog. Allocation path only.
type TaskProfiler struct {
	llm *adapter.Adapter
	log *zap.Logger
}

// NewTaskProfiler creates the stage.
func NewTaskProfiler(llm *adapter.Adapter, log *zap.Logger) *TaskProfiler {
	return &TaskProfiler{llm: llm, log: log}
}

const profilerSystemPrompt = `You map a workload description onto Quality-of-Service profiles.

Reply with a single JSON object:
{"selected_profiles": ["<profile name>", ...], "reasoning": "<one sentence>"}

Pick every profile that fits; a workload may match more than one. Use only
the exact profile names from the catalog.`

// Run executes the stage. On LLM failure the target set stays empty, so the
// evaluator falls back to scoring every profile.
func (tp *TaskProfiler) Run(ctx context.Context, st *State) error {
	var catalog strings.Builder
	for _, name := range st.KB.ProfileNames() {
		fmt.Fprintf(&catalog, "- %s: %s\n", name, st.KB.Profiles[name].Description)
	}

	prompt := fmt.Sprintf("Profile catalog:\n%s\nWorkload: %s", catalog.String(), st.LastUserMessage())

	var out types.TaskProfileIntent
	err := tp.llm.GenerateJSON(ctx, "profile", []types.Message{
		{Role: types.RoleSystem, Content: profilerSystemPrompt},
		{Role: types.RoleUser, Content: prompt},
	}, &out)
	if err != nil {
		tp.log.Warn("task profiling failed, evaluating all profiles",
			zap.String("request_id", st.RequestID), zap.Error(err))
		st.TargetProfiles = nil
		return nil
	}

	// Keep only names that exist in the catalog.
	var selected []string
	for _, name := range out.SelectedProfiles {
		if _, ok := st.KB.Profiles[name]; ok {
			selected = append(selected, name)
		} else {
			tp.log.Warn("profiler proposed unknown profile, dropping",
				zap.String("request_id", st.RequestID), zap.String("profile", name))
		}
	}
	st.TargetProfiles = selected
	st.ProfileReasoning = out.Reasoning

	tp.log.Info("workload profiled",
		zap.String("request_id", st.RequestID),
		zap.Strings("target_profiles", selected))

	return nil
}
