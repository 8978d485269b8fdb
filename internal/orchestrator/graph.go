package orchestrator

import (
	"encoding/json"
	"fmt"

	"vitaex/internal/event"
	id "vitaex/pkg/domain"
)

// ConsentRule is the purpose and minimum scope a stage requires. Stages
// without a rule (research imports carry no subject) are admitted directly.
type ConsentRule struct {
	Purpose id.ConsentPurpose
	Scope   id.Scope
}

// PayloadFunc builds a stage's request payload from the run. Nil means
// forward the trigger payload unchanged.
type PayloadFunc func(run *Run) (any, error)

// Stage is one node of a task graph. The graph is a static table resolved at
// startup; nothing is discovered or rewired at runtime.
type Stage struct {
	Name            string
	RequestTopic    string
	RequestType     string
	CompletionTopic string
	Consent         *ConsentRule
	Next            []string
	WaitFor         []string
	Gated           bool
	Payload         PayloadFunc
}

// Terminal reports whether the stage ends its path through the graph.
func (s Stage) Terminal() bool { return len(s.Next) == 0 }

// Graph is one declarative pipeline: a trigger topic admits entry stages,
// completion events advance through Stages.
type Graph struct {
	Name         string
	TriggerTopic string
	Entry        []string
	Stages       map[string]Stage
}

// StageByCompletion finds the stage owning a completion topic.
func (g Graph) StageByCompletion(topic string) (Stage, bool) {
	for _, s := range g.Stages {
		if s.CompletionTopic == topic {
			return s, true
		}
	}
	return Stage{}, false
}

// Validate checks referential integrity of the graph table at startup.
func (g Graph) Validate() error {
	for _, entry := range g.Entry {
		if _, ok := g.Stages[entry]; !ok {
			return fmt.Errorf("graph %s: entry stage %q not defined", g.Name, entry)
		}
	}
	for name, stage := range g.Stages {
		if stage.Name != name {
			return fmt.Errorf("graph %s: stage %q keyed as %q", g.Name, stage.Name, name)
		}
		if stage.RequestTopic == "" || stage.CompletionTopic == "" {
			return fmt.Errorf("graph %s: stage %q missing topics", g.Name, name)
		}
		for _, next := range stage.Next {
			if _, ok := g.Stages[next]; !ok {
				return fmt.Errorf("graph %s: stage %q references unknown next %q", g.Name, name, next)
			}
		}
		for _, wait := range stage.WaitFor {
			if _, ok := g.Stages[wait]; !ok {
				return fmt.Errorf("graph %s: stage %q waits for unknown stage %q", g.Name, name, wait)
			}
		}
	}
	return nil
}

// triggerHints are the optional steering fields a trigger payload may carry
// alongside its primary content. Downstream payload builders read them.
type triggerHints struct {
	Goal     string          `json:"goal"`
	Focus    []string        `json:"focus"`
	Scenario json.RawMessage `json:"scenario"`
}

func hintsOf(run *Run) triggerHints {
	var hints triggerHints
	if len(run.Trigger) > 0 {
		// Best effort; a trigger without hints yields defaults.
		_ = json.Unmarshal(run.Trigger, &hints)
	}
	if hints.Goal == "" {
		hints.Goal = "Maintain overall vitality"
	}
	if len(hints.Focus) == 0 {
		hints.Focus = []string{"sleep", "recovery"}
	}
	return hints
}

func scenarioPayload(run *Run) (any, error) {
	hints := hintsOf(run)
	if len(hints.Scenario) > 0 {
		return hints.Scenario, nil
	}
	if len(run.Trigger) > 0 {
		// Standalone simulation runs: the trigger is the scenario.
		return run.Trigger, nil
	}
	// No scenario anywhere: project the unchanged baseline.
	return map[string]any{}, nil
}

func goalFocusPayload(run *Run) (any, error) {
	hints := hintsOf(run)
	return map[string]any{"goal": hints.Goal, "focus": hints.Focus}, nil
}

func emptyPayload(*Run) (any, error) {
	return map[string]any{}, nil
}

// DefaultGraphs is the static graph table of the deployment.
//
// wellness_pipeline: ingestion.raw → standardize → twin_update →
// {simulate, protocol_generate} fan-out → recommend fan-in.
// simulation and protocol also run standalone for their HTTP triggers, and
// knowledge_import runs ungated because research references carry no subject.
func DefaultGraphs() map[string]Graph {
	scopeWearables := id.NewScope(id.CategoryWearables)
	scopeSimulations := id.NewScope(id.CategorySimulations)
	scopeProtocols := id.NewScope(id.CategoryProtocols)
	scopeRecommendations := id.NewScope(id.CategoryRecommendations)

	graphs := map[string]Graph{
		"wellness_pipeline": {
			Name:         "wellness_pipeline",
			TriggerTopic: event.TopicIngestionRaw,
			Entry:        []string{"standardize"},
			Stages: map[string]Stage{
				"standardize": {
					Name:            "standardize",
					RequestTopic:    event.TopicStandardizeRequested,
					RequestType:     "ingestion.standardize",
					CompletionTopic: event.TopicIngestionStandardized,
					Consent:         &ConsentRule{Purpose: id.PurposeDataProcessing, Scope: scopeWearables},
					Next:            []string{"twin_update"},
				},
				"twin_update": {
					Name:            "twin_update",
					RequestTopic:    event.TopicTwinUpdateRequested,
					RequestType:     "twin.update",
					CompletionTopic: event.TopicTwinUpdateCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposeDataProcessing, Scope: scopeWearables},
					Next:            []string{"simulate", "protocol_generate"},
					Payload:         emptyPayload,
				},
				"simulate": {
					Name:            "simulate",
					RequestTopic:    event.TopicSimulationRequested,
					RequestType:     "simulation.request",
					CompletionTopic: event.TopicSimulationCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposePersonalization, Scope: scopeSimulations},
					Next:            []string{"recommend"},
					Gated:           true,
					Payload:         scenarioPayload,
				},
				"protocol_generate": {
					Name:            "protocol_generate",
					RequestTopic:    event.TopicProtocolGenerateRequested,
					RequestType:     "protocol.generate",
					CompletionTopic: event.TopicProtocolGenerateCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposePersonalization, Scope: scopeProtocols},
					Next:            []string{"recommend"},
					Gated:           true,
					Payload:         goalFocusPayload,
				},
				"recommend": {
					Name:            "recommend",
					RequestTopic:    event.TopicRecommendationRequested,
					RequestType:     "recommendation.request",
					CompletionTopic: event.TopicRecommendationCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposePersonalization, Scope: scopeRecommendations},
					WaitFor:         []string{"simulate", "protocol_generate"},
					Payload:         goalFocusPayload,
				},
			},
		},
		"knowledge_import": {
			Name:  "knowledge_import",
			Entry: []string{"import"},
			Stages: map[string]Stage{
				"import": {
					Name:            "import",
					RequestTopic:    event.TopicKnowledgeImportRequested,
					RequestType:     "knowledge.import",
					CompletionTopic: event.TopicKnowledgeImportCompleted,
				},
			},
		},
		"simulation": {
			Name:  "simulation",
			Entry: []string{"simulate"},
			Stages: map[string]Stage{
				"simulate": {
					Name:            "simulate",
					RequestTopic:    event.TopicSimulationRequested,
					RequestType:     "simulation.request",
					CompletionTopic: event.TopicSimulationCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposePersonalization, Scope: scopeSimulations},
					Gated:           true,
					Payload:         scenarioPayload,
				},
			},
		},
		"protocol": {
			Name:  "protocol",
			Entry: []string{"protocol_generate"},
			Stages: map[string]Stage{
				"protocol_generate": {
					Name:            "protocol_generate",
					RequestTopic:    event.TopicProtocolGenerateRequested,
					RequestType:     "protocol.generate",
					CompletionTopic: event.TopicProtocolGenerateCompleted,
					Consent:         &ConsentRule{Purpose: id.PurposePersonalization, Scope: scopeProtocols},
					Gated:           true,
					Payload:         goalFocusPayload,
				},
			},
		},
	}
	return graphs
}
