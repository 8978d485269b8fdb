package event

// Topic catalogue. Request topics are written only by the orchestrator after a
// consent check; completion topics are written only by the owning agent;
// ingestion.raw is the external trigger surface. Topics are created externally
// or via IaC, never at runtime.
const (
	// External trigger: raw wearable/lab signals before any gating.
	TopicIngestionRaw = "ingestion.raw"

	// Standardization stage.
	TopicStandardizeRequested  = "ingestion.standardize.requested"
	TopicIngestionStandardized = "ingestion.standardized"

	// Research import stage.
	TopicKnowledgeImportRequested = "knowledge.import.requested"
	TopicKnowledgeImportCompleted = "knowledge.import.completed"
	TopicGraphUpdated             = "graph.updated"

	// Digital twin stage.
	TopicTwinUpdateRequested = "twin.update.requested"
	TopicTwinUpdateCompleted = "twin.update.completed"

	// Vitality what-if simulation stage.
	TopicSimulationRequested = "simulation.vitality.requested"
	TopicSimulationCompleted = "simulation.vitality.completed"

	// Protocol generation stage.
	TopicProtocolGenerateRequested = "protocol.generate.requested"
	TopicProtocolGenerateCompleted = "protocol.generate.completed"

	// Practitioner review flow.
	TopicProtocolReviewRequested = "protocol.review.requested"
	TopicProtocolReviewUpdated   = "protocol.review.updated"

	// Product recommendation stage.
	TopicRecommendationRequested = "recommendation.requested"
	TopicRecommendationCompleted = "recommendation.completed"

	// Compliance gate rejections.
	TopicComplianceAlert = "compliance.alert"

	// Mirrored audit entries for downstream sinks.
	TopicAuditEvents = "audit.events"
)

// TypeProtocolReviewDecided marks a genuine practitioner decision on
// protocol.review.updated. Other event types on that topic (an oversight
// agent failure completion, for instance) must never release a blocked run.
const TypeProtocolReviewDecided = "protocol.review.decided"
