// Audit logging for benchmark builds. Audit events are JSON lines describing
// build lifecycle, tier transitions, collaborator calls, and store operations,
// written to a per-day file alongside the category logs. The audit trail is
// what you read to reconstruct how a benchmark was produced.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Build lifecycle events
	AuditBuildStart    AuditEventType = "build_start"
	AuditBuildComplete AuditEventType = "build_complete"
	AuditBuildAbort    AuditEventType = "build_abort"

	// Concept tier transitions
	AuditConceptScraped   AuditEventType = "concept_scraped"
	AuditConceptAssembled AuditEventType = "concept_assembled"
	AuditConceptBranched  AuditEventType = "concept_branched"
	AuditConceptMerged    AuditEventType = "concept_merged"
	AuditConceptFailed    AuditEventType = "concept_failed"
	AuditConceptCancelled AuditEventType = "concept_cancelled"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Embedding API events
	AuditEmbedRequest  AuditEventType = "embed_request"
	AuditEmbedResponse AuditEventType = "embed_response"
	AuditEmbedError    AuditEventType = "embed_error"

	// Store operations
	AuditStoreWrite  AuditEventType = "store_write"
	AuditStoreExport AuditEventType = "store_export"
	AuditStoreError  AuditEventType = "store_error"

	// Descriptor resolution events
	AuditDescriptorResolve AuditEventType = "descriptor_resolve"
	AuditDescriptorReload  AuditEventType = "descriptor_reload"
	AuditDescriptorError   AuditEventType = "descriptor_error"

	// Performance
	AuditPerfMetric AuditEventType = "perf_metric"
	AuditPerfSlow   AuditEventType = "perf_slow"

	// Error events
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// AuditEvent represents a structured audit log entry.
// One JSON object per line in the audit file.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`      // Unix milliseconds
	EventType  AuditEventType         `json:"event"`   // Event type
	Category   string                 `json:"cat"`     // Log category
	BuildID    string                 `json:"build"`   // Build correlation
	Concept    string                 `json:"concept"` // Concept if applicable
	Target     string                 `json:"target"`  // Target of operation
	Success    bool                   `json:"success"` // Operation succeeded
	DurationMs int64                  `json:"dur_ms"`  // Duration in milliseconds
	Error      string                 `json:"error"`   // Error message if failed
	Message    string                 `json:"msg"`     // Human-readable message
	Fields     map[string]interface{} `json:"fields"`  // Additional structured fields
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes structured audit events, optionally scoped to one build
type AuditLogger struct {
	buildID  string
	category Category
	concept  string
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# One JSON event per line\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithBuild creates an audit logger scoped to one build
func AuditWithBuild(buildID string) *AuditLogger {
	return &AuditLogger{buildID: buildID}
}

// AuditWithConcept creates an audit logger scoped to one concept within a build
func AuditWithConcept(buildID, concept string) *AuditLogger {
	return &AuditLogger{buildID: buildID, concept: concept}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.BuildID == "" && a.buildID != "" {
		event.BuildID = a.buildID
	}
	if event.Concept == "" && a.concept != "" {
		event.Concept = a.concept
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// BuildStart logs the start of a domain build
func (a *AuditLogger) BuildStart(buildID, domain string, conceptCount int) {
	a.Log(AuditEvent{
		EventType: AuditBuildStart,
		BuildID:   buildID,
		Target:    domain,
		Success:   true,
		Fields:    map[string]interface{}{"concepts": conceptCount},
		Message:   fmt.Sprintf("Build started: %s domain=%s (%d concepts)", buildID, domain, conceptCount),
	})
}

// BuildComplete logs the end of a domain build
func (a *AuditLogger) BuildComplete(buildID, domain string, rowCount int, durationMs int64, success bool) {
	eventType := AuditBuildComplete
	if !success {
		eventType = AuditBuildAbort
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		BuildID:    buildID,
		Target:     domain,
		Success:    success,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"rows": rowCount},
		Message:    fmt.Sprintf("Build %s: %s rows=%d (%dms, success=%v)", eventType, buildID, rowCount, durationMs, success),
	})
}

// TierTransition logs a concept moving from one tier to the next
func (a *AuditLogger) TierTransition(buildID, concept, from, to string) {
	a.Log(AuditEvent{
		EventType: AuditEventType("concept_" + to),
		BuildID:   buildID,
		Concept:   concept,
		Success:   true,
		Fields:    map[string]interface{}{"from": from, "to": to},
		Message:   fmt.Sprintf("Concept %s: %s -> %s", concept, from, to),
	})
}

// ConceptFailed logs a concept entering the failed tier
func (a *AuditLogger) ConceptFailed(buildID, concept string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditConceptFailed,
		BuildID:   buildID,
		Concept:   concept,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Concept failed: %s (%s)", concept, errMsg),
	})
}

// LLMCall logs an LLM API call
func (a *AuditLogger) LLMCall(model string, tokens int, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tokens": tokens},
		Message:    fmt.Sprintf("LLM call: %s -> %d tokens (%dms, success=%v)", model, tokens, durationMs, success),
	})
}

// EmbeddingCall logs an embedding API call
func (a *AuditLogger) EmbeddingCall(model string, batchSize int, durationMs int64, success bool, errMsg string) {
	eventType := AuditEmbedResponse
	if !success {
		eventType = AuditEmbedError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"batch": batchSize},
		Message:    fmt.Sprintf("Embedding call: %s batch=%d (%dms, success=%v)", model, batchSize, durationMs, success),
	})
}

// StoreWrite logs a benchmark persistence operation
func (a *AuditLogger) StoreWrite(buildID string, rows int, success bool, errMsg string) {
	eventType := AuditStoreWrite
	if !success {
		eventType = AuditStoreError
	}
	a.Log(AuditEvent{
		EventType: eventType,
		BuildID:   buildID,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"rows": rows},
		Message:   fmt.Sprintf("Store write: %s rows=%d (success=%v)", buildID, rows, success),
	})
}

// StoreExport logs a benchmark export operation
func (a *AuditLogger) StoreExport(buildID, path string, rows int, success bool, errMsg string) {
	eventType := AuditStoreExport
	if !success {
		eventType = AuditStoreError
	}
	a.Log(AuditEvent{
		EventType: eventType,
		BuildID:   buildID,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"rows": rows},
		Message:   fmt.Sprintf("Store export: %s -> %s rows=%d (success=%v)", buildID, path, rows, success),
	})
}

// DescriptorReload logs a descriptor file reload triggered by the watcher
func (a *AuditLogger) DescriptorReload(path string, setCount int, success bool, errMsg string) {
	eventType := AuditDescriptorReload
	if !success {
		eventType = AuditDescriptorError
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"sets": setCount},
		Message:   fmt.Sprintf("Descriptor reload: %s sets=%d (success=%v)", path, setCount, success),
	})
}

// DescriptorResolve logs a descriptor set resolution
func (a *AuditLogger) DescriptorResolve(stem, branch string, pairCount int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditDescriptorResolve,
		Target:     stem + "->" + branch,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"pairs": pairCount},
		Message:    fmt.Sprintf("Descriptors resolved: %s -> %s (%d pairs, %dms)", stem, branch, pairCount, durationMs),
	})
}

// PerfMetric logs a performance metric
func (a *AuditLogger) PerfMetric(operation string, durationMs int64, threshold int64) {
	eventType := AuditPerfMetric
	success := true
	if threshold > 0 && durationMs > threshold {
		eventType = AuditPerfSlow
		success = false
	}
	fields := map[string]interface{}{}
	if threshold > 0 {
		fields["threshold_ms"] = threshold
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     operation,
		DurationMs: durationMs,
		Success:    success,
		Fields:     fields,
		Message:    fmt.Sprintf("Perf: %s took %dms (threshold=%dms)", operation, durationMs, threshold),
	})
}

// Error logs an error event
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
