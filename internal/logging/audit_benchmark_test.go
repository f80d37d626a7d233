package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func BenchmarkAuditLog(b *testing.B) {
	tempDir := b.TempDir()

	configDir := filepath.Join(tempDir, ".saged")
	os.MkdirAll(configDir, 0755)
	os.WriteFile(filepath.Join(configDir, "config.json"),
		[]byte(`{"logging": {"level": "debug", "debug_mode": true}}`), 0644)

	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
	auditLogger = nil

	if err := Initialize(tempDir); err != nil {
		b.Fatalf("Failed to initialize: %v", err)
	}
	if err := InitAudit(); err != nil {
		b.Fatalf("Failed to initialize audit: %v", err)
	}
	defer CloseAudit()
	defer CloseAll()

	audit := AuditWithBuild("bench-build")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		audit.TierTransition("bench-build", "concept", "assembled", "branched")
	}
}
