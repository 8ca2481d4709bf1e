package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"narrator/internal/deps"
	"narrator/internal/queue"
	"narrator/internal/stage"
)

func TestFromRecord(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &queue.Job{
		ID:          "job-1",
		Source:      "https://example.com/v",
		Style:       "nature",
		Language:    "en",
		Status:      queue.StatusFailed,
		State:       "failed",
		FailedStage: "synthesizing",
		ErrorKind:   "SynthesisServiceError",
		Truncated:   []int{2},
		Duration:    1500 * time.Millisecond,
		Stages: []queue.StageRecord{
			{Stage: "acquiring", Status: "succeeded", Attempts: 1, StartedAt: created, DurationMS: 900, Notes: []string{"browser session provisioned cookies"}},
		},
		CreatedAt: created,
	}
	dto := FromRecord(rec)
	if dto.DurationMS != 1500 || dto.CreatedAt != "2026-03-01T12:00:00.000Z" || dto.UpdatedAt != "" {
		t.Fatalf("dto = %+v", dto)
	}
	if len(dto.Stages) != 1 || dto.Stages[0].Notes[0] != "browser session provisioned cookies" {
		t.Fatalf("stages = %+v", dto.Stages)
	}

	raw, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"failedStage":"synthesizing"`, `"truncatedSegments":[2]`, `"errorKind":"SynthesisServiceError"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("payload %s missing %s", raw, key)
		}
	}
	if strings.Contains(string(raw), "outputPath") {
		t.Fatalf("empty output path should be omitted: %s", raw)
	}
	if empty := FromRecord(nil); empty.ID != "" || empty.Stages != nil {
		t.Fatal("nil record should convert to zero value")
	}
}

func TestFromHealthAndDependencies(t *testing.T) {
	health := FromHealth([]stage.Health{stage.Healthy("acquiring"), stage.Unhealthy("scripting", "llm api key not configured")})
	if len(health) != 2 || health[1].Ready || health[1].Detail == "" {
		t.Fatalf("health = %+v", health)
	}
	depStatus := FromDependencies([]deps.Status{{Name: "ffmpeg", Available: true, Version: "ffmpeg version 7.1"}})
	if len(depStatus) != 1 || depStatus[0].Version != "ffmpeg version 7.1" {
		t.Fatalf("deps = %+v", depStatus)
	}
}
