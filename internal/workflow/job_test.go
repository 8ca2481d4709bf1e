package workflow_test

import (
	"errors"
	"testing"

	"narrator/internal/commentary"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/workflow"
)

func TestNewJobDefaults(t *testing.T) {
	job, err := workflow.NewJob(workflow.Request{Source: "https://x.com/user/status/1"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.ID == "" {
		t.Fatal("job id should be assigned")
	}
	if job.Options.Style != commentary.DefaultStyle || job.Options.Language != commentary.DefaultLanguage {
		t.Fatalf("options = %+v", job.Options)
	}
	state, status := job.State()
	if state != workflow.StateCreated || status != queue.StatusPending {
		t.Fatalf("state = %s/%s", state, status)
	}
}

func TestNewJobCarriesProviderAndModel(t *testing.T) {
	job, err := workflow.NewJob(workflow.Request{Source: "https://example.com/v", Language: "ur-PK", Provider: " OpenAI ", Model: "gpt-4o "})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.Options.Provider != commentary.OpenAI || job.Options.Model != "gpt-4o" || job.Options.Language != commentary.Urdu {
		t.Fatalf("options = %+v", job.Options)
	}
}

func TestNewJobRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  workflow.Request
		kind services.Kind
	}{
		{"empty source", workflow.Request{}, services.KindInvalidSource},
		{"unknown scheme", workflow.Request{Source: "ftp://example.com/a.mp4"}, services.KindInvalidSource},
		{"unknown style", workflow.Request{Source: "https://example.com/v", Style: "operatic"}, services.KindNone},
		{"unknown language", workflow.Request{Source: "https://example.com/v", Language: "fr"}, services.KindNone},
		{"unknown provider", workflow.Request{Source: "https://example.com/v", Provider: "mistral"}, services.KindNone},
		{"urdu on deepseek", workflow.Request{Source: "https://example.com/v", Language: "ur", Provider: "deepseek"}, services.KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.NewJob(tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q", got, tt.kind)
			}
			if tt.kind == services.KindNone && !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	if !workflow.CanTransition(workflow.StateCreated, workflow.StateAcquiring) {
		t.Fatal("created -> acquiring should be allowed")
	}
	if workflow.CanTransition(workflow.StateCreated, workflow.StateScripting) {
		t.Fatal("skipping stages should be rejected")
	}
	if !workflow.CanTransition(workflow.StateAnalyzing, workflow.StateCancelled) {
		t.Fatal("any live state may be cancelled")
	}
	for _, terminal := range []workflow.State{workflow.StateDone, workflow.StateFailed, workflow.StateCancelled} {
		if workflow.CanTransition(terminal, workflow.StateFailed) {
			t.Fatalf("%s should be terminal", terminal)
		}
		if terminal.Next() != terminal {
			t.Fatalf("%s.Next() = %s", terminal, terminal.Next())
		}
	}
	if workflow.StateCompositing.Next() != workflow.StateDone {
		t.Fatal("compositing should lead to done")
	}
	if _, ok := workflow.StateForStage("publishing"); ok {
		t.Fatal("unknown stage should have no state")
	}
}
