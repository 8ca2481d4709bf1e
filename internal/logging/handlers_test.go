package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestTeeCollapses(t *testing.T) {
	if _, ok := tee(nil, nil).(discardHandler); !ok {
		t.Fatal("expected discard handler when every destination is nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := tee(nil, inner); h != slog.Handler(inner) {
		t.Fatal("single destination should be returned as is")
	}
}

func TestTeeRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoH := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugH := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(tee(infoH, debugH)).With(String(FieldJobID, "job-1"))
	logger.Debug("probe details")
	logger.Info("download finished")

	if strings.Contains(infoBuf.String(), "probe details") {
		t.Fatalf("info destination received debug record: %s", infoBuf.String())
	}
	for _, want := range []string{"probe details", "download finished", `"job_id":"job-1"`} {
		if !strings.Contains(debugBuf.String(), want) {
			t.Fatalf("debug destination missing %q: %s", want, debugBuf.String())
		}
	}
	if !strings.Contains(infoBuf.String(), `"job_id":"job-1"`) {
		t.Fatalf("attrs not propagated: %s", infoBuf.String())
	}
}

func TestRedactMasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(redact(slog.NewJSONHandler(&buf, nil))).With(String("tts_api_key", "sk-live-123"))

	logger.Info("calling Bearer sk-abc.def",
		String("api_key", "sk-other"),
		slog.Group("request", String("authorization", "Bearer xyz"), String("model", "gpt-4o-mini")),
		Error(errors.New(`401: header "Authorization: Bearer sk-leaked" rejected`)),
		String("voice", "alloy"),
	)

	out := buf.String()
	for _, secret := range []string{"sk-live-123", "sk-other", "xyz", "sk-abc.def", "sk-leaked"} {
		if strings.Contains(out, secret) {
			t.Fatalf("secret %q leaked: %s", secret, out)
		}
	}
	for _, want := range []string{`"voice":"alloy"`, `"model":"gpt-4o-mini"`, `"tts_api_key":"[redacted]"`, "Bearer [redacted]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestSecretKey(t *testing.T) {
	cases := map[string]bool{
		"api_key":       true,
		"Authorization": true,
		"ntfy_token":    true,
		"llm_api_key":   true,
		"tokens":        false,
		"keyframes":     false,
		"job_id":        false,
	}
	for key, want := range cases {
		if got := secretKey(key); got != want {
			t.Errorf("secretKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestOverrideLevelRaisesStageFloor(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := OverrideLevel(base.With(String(FieldStage, "Synthesizing")), "Synthesizing", map[string]string{"synthesizing": "warn"})
	quiet.Info("clip written")
	quiet.Warn("clip slow")

	loud := OverrideLevel(base.With(String(FieldStage, "Acquiring")), "Acquiring", map[string]string{"synthesizing": "warn"})
	loud.Debug("probe args")

	out := buf.String()
	if strings.Contains(out, "clip written") {
		t.Fatalf("override did not suppress info: %s", out)
	}
	if !strings.Contains(out, "clip slow") || !strings.Contains(out, "probe args") {
		t.Fatalf("expected warn and debug records: %s", out)
	}
	if !strings.Contains(out, `"stage":"Acquiring"`) {
		t.Fatalf("stage attr missing: %s", out)
	}
	if !quiet.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error level should stay enabled")
	}
}
