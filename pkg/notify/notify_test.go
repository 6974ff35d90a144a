package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeNotifiersFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write notifiers file: %v", err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writeNotifiersFile(t, "notifiers.yaml", `
notifiers:
  - id: ops-log
    type: LOG
  - id: ops-webhook
    type: http
    http:
      url: "  https://hooks.example/notify  "
      method: post
  - id: ops-queue
    type: sqs
    enabled: false
    sqs:
      uri: https://sqs.eu-west-1.amazonaws.com/123/alerts
      region: eu-west-1
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	if got := len(reg.All()); got != 3 {
		t.Fatalf("expected 3 notifiers, got %d", got)
	}

	hook, ok := reg.ByID("ops-webhook")
	if !ok {
		t.Fatalf("ops-webhook not found")
	}
	if hook.Type != TypeHTTP {
		t.Fatalf("type not normalized: %q", hook.Type)
	}
	if hook.HTTP.URL != "https://hooks.example/notify" {
		t.Fatalf("url not trimmed: %q", hook.HTTP.URL)
	}
	if hook.HTTP.Method != "POST" {
		t.Fatalf("method not upper-cased: %q", hook.HTTP.Method)
	}
	if hook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("timeout default not applied: %d", hook.HTTP.TimeoutSeconds)
	}

	enabled := reg.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled notifiers, got %d", len(enabled))
	}
	for _, cfg := range enabled {
		if cfg.ID == "ops-queue" {
			t.Fatalf("disabled notifier returned by Enabled")
		}
	}
}

func TestLoadRegistryRejectsDuplicateIDs(t *testing.T) {
	path := writeNotifiersFile(t, "notifiers.yaml", `
notifiers:
  - id: ops
    type: log
  - id: ops
    type: log
`)
	if _, err := LoadRegistry(path); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	cases := map[string]string{
		"missing id":       "notifiers:\n  - type: log\n",
		"missing type":     "notifiers:\n  - id: ops\n",
		"sqs without uri":  "notifiers:\n  - id: ops\n    type: sqs\n    sqs:\n      region: eu-west-1\n",
		"sns without arn":  "notifiers:\n  - id: ops\n    type: sns\n    sns:\n      region: eu-west-1\n",
		"http without url": "notifiers:\n  - id: ops\n    type: http\n    http:\n      method: POST\n",
		"pubsub no topic":  "notifiers:\n  - id: ops\n    type: pubsub\n    pubsub:\n      project_id: p1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeNotifiersFile(t, "notifiers.yaml", content)
			if _, err := LoadRegistry(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDefaultRegistryBuildsLogSink(t *testing.T) {
	reg := DefaultRegistry()
	n, err := reg.NotifierFor(context.Background(), NotifierConfig{ID: "ops", Type: TypeLog}, nil)
	if err != nil {
		t.Fatalf("NotifierFor: %v", err)
	}
	if n.ID() != "ops" || n.Type() != TypeLog {
		t.Fatalf("unexpected notifier: id=%s type=%s", n.ID(), n.Type())
	}
	if err := n.Notify(context.Background(), NewEvent(KindPublish)); err != nil {
		t.Fatalf("log sink should never fail: %v", err)
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	reg := DefaultRegistry()
	if _, err := reg.NotifierFor(context.Background(), NotifierConfig{ID: "x", Type: "smoke-signal"}, nil); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
