package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	rules := loadRules(t, "askdb_recording_rules.yaml")

	exported := []string{
		"askdb_requests_total",
		"askdb_stage_duration_seconds_bucket",
		"askdb_model_retries_total",
		"askdb_audit_flush_failures_total",
		"askdb_http_requests_total",
	}
	records := map[string]bool{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Record == "" {
				t.Fatalf("group %q has a rule without record", group.Name)
			}
			records[rule.Record] = true
			referenced := false
			for _, metric := range exported {
				if strings.Contains(rule.Expr, metric) {
					referenced = true
					break
				}
			}
			if !referenced {
				t.Fatalf("record %q does not use an exported metric: %s", rule.Record, rule.Expr)
			}
		}
	}
	for _, name := range []string{
		"askdb:slo_failure_rate_5m",
		"askdb:slo_rejection_rate_15m",
		"askdb:slo_stage_latency_seconds_p95",
		"askdb:slo_audit_flush_failures_1h",
		"askdb:slo_http_error_rate_5m",
	} {
		if !records[name] {
			t.Fatalf("recording rules missing %q", name)
		}
	}
}

func TestAlertsUseRecordedSeriesAndSeverity(t *testing.T) {
	recorded := map[string]bool{}
	for _, group := range loadRules(t, "askdb_recording_rules.yaml").Groups {
		for _, rule := range group.Rules {
			recorded[rule.Record] = true
		}
	}

	alerts := 0
	for _, group := range loadRules(t, "askdb_rules.yaml").Groups {
		for _, rule := range group.Rules {
			alerts++
			if rule.Alert == "" {
				t.Fatalf("group %q has a rule without alert name", group.Name)
			}
			severity := rule.Labels["severity"]
			if severity != "warning" && severity != "critical" {
				t.Fatalf("alert %q severity = %q", rule.Alert, severity)
			}
			series := strings.Fields(rule.Expr)[0]
			if i := strings.Index(series, "{"); i >= 0 {
				series = series[:i]
			}
			if !recorded[series] {
				t.Fatalf("alert %q uses unrecorded series %q", rule.Alert, series)
			}
		}
	}
	if alerts == 0 {
		t.Fatal("no alerts defined")
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml"))
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"askdb_rules.yaml",
		"askdb_recording_rules.yaml",
		"job_name: askdb",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func TestComposeStackProvidesDatabaseAndObjectStore(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "docker-compose.yaml"))
	if err != nil {
		t.Fatalf("read compose file: %v", err)
	}
	var compose struct {
		Services map[string]struct {
			Environment map[string]string `yaml:"environment"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(content, &compose); err != nil {
		t.Fatalf("compose YAML parse error: %v", err)
	}
	for _, name := range []string{"postgres", "minio", "askdb"} {
		if _, ok := compose.Services[name]; !ok {
			t.Fatalf("compose missing service %q", name)
		}
	}
	env := compose.Services["askdb"].Environment
	for _, key := range []string{"ASKDB_DATABASE_URL", "ASKDB_AUDIT_BUCKET", "ASKDB_AUDIT_ENDPOINT"} {
		if env[key] == "" {
			t.Fatalf("askdb service missing %s", key)
		}
	}
}

func loadRules(t *testing.T, name string) ruleFile {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("%s parse error: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no groups", name)
	}
	return rules
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
