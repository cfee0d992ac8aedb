package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestSystemService_HealthReport(t *testing.T) {
	started := time.Date(2026, 5, 6, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		Health: stubHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"storage":   {Status: domain.HealthStatusDegraded},
			},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "dev", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService error: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport error: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %q", report.Status)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "dev" {
		t.Fatalf("expected build info stamped, got %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected uptime 90m, got %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated at %v, got %v", now, report.GeneratedAt)
	}
}

func TestSystemService_HealthReport_PropagatesErrors(t *testing.T) {
	boom := errors.New("probe setup failed")
	svc, err := NewSystemService(SystemServiceDeps{Health: stubHealthRepository{err: boom}})
	if err != nil {
		t.Fatalf("NewSystemService error: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without health repository")
	}
}

func TestWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{name: "no checks", want: domain.HealthStatusOK},
		{name: "error beats degraded", checks: map[string]domain.SystemHealthCheck{
			"catalogTopic": {Status: domain.HealthStatusDegraded},
			"mediaBucket":  {Status: domain.HealthStatusError},
		}, want: domain.HealthStatusError},
		{name: "unknown status degrades", checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: "warming"},
		}, want: domain.HealthStatusDegraded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := worstStatus(tc.checks); got != tc.want {
				t.Fatalf("worstStatus = %q, want %q", got, tc.want)
			}
		})
	}
}
