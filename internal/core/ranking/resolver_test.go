package ranking

import (
	"testing"

	"github.com/kirillkom/kb-source-router/internal/core/domain"
)

func TestResolve(t *testing.T) {
	priorities := domain.PriorityMap{
		"Templates":  0.9,
		"Reports":    0.7,
		"Guidelines": 0.85,
	}
	r := Resolver{DefaultPriority: DefaultPriority}

	tests := []struct {
		name         string
		raw          string
		wantName     string
		wantPriority float64
	}{
		{name: "exact", raw: "Reports", wantName: "Reports", wantPriority: 0.7},
		{name: "path prefix", raw: "Templates/status.md", wantName: "Templates", wantPriority: 0.9},
		{name: "case insensitive", raw: "reports/q3.md", wantName: "Reports", wantPriority: 0.7},
		{name: "s3 uri", raw: "s3://kb-bucket/guidelines/writing.pdf", wantName: "Guidelines", wantPriority: 0.85},
		{name: "windows path", raw: `C:\docs\templates\weekly.docx`, wantName: "Templates", wantPriority: 0.9},
		{name: "unknown file", raw: "random_doc.pdf", wantName: "Random_Doc", wantPriority: 0.3},
		{name: "unknown nested", raw: "archive/2024/meeting-notes.txt", wantName: "Meeting-Notes", wantPriority: 0.3},
		{name: "empty", raw: "", wantName: "Unknown", wantPriority: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, priority := r.Resolve(tt.raw, priorities)
			if name != tt.wantName || priority != tt.wantPriority {
				t.Fatalf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.raw, name, priority, tt.wantName, tt.wantPriority)
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	priorities := domain.PriorityMap{"Policies": 0.8, "Pol": 0.1}
	r := Resolver{DefaultPriority: DefaultPriority}

	name1, p1 := r.Resolve("hr/policies/leave.md", priorities)
	name2, p2 := r.Resolve("hr/policies/leave.md", priorities)
	if name1 != name2 || p1 != p2 {
		t.Fatalf("expected identical results, got (%s,%v) and (%s,%v)", name1, p1, name2, p2)
	}
	if name1 != "Policies" {
		t.Fatalf("expected longest key to win, got %s", name1)
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("random_doc"); got != "Random_Doc" {
		t.Fatalf("titleCase() = %q", got)
	}
	if got := titleCase("q3 SUMMARY"); got != "Q3 Summary" {
		t.Fatalf("titleCase() = %q", got)
	}
}
