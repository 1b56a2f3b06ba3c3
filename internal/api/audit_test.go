package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/nerrad567/robolink-gateway/internal/audit"
	"github.com/nerrad567/robolink-gateway/internal/auth"
	"github.com/nerrad567/robolink-gateway/internal/gateway"
)

func listAudit(t *testing.T, env *testEnv, filter audit.Filter) []audit.Entry {
	t.Helper()
	res, err := env.audit.List(context.Background(), filter)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return res.Entries
}

func TestAudit_RecordsAPICommands(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Security.JWT.Secret = testSecret })
	env.registry.SetDevice("R1", addrA, &fakeHandle{id: "s1"})
	header := bearer(t, auth.ScopeCommand)

	env.do(t, http.MethodPost, "/api/v1/robots/R1/command", "spin", header)
	env.do(t, http.MethodPost, "/api/v1/robots/R2/command", "spin", header)
	env.do(t, http.MethodPost, "/robot/manage", `{"robot_id":"R1"}`, header)

	entries := listAudit(t, env, audit.Filter{})
	if len(entries) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(entries))
	}

	bySource := map[string][]audit.Entry{}
	for _, e := range entries {
		bySource[e.Source] = append(bySource[e.Source], e)
		if e.Subject != "tester" {
			t.Errorf("entry %s subject = %q, want tester", e.ID, e.Subject)
		}
	}
	if len(bySource[audit.SourceAPI]) != 2 || len(bySource[audit.SourceManage]) != 1 {
		t.Errorf("sources = %v", bySource)
	}
	if e := bySource[audit.SourceManage][0]; e.Status != audit.StatusSent || e.Bytes != len("hello robot") {
		t.Errorf("manage entry = %+v", e)
	}

	notConnected := listAudit(t, env, audit.Filter{Status: audit.StatusNotConnected})
	if len(notConnected) != 1 || notConnected[0].RobotID != "R2" || notConnected[0].Error != "R2 not connected" {
		t.Errorf("not_connected entries = %+v", notConnected)
	}
}

func TestAudit_WriteFailureRecorded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.SetDevice("R1", addrA, &fakeHandle{id: "s1", err: gateway.ErrSessionClosed})

	env.do(t, http.MethodPost, "/api/v1/robots/R1/command", "spin", nil)

	entries := listAudit(t, env, audit.Filter{RobotID: "R1"})
	if len(entries) != 1 || entries[0].Status != audit.StatusFailed || entries[0].Subject != "" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestListAudit(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.SetDevice("R1", addrA, &fakeHandle{id: "s1"})
	for range 3 {
		env.do(t, http.MethodPost, "/api/v1/robots/R1/command", "go", nil)
	}
	env.do(t, http.MethodPost, "/api/v1/robots/R9/command", "go", nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  int
		wantLen    int
	}{
		{"all", "", http.StatusOK, 4, 4},
		{"by robot", "?robot_id=R1", http.StatusOK, 3, 3},
		{"by status", "?status=not_connected", http.StatusOK, 1, 1},
		{"paged", "?limit=2&offset=1", http.StatusOK, 4, 2},
		{"bad limit", "?limit=x", http.StatusBadRequest, 0, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/audit"+tt.query, "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[audit.ListResult](t, rec)
			if got.Total != tt.wantTotal || len(got.Entries) != tt.wantLen {
				t.Errorf("total = %d, len = %d, want %d and %d", got.Total, len(got.Entries), tt.wantTotal, tt.wantLen)
			}
		})
	}
}

func TestListAudit_Unavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Audit = nil })
	if rec := env.do(t, http.MethodGet, "/api/v1/audit", "", nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestListAudit_RequiresReadScope(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Security.JWT.Secret = testSecret })

	if rec := env.do(t, http.MethodGet, "/api/v1/audit", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/audit", "", bearer(t, auth.ScopeCommand)); rec.Code != http.StatusForbidden {
		t.Errorf("command scope: status = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/audit", "", bearer(t, auth.ScopeRead)); rec.Code != http.StatusOK {
		t.Errorf("read scope: status = %d, want 200", rec.Code)
	}
}
