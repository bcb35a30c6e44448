package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/starford/charforge/internal/draft"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/provider"
	"github.com/starford/charforge/internal/remote"
	"github.com/starford/charforge/internal/testutil"
	"github.com/starford/charforge/internal/wizard"
)

// flowEnv serves the real router over HTTP so remote clients go through the
// same precondition checks as production.
func flowEnv(t *testing.T) string {
	t.Helper()
	_, router := testEnv(t, "")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func mustSave(t *testing.T, c *remote.Client, sheet *models.CharacterSheet, opts remote.SaveOptions) remote.SaveResult {
	t.Helper()
	res, err := c.Save(context.Background(), sheet, opts)
	if err != nil {
		t.Fatalf("save %q: %v", sheet.Name, err)
	}
	return res
}

func mustLoad(t *testing.T, c *remote.Client, id string) *models.CharacterSheet {
	t.Helper()
	got, err := c.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return got
}

func TestClientConflictPersistsUntilResolved(t *testing.T) {
	base := flowEnv(t)
	a := remote.New(base)
	b := remote.New(base)

	local := testutil.Sheet("c-1", "A")
	if res := mustSave(t, a, local, remote.SaveOptions{}); res.IsConflict() {
		t.Fatal("first save conflicted")
	}

	theirs := mustLoad(t, b, "c-1")
	theirs.Name = "B-edit"
	theirs = theirs.Touch()
	if res := mustSave(t, b, theirs, remote.SaveOptions{}); res.IsConflict() {
		t.Fatal("second client save conflicted")
	}

	local.Name = "A-edit"
	local = local.Touch()
	res := mustSave(t, a, local, remote.SaveOptions{})
	if !res.IsConflict() {
		t.Fatal("stale save did not conflict")
	}
	if res.Conflict.Name != "B-edit" {
		t.Errorf("conflict name = %q, want B-edit", res.Conflict.Name)
	}

	local.Name = "A-edit-2"
	local = local.Touch()
	if again := mustSave(t, a, local, remote.SaveOptions{}); !again.IsConflict() {
		t.Fatal("unforced save after a conflict overwrote the remote record")
	}
	if got := mustLoad(t, b, "c-1").Name; got != "B-edit" {
		t.Fatalf("server name = %q, want B-edit", got)
	}

	a.Adopt(res.Conflict)
	merged := res.Conflict.Clone()
	merged.Name = "Merged"
	merged = merged.Touch()
	if after := mustSave(t, a, merged, remote.SaveOptions{}); after.IsConflict() {
		t.Fatal("save after adopting the server record conflicted")
	}
	if got := mustLoad(t, b, "c-1").Name; got != "Merged" {
		t.Errorf("server name = %q, want Merged", got)
	}
}

func TestClientListDoesNotRefreshStaleCopy(t *testing.T) {
	base := flowEnv(t)
	seed := remote.New(base)
	mustSave(t, seed, testutil.Sheet("c-1", "Seed"), remote.SaveOptions{})

	c := remote.New(base)
	d := remote.New(base)
	stale := mustLoad(t, c, "c-1")

	fresh := mustLoad(t, d, "c-1")
	fresh.Name = "D-edit"
	fresh = fresh.Touch()
	mustSave(t, d, fresh, remote.SaveOptions{})

	list, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list len = %d, want 1", len(list))
	}

	stale.Name = "C-stale"
	stale = stale.Touch()
	if res := mustSave(t, c, stale, remote.SaveOptions{}); !res.IsConflict() {
		t.Fatal("stale save after List overwrote the remote record")
	}
	if got := mustLoad(t, d, "c-1").Name; got != "D-edit" {
		t.Errorf("server name = %q, want D-edit", got)
	}
}

func TestClientForcedSaveBecomesBaseline(t *testing.T) {
	base := flowEnv(t)
	a := remote.New(base)
	b := remote.New(base)

	mustSave(t, b, testutil.Sheet("c-1", "B"), remote.SaveOptions{})

	local := testutil.Sheet("c-1", "A")
	local = local.Touch()
	if res := mustSave(t, a, local, remote.SaveOptions{}); !res.IsConflict() {
		t.Fatal("create over an existing record did not conflict")
	}
	if res := mustSave(t, a, local, remote.SaveOptions{Force: true}); res.IsConflict() {
		t.Fatal("forced save conflicted")
	}

	local.Name = "A-next"
	local = local.Touch()
	if res := mustSave(t, a, local, remote.SaveOptions{}); res.IsConflict() {
		t.Fatal("save after a forced save conflicted")
	}
}

func TestWizardLoadRemoteThenSave(t *testing.T) {
	base := flowEnv(t)
	other := remote.New(base)

	slots := testutil.TestKV(t)
	drafts := draft.NewStore(slots, nil)
	settings := draft.NewSettings(slots, nil)
	client := remote.New(base, remote.WithBaselines(settings))
	reg, err := provider.NewRegistry(
		provider.NewDraft(drafts),
		provider.NewCloud(client, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := wizard.New(wizard.Deps{Drafts: drafts, Settings: settings, Registry: reg})
	if err := ctrl.SelectProvider(provider.IDCloud); err != nil {
		t.Fatal(err)
	}

	mustSave(t, other, testutil.Sheet("c-1", "Shared"), remote.SaveOptions{})
	if !ctrl.LoadFromCloud(context.Background(), "c-1") {
		t.Fatal("load from cloud failed")
	}

	theirs := mustLoad(t, other, "c-1")
	theirs.Name = "Theirs"
	theirs = theirs.Touch()
	mustSave(t, other, theirs, remote.SaveOptions{})

	ctrl.SetName("Mine")
	if res := ctrl.Save(context.Background()); res.Status != provider.StatusConflict {
		t.Fatalf("save status = %s, want conflict", res.Status)
	}
	if res := ctrl.Save(context.Background()); res.Status != provider.StatusConflict {
		t.Fatalf("second save status = %s, want conflict", res.Status)
	}

	if !ctrl.LoadRemote() {
		t.Fatal("no pending conflict to load")
	}
	if got := ctrl.Sheet().Name; got != "Theirs" {
		t.Fatalf("name after LoadRemote = %q, want Theirs", got)
	}
	ctrl.SetName("Merged")
	if res := ctrl.Save(context.Background()); !res.OK() {
		t.Fatalf("save after LoadRemote: %s %s", res.Status, res.Message)
	}
	if got := mustLoad(t, other, "c-1").Name; got != "Merged" {
		t.Errorf("server name = %q, want Merged", got)
	}
}
