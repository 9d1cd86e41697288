// Package storetest holds the behavioural tests every template store backend
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"certificate-server/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

type Store interface {
	core.TemplateStore
	core.IssuanceStore
}

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetNotFound", testGetNotFound},
		{"UpdateReplacesRecord", testUpdateReplacesRecord},
		{"UpdateNotFound", testUpdateNotFound},
		{"ListNewestFirst", testListNewestFirst},
		{"Delete", testDelete},
		{"RecordIssuanceUpserts", testRecordIssuanceUpserts},
		{"DeleteIssuance", testDeleteIssuance},
		{"ConcurrentCreate", testConcurrentCreate},
		{"DataIntegrity", testDataIntegrity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func sampleTemplate(name string) *core.Template {
	turma := "turma-1"
	return &core.Template{
		Name:            name,
		Thumbnail:       "data:image/png;base64,AAAA",
		TurmaID:         &turma,
		Orientation:     core.OrientationLandscape,
		BackgroundImage: "https://example.com/bg.png",
		SchemaVersion:   1,
		Elements:        json.RawMessage(`[{"id":"e1","type":"text","x":100,"y":100,"text":"Nome do Aluno","fontSize":28}]`),
	}
}

func jsonEqual(t *testing.T, got, want json.RawMessage) bool {
	t.Helper()
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("invalid JSON %q: %v", got, err)
	}
	if err := json.Unmarshal(want, &w); err != nil {
		t.Fatalf("invalid JSON %q: %v", want, err)
	}
	return reflect.DeepEqual(g, w)
}

func mustCreate(t *testing.T, s Store, tpl *core.Template) string {
	t.Helper()
	id, err := s.Create(context.Background(), tpl)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty ID")
	}
	return id
}

func testCreateAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	want := sampleTemplate("Diploma")
	id := mustCreate(t, s, want)

	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, id)
	}
	if got.Name != want.Name {
		t.Errorf("Name mismatch: got %q, want %q", got.Name, want.Name)
	}
	if got.TurmaID == nil || *got.TurmaID != "turma-1" {
		t.Errorf("TurmaID mismatch: got %v, want turma-1", got.TurmaID)
	}
	if got.Orientation != want.Orientation {
		t.Errorf("Orientation mismatch: got %q, want %q", got.Orientation, want.Orientation)
	}
	if got.BackgroundImage != want.BackgroundImage {
		t.Errorf("BackgroundImage mismatch: got %q, want %q", got.BackgroundImage, want.BackgroundImage)
	}
	if got.Thumbnail != want.Thumbnail {
		t.Errorf("Thumbnail mismatch: got %q, want %q", got.Thumbnail, want.Thumbnail)
	}
	if got.SchemaVersion != 1 {
		t.Errorf("SchemaVersion mismatch: got %d, want 1", got.SchemaVersion)
	}
	if !jsonEqual(t, got.Elements, want.Elements) {
		t.Errorf("Elements mismatch: got %s, want %s", got.Elements, want.Elements)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func testGetNotFound(t *testing.T, s Store) {
	_, err := s.Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() error mismatch: got %v, want %v", err, core.ErrNotFound)
	}
}

func testUpdateReplacesRecord(t *testing.T, s Store) {
	ctx := context.Background()
	id := mustCreate(t, s, sampleTemplate("Draft"))
	created, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	updated := sampleTemplate("Final")
	updated.ID = id
	updated.TurmaID = nil
	updated.Orientation = core.OrientationPortrait
	updated.Elements = json.RawMessage(`[]`)
	if err := s.Update(ctx, updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "Final" {
		t.Errorf("Name mismatch: got %q, want %q", got.Name, "Final")
	}
	if got.TurmaID != nil {
		t.Errorf("TurmaID mismatch: got %q, want nil", *got.TurmaID)
	}
	if got.Orientation != core.OrientationPortrait {
		t.Errorf("Orientation mismatch: got %q, want %q", got.Orientation, core.OrientationPortrait)
	}
	if !jsonEqual(t, got.Elements, json.RawMessage(`[]`)) {
		t.Errorf("Elements mismatch: got %s, want []", got.Elements)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: got %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func testUpdateNotFound(t *testing.T, s Store) {
	tpl := sampleTemplate("Ghost")
	tpl.ID = "01HZZZZZZZZZZZZZZZZZZZZZZZ"
	if err := s.Update(context.Background(), tpl); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update() error mismatch: got %v, want %v", err, core.ErrNotFound)
	}
}

func testListNewestFirst(t *testing.T, s Store) {
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreate(t, s, sampleTemplate(fmt.Sprintf("T%d", i))))
	}

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() length mismatch: got %d, want 3", len(list))
	}
	for i, tpl := range list {
		if want := ids[len(ids)-1-i]; tpl.ID != want {
			t.Errorf("List()[%d] mismatch: got %q, want %q", i, tpl.ID, want)
		}
	}
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	id := mustCreate(t, s, sampleTemplate("Trash"))

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after Delete() error mismatch: got %v, want %v", err, core.ErrNotFound)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error mismatch: got %v, want %v", err, core.ErrNotFound)
	}
}

func testRecordIssuanceUpserts(t *testing.T, s Store) {
	ctx := context.Background()
	tplID := mustCreate(t, s, sampleTemplate("Diploma"))

	first := &core.Issuance{TemplateID: tplID, StudentID: "aluno-1", TurmaID: "turma-1", StudentName: "Ana"}
	if err := s.RecordIssuance(ctx, first); err != nil {
		t.Fatalf("RecordIssuance() failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("RecordIssuance() did not assign an ID")
	}

	again := &core.Issuance{TemplateID: tplID, StudentID: "aluno-1", TurmaID: "turma-1", StudentName: "Ana Maria"}
	if err := s.RecordIssuance(ctx, again); err != nil {
		t.Fatalf("RecordIssuance() upsert failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("upsert ID mismatch: got %q, want %q", again.ID, first.ID)
	}

	other := &core.Issuance{TemplateID: tplID, StudentID: "aluno-2"}
	if err := s.RecordIssuance(ctx, other); err != nil {
		t.Fatalf("RecordIssuance() failed: %v", err)
	}

	list, err := s.ListIssuances(ctx, tplID)
	if err != nil {
		t.Fatalf("ListIssuances() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListIssuances() length mismatch: got %d, want 2", len(list))
	}
	for _, issuance := range list {
		if issuance.StudentID == "aluno-1" && issuance.StudentName != "Ana Maria" {
			t.Errorf("StudentName mismatch: got %q, want %q", issuance.StudentName, "Ana Maria")
		}
	}

	if err := s.RecordIssuance(ctx, &core.Issuance{TemplateID: tplID}); err == nil {
		t.Error("RecordIssuance() should reject a missing student id")
	}
}

func testDeleteIssuance(t *testing.T, s Store) {
	ctx := context.Background()
	tplID := mustCreate(t, s, sampleTemplate("Diploma"))
	issuance := &core.Issuance{TemplateID: tplID, StudentID: "aluno-1"}
	if err := s.RecordIssuance(ctx, issuance); err != nil {
		t.Fatalf("RecordIssuance() failed: %v", err)
	}

	if err := s.DeleteIssuance(ctx, issuance.ID); err != nil {
		t.Fatalf("DeleteIssuance() failed: %v", err)
	}
	list, err := s.ListIssuances(ctx, tplID)
	if err != nil {
		t.Fatalf("ListIssuances() failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListIssuances() length mismatch: got %d, want 0", len(list))
	}
	if err := s.DeleteIssuance(ctx, issuance.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteIssuance() error mismatch: got %v, want %v", err, core.ErrNotFound)
	}
}

func testConcurrentCreate(t *testing.T, s Store) {
	const n = 20
	var wg sync.WaitGroup
	ids := make(chan string, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Create(context.Background(), sampleTemplate(fmt.Sprintf("T%d", i)))
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Create() failed: %v", err)
	}
	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("created count mismatch: got %d, want %d", len(seen), n)
	}
}

func testDataIntegrity(t *testing.T, s Store) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		tplName  string
		elements string
	}{
		{"unicode", "Certificado de Conclusão 🎓", `[{"id":"a","type":"text","x":1,"y":2,"text":"São Paulo\nçãõ","fontSize":20}]`},
		{"quotes", `It's "quoted"; DROP TABLE templates;--`, `[]`},
		{"image", "Logo", `[{"id":"img","type":"image","x":50,"y":50,"src":"data:image/png;base64,iVBORw0KGgo=","width":100,"height":100,"opacity":0.5}]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := sampleTemplate(tc.tplName)
			tpl.Elements = json.RawMessage(tc.elements)
			id := mustCreate(t, s, tpl)

			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if got.Name != tc.tplName {
				t.Errorf("Name integrity failed: got %q, want %q", got.Name, tc.tplName)
			}
			if !jsonEqual(t, got.Elements, tpl.Elements) {
				t.Errorf("Elements integrity failed: got %s, want %s", got.Elements, tpl.Elements)
			}
		})
	}
}
