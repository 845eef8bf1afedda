package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rcliao/brick-matrix/internal/model"
)

func exportBytes(t *testing.T, s *KnowledgeStore) []byte {
	t.Helper()
	m, err := s.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestExportAllFormat(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, draft(model.TypeConstraint, "No diagnosis", "never diagnose"))

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(exportBytes(t, s), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"matrix", "version", "exportDate", "environment"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("expected top-level field %q", field)
		}
	}
	if string(doc["environment"]) != `"test"` {
		t.Errorf("expected environment \"test\", got %s", doc["environment"])
	}

	var bricks []map[string]json.RawMessage
	json.Unmarshal(doc["matrix"], &bricks)
	if len(bricks) != 1 {
		t.Fatalf("expected 1 brick, got %d", len(bricks))
	}
	for _, field := range []string{"id", "type", "title", "tags", "content", "metadata"} {
		if _, ok := bricks[0][field]; !ok {
			t.Errorf("expected brick field %q", field)
		}
	}
}

func TestRoundTripSameStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, draft(model.TypeKnowledge, "a", "1", "x"))
	mustCreate(t, s, model.Draft{Type: model.TypeProtocol, Title: "b", Content: json.RawMessage(`{"steps":["wash","rinse"]}`), SynapticWeight: 7})

	before, _ := s.List(ctx)
	res := s.ImportAll(ctx, exportBytes(t, s))
	if !res.Success {
		t.Fatalf("import: %s", res.Message)
	}
	if res.Count != 2 || res.Overwritten != 2 || res.Added != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	after, _ := s.List(ctx)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("round trip changed the collection (-before +after):\n%s", diff)
	}
}

func TestExportReimportIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	c := mustCreate(t, src, draft(model.TypeConstraint, "no diagnosis", "Never provide a diagnosis."))
	k := mustCreate(t, src, draft(model.TypeKnowledge, "facility hours", "Mon-Fri 9-18"))
	i := mustCreate(t, src, draft(model.TypeIntent, "booking trigger", "book|appointment"))
	payload := exportBytes(t, src)

	dst := newTestStore(t)
	res := dst.ImportAll(ctx, payload)
	if !res.Success || res.Count != 3 {
		t.Fatalf("import: %+v", res)
	}

	list, _ := dst.List(ctx)
	if len(list) != 3 {
		t.Fatalf("expected 3 bricks, got %d", len(list))
	}
	want := map[string]string{c.ID: c.Title, k.ID: k.Title, i.ID: i.Title}
	for _, b := range list {
		if want[b.ID] != b.Title {
			t.Errorf("brick %s: expected title %q, got %q", b.ID, want[b.ID], b.Title)
		}
	}

	srcList, _ := src.List(ctx)
	if diff := cmp.Diff(srcList, list); diff != "" {
		t.Errorf("imported collection differs (-src +dst):\n%s", diff)
	}
}

func TestMergeOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustCreate(t, s, draft(model.TypeKnowledge, "local A", "local body"))

	// B has the same id but an older timestamp and a lower version.
	payload := []byte(`{"matrix":[{"id":"` + a.ID + `","type":"Knowledge","title":"remote B","tags":["r"],
		"content":"remote body","metadata":{"createdAt":"2001-01-01T00:00:00Z","isAuthorized":true,"version":1}}]}`)
	res := s.ImportAll(ctx, payload)
	if !res.Success {
		t.Fatalf("import: %s", res.Message)
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "remote B" || model.ContentText(got.Content) != "remote body" {
		t.Errorf("expected imported fields to win, got %+v", got)
	}
	if got.Metadata.Version != 1 {
		t.Errorf("expected imported version 1, got %d", got.Metadata.Version)
	}
}

func TestMergeAdditive(t *testing.T) {
	ctx := context.Background()
	local := newTestStore(t)
	for _, title := range []string{"a", "b", "c"} {
		mustCreate(t, local, draft(model.TypeKnowledge, title, "x"))
	}
	remote := newTestStore(t)
	for _, title := range []string{"d", "e"} {
		mustCreate(t, remote, draft(model.TypeIntent, title, "y"))
	}

	res := local.ImportAll(ctx, exportBytes(t, remote))
	if !res.Success || res.Added != 2 {
		t.Fatalf("import: %+v", res)
	}
	list, _ := local.List(ctx)
	if len(list) != 5 {
		t.Fatalf("expected N+M = 5 bricks, got %d", len(list))
	}
	if list[3].Title != "d" || list[4].Title != "e" {
		t.Errorf("expected new bricks appended in import order, got %q, %q", list[3].Title, list[4].Title)
	}
}

func TestStaleReimportClobbersEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b1 := mustCreate(t, s, draft(model.TypeKnowledge, "v1", "body"))
	p := exportBytes(t, s)

	title := "v2"
	if _, err := s.Update(ctx, "", b1.ID, model.Patch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if res := s.ImportAll(ctx, p); !res.Success {
		t.Fatalf("import: %s", res.Message)
	}

	got, _ := s.Get(ctx, b1.ID)
	if got.Title != "v1" {
		t.Errorf("expected import to win with 'v1', got %q", got.Title)
	}
}

func TestImportResurrectsDeleted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustCreate(t, s, draft(model.TypeKnowledge, "gone", "x"))
	p := exportBytes(t, s)

	s.Delete(ctx, b.ID)
	s.ImportAll(ctx, p)

	if _, err := s.Get(ctx, b.ID); err != nil {
		t.Errorf("deletions are not tracked, expected brick back: %v", err)
	}
}

func TestImportAllSynthesizesMissingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	payload := []byte(`{"matrix":[
		{"type":"Knowledge","title":"one","content":"1"},
		{"id":"","type":"Knowledge","title":"two","content":"2"}
	]}`)
	res := s.ImportAll(ctx, payload)
	if !res.Success || res.Added != 2 {
		t.Fatalf("import: %+v", res)
	}
	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID == "" || list[1].ID == "" || list[0].ID == list[1].ID {
		t.Errorf("expected two distinct synthesized ids, got %+v", list)
	}
}

func TestImportAllDefaultsMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	payload := []byte(`{"matrix":[{"id":"x1","type":"StyleGuide","title":"Tone","content":"warm",
		"metadata":{"synapticWeight":99}}],"extra":{"ignored":true}}`)
	res := s.ImportAll(ctx, payload)
	if !res.Success {
		t.Fatalf("import: %s", res.Message)
	}

	got, _ := s.Get(ctx, "x1")
	if got.Metadata.CreatedAt.IsZero() || got.Metadata.LastValidated.IsZero() {
		t.Error("expected timestamps defaulted")
	}
	if got.Metadata.Version != DefaultSchemaVersion {
		t.Errorf("expected default version, got %d", got.Metadata.Version)
	}
	if got.Metadata.SynapticWeight != 10 {
		t.Errorf("expected clamped weight, got %d", got.Metadata.SynapticWeight)
	}
	if got.Metadata.IsAuthorized {
		t.Error("missing isAuthorized must default to false")
	}
	if got.Tags == nil {
		t.Error("expected tags defaulted to empty set")
	}
}

func TestImportAllRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, draft(model.TypeKnowledge, "keep", "x"))

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"array root", `[{"id":"a"}]`},
		{"missing matrix", `{"version":2}`},
		{"bricks alias", `{"bricks":[{"id":"a","type":"Knowledge","title":"t","content":"c"}]}`},
		{"matrix not array", `{"matrix":{"id":"a"}}`},
		{"matrix null", `{"matrix":null}`},
		{"empty matrix", `{"matrix":[]}`},
		{"unknown type", `{"matrix":[{"id":"a","type":"Gossip","title":"t","content":"c"}]}`},
		{"empty title", `{"matrix":[{"id":"a","type":"Knowledge","title":"","content":"c"}]}`},
		{"one bad brick", `{"matrix":[{"id":"a","type":"Knowledge","title":"t","content":"c"},{"id":"b","type":"Knowledge","title":"t"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.ImportAll(ctx, []byte(tt.payload))
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Message == "" {
				t.Error("expected a message")
			}
			if !errors.Is(res.Err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", res.Err)
			}
		})
	}

	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Errorf("failed imports must not write, got %d bricks", len(list))
	}
}

func TestExportOneImportOne(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	b := mustCreate(t, src, draft(model.TypeAuthorizedAdvice, "Ice", "apply ice 20 min", "sports"))

	data, err := src.ExportOne(ctx, b.ID)
	if err != nil {
		t.Fatalf("export one: %v", err)
	}

	dst := newTestStore(t)
	got, err := dst.ImportOne(ctx, data)
	if err != nil {
		t.Fatalf("import one: %v", err)
	}
	if diff := cmp.Diff(*b, *got); diff != "" {
		t.Errorf("single brick round trip differs:\n%s", diff)
	}

	// Upsert: importing again with a new title overwrites in place.
	var edited model.Brick
	json.Unmarshal(data, &edited)
	edited.Title = "Ice pack"
	data2, _ := json.Marshal(edited)
	if _, err := dst.ImportOne(ctx, data2); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	list, _ := dst.List(ctx)
	if len(list) != 1 || list[0].Title != "Ice pack" {
		t.Errorf("expected upsert by id, got %+v", list)
	}

	if _, err := src.ExportOne(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportOneRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, payload := range []string{``, `[]`, `"brick"`, `{"type":"Knowledge"`, `{"type":"Nope","title":"t","content":"c"}`} {
		_, err := s.ImportOne(ctx, []byte(payload))
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("ImportOne(%q): expected validation error, got %v", payload, err)
		}
	}
	list, _ := s.List(ctx)
	if len(list) != 0 {
		t.Errorf("expected no writes, got %d", len(list))
	}
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	mustCreate(t, src, draft(model.TypeKnowledge, "seed", "x"))
	seed := exportBytes(t, src)

	s := newTestStore(t)
	if res, seeded := s.SeedIfEmpty(ctx, seed); !seeded || !res.Success {
		t.Fatalf("expected seed into empty store, got %+v", res)
	}
	if _, seeded := s.SeedIfEmpty(ctx, seed); seeded {
		t.Error("expected no seeding into a non-empty store")
	}
	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Errorf("expected 1 brick, got %d", len(list))
	}
}

func TestMergeDuplicateIDsInIncoming(t *testing.T) {
	local := []model.Brick{{ID: "a", Title: "local"}}
	incoming := []model.Brick{{ID: "b", Title: "first"}, {ID: "a", Title: "remote"}, {ID: "b", Title: "second"}}

	merged, added, overwritten := merge(local, incoming)
	if len(merged) != 2 {
		t.Fatalf("expected 2, got %d", len(merged))
	}
	if merged[0].Title != "remote" || merged[1].Title != "second" {
		t.Errorf("unexpected merge result %+v", merged)
	}
	if added != 1 || overwritten != 1 {
		t.Errorf("expected added=1 overwritten=1, got %d %d", added, overwritten)
	}
	if local[0].Title != "local" {
		t.Error("merge must not modify its input")
	}
}

func TestContentWithHTMLCharactersSurvivesPersistence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc := `{"id":"x1","type":"Knowledge","title":"Hours","tags":[],` +
		`"content":"<b>hours</b> & more","metadata":{"isAuthorized":true,"version":2,"synapticWeight":5}}`
	imported, err := s.ImportOne(ctx, []byte(doc))
	if err != nil {
		t.Fatalf("import one: %v", err)
	}
	stored, err := s.Get(ctx, "x1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(*imported, *stored); diff != "" {
		t.Errorf("imported brick differs from stored brick:\n%s", diff)
	}
	if got := model.ContentText(stored.Content); got != "<b>hours</b> & more" {
		t.Errorf("content text changed: %q", got)
	}

	created, err := s.Create(ctx, "", model.Draft{
		Type:    model.TypeMedicalProtocol,
		Title:   "Dosage",
		Content: json.RawMessage(`{"rule": "weight < 5kg & age > 8w"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, err = s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(*created, *stored); diff != "" {
		t.Errorf("created brick differs from stored brick:\n%s", diff)
	}
}
