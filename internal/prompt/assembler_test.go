package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/brick-matrix/internal/model"
)

func brick(id string, typ model.BrickType, title, content string, weight int, authorized bool) model.Brick {
	return model.Brick{
		ID:      id,
		Type:    typ,
		Title:   title,
		Content: model.TextContent(content),
		Metadata: model.Metadata{
			IsAuthorized:   authorized,
			SynapticWeight: weight,
		},
	}
}

func TestAssemble_ConstraintsFirst(t *testing.T) {
	bricks := []model.Brick{
		brick("k1", model.TypeKnowledge, "Facility hours", "9-18", 5, true),
		brick("s1", model.TypeStyleGuide, "Tone", "warm", 5, true),
		brick("c1", model.TypeConstraint, "No diagnosis", "never diagnose", 1, true),
		brick("i1", model.TypeIntent, "Booking", "book", 5, true),
	}

	res := Assemble(bricks, Options{})

	require.Len(t, res.Sections, 4)
	assert.Equal(t, model.TypeConstraint, res.Sections[0].Type)
	assert.Equal(t, model.TypeIntent, res.Sections[1].Type)
	assert.Equal(t, model.TypeKnowledge, res.Sections[2].Type)
	assert.Equal(t, model.TypeStyleGuide, res.Sections[3].Type)
	assert.Equal(t, 4, res.Included)

	assert.Less(t, strings.Index(res.Text, "No diagnosis"), strings.Index(res.Text, "Booking"))
	assert.Less(t, strings.Index(res.Text, "Booking"), strings.Index(res.Text, "Facility hours"))
}

func TestAssemble_FiltersUnauthorizedInEveryMode(t *testing.T) {
	bricks := []model.Brick{
		brick("ok", model.TypeKnowledge, "Verified hours", "9-18", 5, true),
		brick("bad", model.TypeKnowledge, "Unverified promo", "50% off", 10, false),
		brick("bad2", model.TypeConstraint, "Draft rule", "draft", 10, false),
	}

	for _, mode := range []Mode{ModeProduction, ModeTraining} {
		t.Run(string(mode), func(t *testing.T) {
			res := Assemble(bricks, Options{Mode: mode})
			assert.Equal(t, 1, res.Included)
			assert.Equal(t, 2, res.Excluded)
			assert.NotContains(t, res.Text, "Unverified promo")
			assert.NotContains(t, res.Text, "50% off")
			assert.NotContains(t, res.Text, "Draft rule")
			assert.Contains(t, res.Text, "Verified hours")
		})
	}
}

func TestAssemble_ModeChangesFramingOnly(t *testing.T) {
	bricks := []model.Brick{
		brick("c1", model.TypeConstraint, "No diagnosis", "never diagnose", 1, true),
		brick("k1", model.TypeKnowledge, "Hours", "9-18", 5, true),
	}

	prod := Assemble(bricks, Options{Mode: ModeProduction})
	train := Assemble(bricks, Options{Mode: ModeTraining})

	assert.NotEqual(t, prod.Persona, train.Persona)
	assert.NotEqual(t, prod.Rules, train.Rules)
	assert.Contains(t, train.Persona, "TRAINING MODE")
	assert.Equal(t, prod.Sections, train.Sections)
	assert.Equal(t, prod.Included, train.Included)
}

func TestAssemble_OrderWithinSection(t *testing.T) {
	bricks := []model.Brick{
		brick("b", model.TypeKnowledge, "Beta", "x", 3, true),
		brick("a", model.TypeKnowledge, "Alpha", "x", 3, true),
		brick("z", model.TypeKnowledge, "Zulu", "x", 9, true),
	}
	res := Assemble(bricks, Options{})
	require.Len(t, res.Sections, 1)
	entries := res.Sections[0].Entries
	assert.Equal(t, []string{"Zulu", "Alpha", "Beta"}, []string{entries[0].Title, entries[1].Title, entries[2].Title})
}

func TestAssemble_TruncatesKnowledgeWhenMany(t *testing.T) {
	long := strings.Repeat("è", 50)

	var few []model.Brick
	for i := 0; i < 2; i++ {
		few = append(few, brick(fmt.Sprint(i), model.TypeKnowledge, fmt.Sprint("k", i), long, 1, true))
	}
	res := Assemble(few, Options{PreviewChars: 10, PreviewAfter: 3})
	assert.Equal(t, long, res.Sections[0].Entries[0].Content)

	var many []model.Brick
	for i := 0; i < 4; i++ {
		many = append(many, brick(fmt.Sprint(i), model.TypeKnowledge, fmt.Sprint("k", i), long, 1, true))
	}
	many = append(many, brick("c", model.TypeConstraint, "Rule", long, 1, true))
	res = Assemble(many, Options{PreviewChars: 10, PreviewAfter: 3})

	require.Len(t, res.Sections, 2)
	assert.Equal(t, long, res.Sections[0].Entries[0].Content, "constraints are never truncated")
	for _, e := range res.Sections[1].Entries {
		assert.True(t, e.Truncated)
		assert.Equal(t, strings.Repeat("è", 10)+"...", e.Content)
	}
}

func TestAssemble_StructuredContent(t *testing.T) {
	b := model.Brick{
		ID: "p", Type: model.TypeMedicalProtocol, Title: "Triage",
		Content:  json.RawMessage(`{"steps": ["vitals", "history"]}`),
		Metadata: model.Metadata{IsAuthorized: true},
	}
	res := Assemble([]model.Brick{b}, Options{})
	assert.Contains(t, res.Text, `[Triage] {"steps":["vitals","history"]}`)
}

func TestAssemble_BudgetKeepsConstraints(t *testing.T) {
	bricks := []model.Brick{
		brick("c1", model.TypeConstraint, "Rule", strings.Repeat("x", 100), 1, true),
		brick("k1", model.TypeKnowledge, "Small", "abc", 9, true),
		brick("k2", model.TypeKnowledge, "Large", strings.Repeat("y", 100), 5, true),
		brick("k3", model.TypeKnowledge, "Tiny", "a", 1, true),
	}

	res := Assemble(bricks, Options{Budget: 120})

	assert.Equal(t, 2, res.Included)
	assert.Equal(t, 2, res.Dropped)
	assert.Contains(t, res.Text, "Rule")
	assert.Contains(t, res.Text, "Small")
	assert.NotContains(t, res.Text, "Large")
	assert.NotContains(t, res.Text, "Tiny", "packing stops at the first overflow")
}

func TestAssemble_BudgetCountsCharacters(t *testing.T) {
	bricks := []model.Brick{
		brick("k1", model.TypeKnowledge, "Orari", strings.Repeat("è", 50), 5, true),
		brick("k2", model.TypeKnowledge, "Più", strings.Repeat("à", 10), 1, true),
	}

	res := Assemble(bricks, Options{Budget: 60})

	assert.Equal(t, 1, res.Included, "accented text must not be counted in bytes")
	assert.Equal(t, 55, res.Used)
	assert.Equal(t, 1, res.Dropped)
	assert.Contains(t, res.Text, "Orari")
}

func TestAssemble_UnknownTypeAfterKnown(t *testing.T) {
	bricks := []model.Brick{
		brick("x", "Custom", "Extra", "x", 1, true),
		brick("k", model.TypeKnowledge, "Known", "x", 1, true),
	}
	res := Assemble(bricks, Options{})
	require.Len(t, res.Sections, 2)
	assert.Equal(t, model.TypeKnowledge, res.Sections[0].Type)
	assert.Equal(t, "CUSTOM", res.Sections[1].Heading)
}

func TestAssemble_Empty(t *testing.T) {
	res := Assemble(nil, Options{})
	assert.Empty(t, res.Sections)
	assert.Equal(t, ModeProduction, res.Mode)
	assert.Contains(t, res.Text, "BASE RULES")
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeTraining, ParseMode(" Training "))
	assert.Equal(t, ModeProduction, ParseMode("production"))
	assert.Equal(t, ModeProduction, ParseMode("staging"))
}
