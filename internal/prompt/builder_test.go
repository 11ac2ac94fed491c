package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/roundtable/internal/model"
)

func fullPersona() *model.AgentPersonality {
	return &model.AgentPersonality{
		ID:                "p1",
		Name:              "Ada",
		Title:             "The Analytical Engineer",
		PersonalityTraits: []string{"rigorous", "inventive"},
		Archetype:         "scientist",
		Perspective:       "Every claim should survive a check",
		KnowledgeDomains:  []string{"mathematics", "computing"},
		Specialties:       []string{"algorithms"},
		SpeechPattern:     "Numbered reasoning",
		Quirks:            []string{"estimates orders of magnitude"},
		VoiceType:         "crisp",
		Temperament:       "focused",
		ResponseStyle:     model.StyleTechnical,
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	prior := []Turn{{AgentName: "Socrates", Content: "What is a machine?"}}

	first := Build(fullPersona(), "Can machines think?", prior)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Build(fullPersona(), "Can machines think?", prior))
	}
}

func TestBuildIncludesEveryBlockInOrder(t *testing.T) {
	prior := []Turn{
		{AgentName: "Socrates", Content: "What is a machine?"},
		{AgentName: "Rumi", Content: "A reed that sings."},
	}
	out := Build(fullPersona(), "Can machines think?", prior)

	ordered := []string{
		"You are Ada, The Analytical Engineer.",
		"Your personality traits: rigorous, inventive.",
		"Your archetype: scientist.",
		"Your worldview: Every claim should survive a check.",
		"Your areas of knowledge: mathematics, computing.",
		"Your specialties: algorithms.",
		"Your speech pattern: Numbered reasoning.",
		"Your quirks: estimates orders of magnitude.",
		"Your voice: crisp.",
		"Your temperament: focused.",
		StyleDirective(model.StyleTechnical),
		"The topic under discussion is: Can machines think?",
		"Socrates: What is a machine?\nRumi: A reed that sings.",
		closingInstruction,
	}
	pos := 0
	for _, want := range ordered {
		idx := strings.Index(out[pos:], want)
		require.GreaterOrEqual(t, idx, 0, "missing or out of order: %q", want)
		pos += idx + len(want)
	}
	assert.True(t, strings.HasSuffix(out, closingInstruction))
}

func TestBuildOmitsAbsentFields(t *testing.T) {
	persona := &model.AgentPersonality{Name: "Marcus"}
	out := Build(persona, "Duty", nil)

	assert.True(t, strings.HasPrefix(out, "You are Marcus."))
	for _, absent := range []string{"personality traits", "archetype", "worldview", "knowledge", "quirks", "voice", "temperament"} {
		assert.NotContains(t, out, absent)
	}
	assert.Contains(t, out, StyleDirective(model.StyleBalanced))
	assert.Contains(t, out, "No one has spoken yet.")
	assert.Contains(t, out, "2 to 4 sentences")
}

func TestStyleDirectiveVocabulary(t *testing.T) {
	seen := map[string]bool{}
	for _, style := range model.ResponseStyles {
		d := StyleDirective(style)
		assert.NotEmpty(t, d)
		assert.False(t, seen[d], "style %s shares a directive", style)
		seen[d] = true
	}
	assert.Equal(t, StyleDirective(model.StyleBalanced), StyleDirective("sarcastic"))
	assert.Equal(t, StyleDirective(model.StyleBalanced), StyleDirective(""))
}

func TestTranscriptNamesAgentsAndSkipsErrors(t *testing.T) {
	msgs := []model.Message{
		{AgentPersonalityID: "a", Content: "hello", MessageType: model.MessageResponse},
		{AgentPersonalityID: "b", Content: "provider timed out", MessageType: model.MessageError},
		{AgentPersonalityID: "ghost", Content: "boo", MessageType: model.MessageStandard},
	}
	turns := Transcript(msgs, map[string]string{"a": "Ada", "b": "Rumi"})

	assert.Equal(t, []Turn{
		{AgentName: "Ada", Content: "hello"},
		{AgentName: "Unknown", Content: "boo"},
	}, turns)
}

func TestParseInsights(t *testing.T) {
	reply := `Here is what stood out:
1. Machines imitate reasoning.
2) Definitions matter more than answers.
 3.   Poetry resists formalisation.
- not numbered
4. Stoic restraint framed the risks.
5. Everyone agreed on uncertainty.
6. This one is dropped.`

	insights := ParseInsights(reply)
	assert.Equal(t, []string{
		"Machines imitate reasoning.",
		"Definitions matter more than answers.",
		"Poetry resists formalisation.",
		"Stoic restraint framed the risks.",
		"Everyone agreed on uncertainty.",
	}, insights)

	assert.Empty(t, ParseInsights("no list here"))
}

func TestBuildInsightsPrompt(t *testing.T) {
	out := BuildInsightsPrompt("Tides", []Turn{{AgentName: "Jane", Content: "The moon pulls."}})
	assert.Contains(t, out, "Topic: Tides")
	assert.Contains(t, out, "Jane: The moon pulls.")
	assert.Contains(t, out, "numbered list")
}
