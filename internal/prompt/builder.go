// Package prompt renders persona instructions and transcripts for the
// completion service.
package prompt

import (
	"regexp"
	"strings"

	"github.com/capitalize-ai/roundtable/internal/model"
)

// Turn is one prior utterance in a conversation.
type Turn struct {
	AgentName string
	Content   string
}

// styleDirectives maps each response style to its fixed instruction.
var styleDirectives = map[string]string{
	model.StyleBrief:       "Keep your reply short and to the point, favouring one sharp idea over several loose ones.",
	model.StyleDetailed:    "Give a thorough reply that explains your reasoning and supports it with specifics.",
	model.StylePoetic:      "Speak in vivid, lyrical language, using imagery and metaphor to carry your point.",
	model.StyleTechnical:   "Be precise and technical, naming mechanisms, evidence and trade-offs explicitly.",
	model.StyleQuestioning: "Advance the discussion mainly by asking probing questions that expose assumptions.",
	model.StyleBalanced:    "Balance clarity with depth, offering a considered view in plain language.",
}

const closingInstruction = "Respond in character in 2 to 4 sentences. Build on what has been said, " +
	"and do not address the other participants by name."

// StyleDirective returns the instruction for style, defaulting to balanced.
func StyleDirective(style string) string {
	if d, ok := styleDirectives[style]; ok {
		return d
	}
	return styleDirectives[model.StyleBalanced]
}

// Build renders the instruction for persona's next turn on topic given the
// prior turns in chronological order. Output depends only on the inputs.
func Build(persona *model.AgentPersonality, topic string, prior []Turn) string {
	var blocks []string
	add := func(lines ...string) {
		var kept []string
		for _, l := range lines {
			if l != "" {
				kept = append(kept, l)
			}
		}
		if len(kept) > 0 {
			blocks = append(blocks, strings.Join(kept, "\n"))
		}
	}

	identity := "You are " + persona.Name
	if persona.Title != "" {
		identity += ", " + persona.Title
	}
	add(identity+".", persona.Description)

	add(list("Your personality traits: ", persona.PersonalityTraits, ", "))
	add(field("Your archetype: ", persona.Archetype))
	add(field("Your worldview: ", persona.Perspective))
	add(
		list("Your areas of knowledge: ", persona.KnowledgeDomains, ", "),
		list("Your specialties: ", persona.Specialties, ", "),
	)
	add(
		field("Your speech pattern: ", persona.SpeechPattern),
		list("Your quirks: ", persona.Quirks, "; "),
	)
	add(
		field("Your voice: ", persona.VoiceType),
		field("Your temperament: ", persona.Temperament),
	)
	add(StyleDirective(persona.ResponseStyle))
	add("The topic under discussion is: " + strings.TrimSpace(topic))

	if len(prior) == 0 {
		add("No one has spoken yet. You open the discussion.")
	} else {
		add("Conversation so far:\n" + renderTranscript(prior))
	}

	add(closingInstruction)
	return strings.Join(blocks, "\n\n")
}

func field(label, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return label + strings.TrimSuffix(value, ".") + "."
}

func list(label string, items []string, sep string) string {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return label + strings.Join(kept, sep) + "."
}

func renderTranscript(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.AgentName + ": " + strings.TrimSpace(t.Content)
	}
	return strings.Join(lines, "\n")
}

// Transcript turns persisted messages into prompt turns, naming each by
// its agent. Error and thinking messages are left out.
func Transcript(messages []model.Message, names map[string]string) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.MessageType == model.MessageError || m.MessageType == model.MessageThinking {
			continue
		}
		name, ok := names[m.AgentPersonalityID]
		if !ok || name == "" {
			name = "Unknown"
		}
		turns = append(turns, Turn{AgentName: name, Content: m.Content})
	}
	return turns
}

// AnalystSystemPrompt is the fixed system prompt for insight generation.
const AnalystSystemPrompt = "You are a discussion analyst. You read transcripts of conversations " +
	"between several personas and distil the most important ideas, agreements and tensions. " +
	"You answer only with a numbered list."

// MaxInsights caps how many insights are parsed from the analyst reply.
const MaxInsights = 5

// BuildInsightsPrompt renders the analyst request for an ended conversation.
func BuildInsightsPrompt(topic string, turns []Turn) string {
	var b strings.Builder
	b.WriteString("Topic: ")
	b.WriteString(strings.TrimSpace(topic))
	b.WriteString("\n\nTranscript:\n")
	if len(turns) == 0 {
		b.WriteString("(no messages)")
	} else {
		b.WriteString(renderTranscript(turns))
	}
	b.WriteString("\n\nList up to 5 key insights from this discussion as a numbered list, one insight per line.")
	return b.String()
}

var numberedLine = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// ParseInsights extracts up to MaxInsights numbered lines ("1." or "1)")
// from an analyst reply.
func ParseInsights(reply string) []string {
	insights := make([]string, 0, MaxInsights)
	for _, line := range strings.Split(reply, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		insights = append(insights, text)
		if len(insights) == MaxInsights {
			break
		}
	}
	return insights
}
