package service

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/roundtable/internal/model"
)

const (
	maxContentLength = 10000
	maxNameLength    = 100
	maxTitleLength   = 200
	maxShortText     = 100
	maxLongText      = 4000
	maxListItems     = 20
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// validateContent checks message content.
func validateContent(v *ValidationError, content string) {
	switch {
	case !utf8.ValidString(content):
		v.add("content", "must be valid UTF-8")
	case strings.TrimSpace(content) == "":
		v.add("content", "cannot be empty")
	case utf8.RuneCountInString(content) > maxContentLength:
		v.add("content", fmt.Sprintf("must be at most %d characters", maxContentLength))
	}
}

func validateText(v *ValidationError, field string, value *string, max int) {
	if value == nil {
		return
	}
	if !utf8.ValidString(*value) {
		v.add(field, "must be valid UTF-8")
		return
	}
	if utf8.RuneCountInString(*value) > max {
		v.add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func validateList(v *ValidationError, field string, items []string) {
	if len(items) > maxListItems {
		v.add(field, fmt.Sprintf("must have at most %d entries", maxListItems))
		return
	}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			v.add(field, "entries cannot be empty")
			return
		}
		if utf8.RuneCountInString(item) > maxShortText {
			v.add(field, fmt.Sprintf("entries must be at most %d characters", maxShortText))
			return
		}
	}
}

// validatePersonality checks every field present in in. requireName is set
// on create.
func validatePersonality(in *model.PersonalityInput, requireName bool) error {
	v := &ValidationError{}

	switch {
	case in.Name == nil:
		if requireName {
			v.add("name", "is required")
		}
	case strings.TrimSpace(*in.Name) == "":
		v.add("name", "cannot be empty")
	default:
		validateText(v, "name", in.Name, maxNameLength)
	}

	validateText(v, "title", in.Title, maxTitleLength)
	validateText(v, "description", in.Description, maxLongText)
	validateText(v, "system_prompt", in.SystemPrompt, maxLongText)
	validateText(v, "archetype", in.Archetype, maxShortText)
	validateText(v, "voice_type", in.VoiceType, maxShortText)
	validateText(v, "speech_pattern", in.SpeechPattern, maxLongText)
	validateText(v, "perspective", in.Perspective, maxLongText)
	validateText(v, "temperament", in.Temperament, maxShortText)
	validateText(v, "avatar", in.Avatar, 255)

	validateList(v, "personality_traits", in.PersonalityTraits)
	validateList(v, "quirks", in.Quirks)
	validateList(v, "knowledge_domains", in.KnowledgeDomains)
	validateList(v, "specialties", in.Specialties)

	if in.ResponseStyle != nil && *in.ResponseStyle != "" && !slices.Contains(model.ResponseStyles, *in.ResponseStyle) {
		v.add("response_style", "must be one of "+strings.Join(model.ResponseStyles, ", "))
	}
	if in.Color != nil && *in.Color != "" && !hexColor.MatchString(*in.Color) {
		v.add("color", "must be a hex color such as #3366ff")
	}
	if in.Model != nil {
		if strings.TrimSpace(*in.Model) == "" {
			v.add("model", "cannot be empty")
		} else {
			validateText(v, "model", in.Model, maxShortText)
		}
	}
	if in.Temperature != nil {
		t, err := strconv.ParseFloat(strings.TrimSpace(*in.Temperature), 64)
		if err != nil || t < 0 || t > 1 {
			v.add("temperature", "must be a number between 0 and 1")
		}
	}

	return v.err()
}
