package analysis

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/adboard-backend/pkg/enums"
)

// Mode selects which part of the verdict a call asks for.
type Mode int

const (
	ModeCombined Mode = iota
	ModeModeration
	ModeTags
)

func (m Mode) String() string {
	switch m {
	case ModeModeration:
		return "moderation"
	case ModeTags:
		return "tags"
	default:
		return "combined"
	}
}

// Input is the dynamic listing content sent to the model.
type Input struct {
	Title        string
	Description  string
	CallToAction string
	Location     string
	Interests    []string
	AgeMin       *int
	AgeMax       *int
}

const rubric = `Moderation score rubric (integer 0-10):
0 = illegal, dangerous, sexual content involving minors, scams, or content you will not evaluate
1-2 = hateful, harassing, explicit adult content, weapons, or drugs
3-4 = misleading claims, gambling, or adult-only products aimed at a general audience
5-6 = borderline but acceptable commercial content
7-8 = ordinary commercial content
9-10 = clearly safe, family-friendly content
Content with an age restriction below 18 must be scored as if shown to minors.`

var systemPrompts = buildSystemPrompts()

func buildSystemPrompts() map[Mode]string {
	vocabulary := tagVocabularyList()
	prompts := make(map[Mode]string, 3)
	prompts[ModeCombined] = strings.Join([]string{
		"You review classified ads for a marketplace. Score the ad for safety and assign topic tags.",
		rubric,
		"Allowed tags: " + vocabulary + ".",
		"Assign between 2 and 5 tags from the allowed list only. Use an empty tag list when the score is 0.",
		`Respond with strict JSON only, no prose: {"score": <0-10>, "reasons": [<short strings>] or null, "tags": [<tags>]}`,
	}, "\n\n")
	prompts[ModeModeration] = strings.Join([]string{
		"You review classified ads for a marketplace. Score the ad for safety.",
		rubric,
		`Respond with strict JSON only, no prose: {"score": <0-10>, "reasons": [<short strings>] or null}`,
	}, "\n\n")
	prompts[ModeTags] = strings.Join([]string{
		"You categorize classified ads for a marketplace.",
		"Allowed tags: " + vocabulary + ".",
		"Assign between 2 and 5 tags from the allowed list only.",
		`Respond with strict JSON only, no prose: {"tags": [<tags>]}`,
	}, "\n\n")
	return prompts
}

// SystemPrompt returns the fixed instruction for mode.
func SystemPrompt(mode Mode) string {
	return systemPrompts[mode]
}

// UserMessage renders the listing fields. Age bounds are always stated.
func UserMessage(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(in.Title))
	writeOptional(&b, "Description", in.Description)
	writeOptional(&b, "Call to action", in.CallToAction)
	writeOptional(&b, "Location", in.Location)
	if len(in.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(in.Interests, ", "))
	}
	fmt.Fprintf(&b, "Minimum audience age: %s\n", ageText(in.AgeMin))
	fmt.Fprintf(&b, "Maximum audience age: %s\n", ageText(in.AgeMax))
	return strings.TrimRight(b.String(), "\n")
}

func writeOptional(b *strings.Builder, label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fmt.Fprintf(b, "%s: %s\n", label, v)
	}
}

func ageText(v *int) string {
	if v == nil {
		return "no restriction"
	}
	return fmt.Sprintf("%d", *v)
}

func tagVocabularyList() string {
	tags := enums.AdTagVocabulary()
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.String())
	}
	return strings.Join(names, ", ")
}
