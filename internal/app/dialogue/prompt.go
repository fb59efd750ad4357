package dialogue

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// Image is an inline picture attached to a user turn.
type Image struct {
	MIMEType string
	Data     []byte
}

// ComposeTurn builds the user entry for this turn: the trimmed text if any,
// then the image if any. A turn with neither becomes the canonical greeting.
func ComposeTurn(text string, image *Image) domain.ConversationEntry {
	entry := domain.ConversationEntry{Role: domain.RoleUser}

	if t := strings.TrimSpace(text); t != "" {
		entry.Parts = append(entry.Parts, domain.Part{Text: t})
	}
	if image != nil && len(image.Data) > 0 {
		entry.Parts = append(entry.Parts, domain.Part{InlineData: &domain.Blob{
			MIMEType: image.MIMEType,
			Data:     image.Data,
		}})
	}
	if len(entry.Parts) == 0 {
		entry.Parts = []domain.Part{{Text: domain.GreetingText}}
	}
	return entry
}

// InstructionInput is everything the per-turn instruction depends on.
type InstructionInput struct {
	UserText  string
	HasImage  bool
	Grounding domain.GroundingContext
	// Persona is the selected agent's own prompt, if any.
	Persona string
}

const basePrompt = `You are a friendly travel agent with memory of our conversation.

Always reply with a valid JSON object: {"messages": [{"text": "...", "facialExpression": "...", "animation": "..."}]}.
`

const (
	locationUnknownPrompt  = "The user's current location is unknown: they have not shared it. Do not assume or mention any nearby places."
	locationNoPlacesPrompt = "IMPORTANT: The user's CURRENT PHYSICAL LOCATION is known, but no notable places were found nearby."
	locationPlacesPrompt   = "IMPORTANT: The user's CURRENT PHYSICAL LOCATION has these nearby places: %s. This is where they are RIGHT NOW, not necessarily what's in any image they might share."
)

const imagePrompt = "IMPORTANT: The user has shared an image. This image may show a DIFFERENT location than where they currently are. Analyze the image content and provide travel advice about what you see in the image, but remember to distinguish between their current location and the location shown in the image."

const closingPrompt = `CRITICAL INSTRUCTION: If the user shares an image of a place:
1. Clearly distinguish between their current physical location and the location shown in the image
2. If they ask about visiting the place in the image, provide advice about traveling FROM their current location TO the place in the image
3. If they're asking about the place in the image itself, focus on that destination
4. Don't keep it too long.

Be enthusiastic and helpful, but always maintain clarity about location context!`

// ComposeInstruction renders the instruction block for one turn. The output
// depends only on in.
func ComposeInstruction(in InstructionInput) string {
	var b strings.Builder

	b.WriteString(basePrompt)
	if p := strings.TrimSpace(in.Persona); p != "" {
		b.WriteString("Your persona: ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\nFacialExpressions: ")
	b.WriteString(joinTags(domain.FacialExpressions))
	b.WriteString(".\nAnimations: ")
	b.WriteString(joinTags(domain.Animations))
	b.WriteString(".\n\n")

	b.WriteString(locationLine(in.Grounding))
	b.WriteString("\n\n")

	if in.HasImage {
		b.WriteString(imagePrompt)
		b.WriteString("\n\n")
	}

	if t := strings.TrimSpace(in.UserText); t != "" {
		b.WriteString(`User's message: "`)
		b.WriteString(t)
		b.WriteString(`"`)
	} else {
		b.WriteString("The user has sent you an image or is greeting you.")
	}
	b.WriteString("\n\n")

	b.WriteString(closingPrompt)
	return b.String()
}

func locationLine(g domain.GroundingContext) string {
	switch {
	case !g.LocationKnown:
		return locationUnknownPrompt
	case len(g.Places) == 0:
		return locationNoPlacesPrompt
	default:
		return fmt.Sprintf(locationPlacesPrompt, g.Summary())
	}
}

func joinTags[T ~string](tags []T) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}
