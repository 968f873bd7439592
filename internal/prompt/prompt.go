package prompt

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/partsbot/internal/gemini"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

const persona = `You are an expert PC Shop Sales Assistant. You are knowledgeable about PC components, gaming rigs, workstations, and budget builds.

Your role is to:
1. Understand customer needs, budget, and use case (gaming, streaming, editing, work, etc.)
2. Recommend appropriate PC parts and specifications from our inventory
3. Explain technical specifications in an easy-to-understand way
4. Provide honest recommendations based on budget and use case
5. Be friendly, professional, and helpful
6. Ask clarifying questions if needed
7. Suggest complete builds or individual components`

const closing = `Always respond concisely and engage with customers naturally. Focus on making the best recommendations from our available inventory. If we don't have a specific part in stock, suggest alternatives or ask if they'd like to hear about other options.`

// NoPartsNote replaces the parts list when the catalog is empty.
const NoPartsNote = "Note: No PC parts currently available in the system."

// BuildContext renders the system instruction for the catalog and projects
// the transcript into generation history. The live user message is not
// part of history; callers pass it to the generator separately.
func BuildContext(parts []models.Part, history []models.Message) (string, []gemini.Turn) {
	return SystemInstruction(parts), History(history)
}

// SystemInstruction is deterministic for a given catalog.
func SystemInstruction(parts []models.Part) string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	if len(parts) == 0 {
		sb.WriteString(NoPartsNote)
	} else {
		sb.WriteString("Available PC Parts in our shop:\n")
		for i, p := range parts {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(PartLine(p))
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(closing)
	return sb.String()
}

// PartLine renders one catalog entry, e.g. "- GPU: RTX4070 (Specs: 12GB) - Price: $600.00".
func PartLine(p models.Part) string {
	return fmt.Sprintf("- %s: %s (Specs: %s) - Price: $%.2f", p.Type, p.Name, p.Specs, p.Price)
}

// History drops the welcome entry and incomplete entries, then maps senders
// to backend roles keeping order. Since the welcome entry is the only bot
// message that can precede the first user message, the result never starts
// with a model turn.
func History(messages []models.Message) []gemini.Turn {
	turns := make([]gemini.Turn, 0, len(messages))
	for _, m := range messages {
		if m.ID == models.WelcomeID {
			continue
		}
		if m.Sender == "" || m.Text == "" {
			continue
		}
		role := gemini.RoleModel
		if m.Sender == models.SenderUser {
			role = gemini.RoleUser
		}
		turns = append(turns, gemini.Turn{Role: role, Text: m.Text})
	}
	return turns
}
