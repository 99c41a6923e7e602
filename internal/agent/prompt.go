package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/h1v3-io/leadflow/internal/availability"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// DefaultInstructions is the assistant persona used when none is configured.
const DefaultInstructions = "Você é Roberto, assistente virtual da Verzel, especializado em marcar reuniões. " +
	"Siga O FLUXO estritamente: pedir nome → entender necessidade (dor) → confirmar interesse → " +
	"oferecer horários → coletar email → agendar. " +
	"Responda de forma curta (1-3 frases) e nunca pergunte múltiplas coisas ao mesmo tempo."

var stageGuidance = map[protocol.Stage]string{
	protocol.StageAskName:         "Cumprimente o cliente e pergunte o nome dele.",
	protocol.StageAskPain:         "Pergunte qual necessidade ou problema o cliente quer resolver.",
	protocol.StageConfirmInterest: "Resuma a necessidade em uma frase e pergunte se o cliente quer agendar uma reunião com a equipe.",
	protocol.StageChooseTime:      "Peça para o cliente escolher um dos horários oferecidos pelo número.",
	protocol.StageCollectEmail:    "Peça o email do cliente para confirmar a reunião.",
	protocol.StageDone:            "O fluxo terminou. Responda com cordialidade, sem pedir novos dados.",
}

// BuildSystemPrompt assembles the system message for one model call.
// resumed is set when the last lead message was already handled by a tool
// earlier in the same turn.
func BuildSystemPrompt(instructions string, sess *protocol.Session, now time.Time, resumed bool) string {
	var b strings.Builder

	if instructions == "" {
		instructions = DefaultInstructions
	}
	b.WriteString(instructions)
	b.WriteString("\n\n")

	b.WriteString("# Estado\n")
	fmt.Fprintf(&b, "Etapa atual: %s\n", sess.Stage)
	if missing := sess.Fields.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, "Campos faltando: %s\n", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, "Agora: %s (UTC-3)\n", now.In(availability.DisplayZone).Format("2006-01-02 15:04"))
	b.WriteString("\n")

	if known := knownFields(sess.Fields); known != "" {
		b.WriteString("# Dados do cliente\n")
		b.WriteString(known)
		b.WriteString("\n")
	}

	if g, ok := stageGuidance[sess.Stage]; ok {
		b.WriteString("# Próximo passo\n")
		b.WriteString(g)
		b.WriteString("\n")
	}
	if resumed {
		b.WriteString("A última mensagem do cliente já foi registrada. Faça agora a pergunta desta etapa e só chame a ferramenta quando o cliente responder a ela.\n")
	}

	b.WriteString("\n# Regras\n")
	b.WriteString("- Use a ferramenta da etapa assim que o cliente fornecer a informação pedida.\n")
	b.WriteString("- Nunca invente horários; os horários disponíveis vêm da ferramenta.\n")
	b.WriteString("- Faça uma pergunta por vez.\n")

	return b.String()
}

func knownFields(f protocol.Fields) string {
	var b strings.Builder
	if f.Name != "" {
		fmt.Fprintf(&b, "- Nome: %s\n", f.Name)
	}
	if f.Pain != "" {
		fmt.Fprintf(&b, "- Necessidade: %s\n", f.Pain)
	}
	if len(f.OfferedSlots) > 0 {
		b.WriteString("- Horários oferecidos:\n")
		for i, s := range f.OfferedSlots {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, availability.FormatSlotStart(s.Start))
		}
	}
	if f.ChosenTime != nil {
		fmt.Fprintf(&b, "- Horário escolhido: %s\n", availability.FormatDay(*f.ChosenTime))
	}
	if f.Email != "" {
		fmt.Fprintf(&b, "- Email: %s\n", f.Email)
	}
	return b.String()
}
