package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

var weekdays = [...]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// FormatDay renders t as "02/01 às 15:04" in DisplayZone.
func FormatDay(t time.Time) string {
	return t.In(DisplayZone).Format("02/01 às 15:04")
}

// FormatSlotStart renders t with its weekday, e.g. "segunda-feira, 10/03 às 10:00".
func FormatSlotStart(t time.Time) string {
	local := t.In(DisplayZone)
	return weekdays[local.Weekday()] + ", " + FormatDay(local)
}

// FormatOffer builds the numbered slot list shown to the lead.
func FormatOffer(slots []protocol.Slot) string {
	var b strings.Builder
	b.WriteString("Ótimo! Tenho estes horários disponíveis:\n\n")
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, FormatSlotStart(s.Start))
	}
	b.WriteString("\nResponda com o número (ex: 1) para escolher.")
	return b.String()
}
