package reminder

import "fmt"

type pluralForms struct {
	one, few, many string
}

var (
	dayForms    = pluralForms{"день", "дня", "дней"}
	hourForms   = pluralForms{"час", "часа", "часов"}
	minuteForms = pluralForms{"минута", "минуты", "минут"}
)

// plural picks the Russian noun form for n: 1, 21, 31 take "one";
// 2-4, 22-24 take "few"; everything else, including 11-14, takes "many".
func plural(n int, f pluralForms) string {
	if n < 0 {
		n = -n
	}
	mod10, mod100 := n%10, n%100
	switch {
	case mod10 == 1 && mod100 != 11:
		return f.one
	case mod10 >= 2 && mod10 <= 4 && (mod100 < 12 || mod100 > 14):
		return f.few
	default:
		return f.many
	}
}

// FormatRemaining renders a duration in minutes using its largest whole
// unit: days from one day up, hours from one hour up, otherwise minutes.
func FormatRemaining(minutes int) string {
	switch {
	case minutes >= minutesPerDay:
		days := minutes / minutesPerDay
		return fmt.Sprintf("%d %s", days, plural(days, dayForms))
	case minutes >= minutesPerHour:
		hours := minutes / minutesPerHour
		return fmt.Sprintf("%d %s", hours, plural(hours, hourForms))
	default:
		return fmt.Sprintf("%d %s", minutes, plural(minutes, minuteForms))
	}
}

// ComposeText builds the reminder sent to the user.
func ComposeText(noteTitle string, g Gradation) string {
	return fmt.Sprintf("До окончания дедлайна по todo \"%s\" осталось %s", noteTitle, g.Text)
}
