// Package keyboard builds reply keyboards for quick answers.
package keyboard

import tele "gopkg.in/telebot.v4"

// PerRow is the number of buttons placed on one keyboard row.
const PerRow = 3

// Remove returns a markup that hides any shown keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Options lays labels out PerRow to a row as a one-time reply keyboard.
// No labels yields a markup that removes the previous keyboard.
func Options(labels []string) *tele.ReplyMarkup {
	if len(labels) == 0 {
		return Remove()
	}
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rows := make([]tele.Row, 0, (len(labels)+PerRow-1)/PerRow)
	for start := 0; start < len(labels); start += PerRow {
		end := min(start+PerRow, len(labels))
		buttons := make([]tele.Btn, 0, end-start)
		for _, label := range labels[start:end] {
			buttons = append(buttons, markup.Text(label))
		}
		rows = append(rows, markup.Row(buttons...))
	}
	markup.Reply(rows...)
	return markup
}
