package telegram

import "github.com/agentworkforce/fleetdesk/internal/intake"

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboardMarkup struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
	Selective       bool               `json:"selective"`
}

type replyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
	Selective      bool `json:"selective"`
}

type inlineKeyboardButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

// replyMarkup maps a Reply onto the Bot API reply_markup object. A link wins
// over choices because a message carries only one markup.
func replyMarkup(reply intake.Reply) any {
	switch {
	case reply.Link != nil && reply.Link.URL != "":
		return inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
			{Text: reply.Link.Text, URL: reply.Link.URL},
		}}}
	case len(reply.Choices) > 0:
		rows := make([][]keyboardButton, 0, len(reply.Choices))
		for _, choices := range reply.Choices {
			row := make([]keyboardButton, 0, len(choices))
			for _, choice := range choices {
				row = append(row, keyboardButton{Text: choice})
			}
			rows = append(rows, row)
		}
		return replyKeyboardMarkup{
			Keyboard:        rows,
			ResizeKeyboard:  true,
			OneTimeKeyboard: !reply.Persistent,
			Selective:       true,
		}
	case reply.RemoveKeyboard:
		return replyKeyboardRemove{RemoveKeyboard: true, Selective: true}
	default:
		return nil
	}
}
