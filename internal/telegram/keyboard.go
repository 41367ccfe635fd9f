package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"numinfo_bot/internal/config"
)

// Callback data values and prefixes recognized by the dispatcher.
const (
	callbackTryAgain       = "try_again"
	callbackRefreshBalance = "refresh_balance"
	callbackMyReferrals    = "my_referrals"
	callbackDepositPrefix  = "deposit_"
	callbackCheckPayPrefix = "check_pay_"
)

// joinKeyboard builds one URL button per un-joined channel plus a single
// retry row.
func joinKeyboard(missing []config.Channel) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(missing)+1)
	for _, channel := range missing {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: channel.Label, URL: channel.JoinURL},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "Try Again", CallbackData: callbackTryAgain},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// mainMenuKeyboard is the persistent reply keyboard; its labels map back to
// commands through labelToCommand.
func mainMenuKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: labelNumber}, {Text: labelBalance}},
			{{Text: labelRefer}, {Text: labelDeposit}},
			{{Text: labelHelp}},
		},
		ResizeKeyboard: true,
	}
}

func balanceKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Refresh", CallbackData: callbackRefreshBalance}},
		},
	}
}

func referKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "My referrals", CallbackData: callbackMyReferrals}},
		},
	}
}

func depositKeyboard(amounts []int64) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(amounts))
	for _, amount := range amounts {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%d", amount),
			CallbackData: fmt.Sprintf("%s%d", callbackDepositPrefix, amount),
		}})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func checkPaymentKeyboard(orderID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Check payment status", CallbackData: callbackCheckPayPrefix + orderID}},
		},
	}
}
