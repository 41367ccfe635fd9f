package telegram

// Reply texts. Exact wording is presentation, not contract; handlers only
// promise which message class is sent on which outcome.
const (
	textWelcome = "Welcome! This bot looks up public information for 10-digit phone numbers.\n" +
		"Use the menu below or send /help to see the commands."

	textHelp = "Commands:\n" +
		"/num <10-digit-number> — look up a number (costs %d point(s))\n" +
		"/balance — show your points\n" +
		"/refer — your referral link (+%d points per completed invite)\n" +
		"/deposit — top up your balance\n\n" +
		"Example: /num 9235895648"

	textJoinPrompt    = "Please join the following channel(s) to use this bot, then press Try Again:"
	textJoinedNow     = "You're all set. Send /help to see what I can do."
	textStillMissing  = "You still need to join the channel(s) below."
	textMenuHint      = "Use the menu buttons or /help to see the available commands."
	textDenied        = "You are not allowed to use this command."
	textNumUsage      = "Send the 10-digit number you want to look up.\nExample: 9235895648"
	textNumInvalid    = "Only 10-digit numbers are accepted. Example: /num 9235895648"
	textNumSearching  = "Searching…"
	textNumNoData     = "No data found for this number. You were not charged."
	textLookupFailed  = "Failed to fetch data from the remote service. Try again later. You were not charged."
	textNoPoints      = "You don't have enough points. Use /deposit to top up or /refer to earn more."
	textBalance       = "Your balance: %d point(s)."
	textReferIntro    = "Invite friends and you both get +%d points when they join.\nYour link:\n%s"
	textReferStats    = "Your referrals: %d completed, %d pending."
	textReferralPaid  = "One of your invites just completed — you earned +%d points!"
	textDepositOff    = "Deposits are not available right now."
	textDepositPick   = "Choose a deposit amount:"
	textDepositLink   = "Order created. Pay here:\n%s\n\nYou will be credited %d point(s) once the payment is confirmed."
	textDepositError  = "Could not create the payment order. Try again later."
	textPayPending    = "Payment not confirmed yet. Try again in a minute."
	textPayDone       = "Payment confirmed — %d point(s) credited."
	textPayRejected   = "This payment was rejected."
	textPayUnknown    = "Unknown order."
	textStats         = "Users: %d total, %d active today."
	textStatsFailed   = "Could not load stats right now."
	textBroadcastAsk  = "Send the message to broadcast (text, photo, video, or document). Send /start to cancel."
	textBroadcastBad  = "I can only broadcast text, photos, videos, or documents. Try again."
	textBroadcastRun  = "Broadcasting…"
	textBroadcastDone = "Broadcast finished: %d sent, %d failed, %d total."
	textAskUserID     = "Send the numeric Telegram user id."
	textInvalidUserID = "That is not a numeric user id. Try again."
	textAdminAdded    = "User %d is now an admin."
	textAdminRemoved  = "User %d is no longer an admin."
	textAdminFailed   = "Could not update the admin flag. Is the user registered?"
	textAskPoints     = "Now send the number of points to add (negative to subtract)."
	textInvalidPoints = "That is not a valid amount. Try again."
	textPointsAdded   = "Adjusted points for user %d by %d."
	textPointsFailed  = "Could not adjust points. Is the user registered?"
	textTryLater      = "Something went wrong. Try again later."
)

// Reply-keyboard labels and the label→command table the dispatcher consults
// before routing.
const (
	labelNumber  = "Number Info"
	labelBalance = "Balance"
	labelRefer   = "Refer & Earn"
	labelDeposit = "Deposit"
	labelHelp    = "Help"
)

var labelToCommand = map[string]string{
	labelNumber:  "/num",
	labelBalance: "/balance",
	labelRefer:   "/refer",
	labelDeposit: "/deposit",
	labelHelp:    "/help",
}
