package bot

import (
	"fmt"
	"strings"

	"github.com/nimasrn/balance-bot/internal/model"
)

const historyTimeLayout = "2006-01-02 15:04:05"

const (
	msgTransferCancelled = "❌ Transfer cancelled."
	msgSessionExpired    = "❌ Transfer session expired. Please start again with /transfer"
	msgInvalidAmount     = "❌ Invalid amount! Please enter a valid number.\nExample: 50 or 123.45"
	msgSelectDirection   = "Select transfer direction:"
	msgResetPrompt       = "⚠️ Are you sure you want to reset all balances to default?\nThis will clear all transaction history."
	msgResetCancelled    = "❌ Reset cancelled."
	msgNoUsers           = "❌ No users found in the system."
	msgNoTransactions    = "📊 No transactions yet."
	msgInternalError     = "❌ An error occurred while processing your request. Please try again or contact support."
	msgTransferUsage     = "Usage: /transfer @username [amount]\nExample: /transfer @alice 50"
	msgIncompleteDetect  = "⚠️ I detected a transfer but couldn't extract all details. Please mention the recipient clearly and specify the amount.\nExample: 'I transferred $100 to @username'"
)

const startText = "👋 Welcome to the Balance Transfer Bot!\n\n" +
	"Available commands:\n" +
	"💰 /balance - Check current balances\n" +
	"💸 /transfer - Transfer money between users\n" +
	"🔄 /reset - Reset balances to default\n" +
	"📊 /history - View recent transactions\n" +
	"📈 /stats - View statistics\n" +
	"❓ /help - Show detailed help"

const namedHelpText = "📖 *Balance Transfer Bot Help*\n\n" +
	"*Commands:*\n" +
	"💰 /balance - View current balances of all users\n" +
	"💸 /transfer - Initiate a transfer between users\n" +
	"🔄 /reset - Reset all balances to default\n" +
	"📊 /history - View recent transaction history\n" +
	"📈 /stats - View bot statistics\n" +
	"❓ /help - Display this help message\n\n" +
	"*How to Transfer:*\n" +
	"1. Use /transfer command\n" +
	"2. Select transfer direction\n" +
	"3. Enter the amount\n" +
	"4. Confirm the transfer"

const groupHelpText = "🤖 *Balance Transfer Bot*\n\n" +
	"*How it works:*\n" +
	"Just announce your transfer naturally:\n" +
	"• 'I transferred $100 to @alice'\n" +
	"• 'Sent $50 to @bob'\n" +
	"• '@charlie I sent you $75'\n\n" +
	"*Commands:*\n" +
	"/mybalance - Check your balance\n" +
	"/balances - See all group balances\n" +
	"/users - See registered users\n" +
	"/history - View recent transfers\n" +
	"/transfer @user amount - Transfer directly\n" +
	"/help - Show this message\n\n" +
	"*Note:* New members get %s automatically!"

func renderAllBalances(summary *model.BalanceSummary) string {
	return renderBalances("💰 All Balances:", "Users", summary)
}

func renderGroupBalances(summary *model.BalanceSummary) string {
	return renderBalances("💰 Group Balances", "Members", summary)
}

func renderBalances(title, countLabel string, summary *model.BalanceSummary) string {
	if summary == nil || len(summary.Users) == 0 {
		return msgNoUsers
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for i, u := range summary.Users {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, u.DisplayName(), model.FormatMoney(u.Balance))
	}
	fmt.Fprintf(&b, "\n📊 Total: %s", model.FormatMoney(summary.Total))
	fmt.Fprintf(&b, "\n👥 %s: %d", countLabel, summary.Count)
	return b.String()
}

func renderHistory(txns []*model.Transaction) string {
	if len(txns) == 0 {
		return msgNoTransactions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Recent Transactions (Last %d):\n\n", len(txns))
	for i, t := range txns {
		fmt.Fprintf(&b, "%d. 💸 %s | %s → %s\n   %s\n",
			i+1,
			model.FormatMoney(t.Amount),
			partyName(t.FromName, t.FromUserID),
			partyName(t.ToName, t.ToUserID),
			t.CreatedAt.Format(historyTimeLayout))
	}
	return b.String()
}

func partyName(name string, id int64) string {
	if name == "" {
		return fmt.Sprintf("User %d", id)
	}
	return name
}

func renderUsers(users []*model.User) string {
	if len(users) == 0 {
		return "No users registered yet."
	}

	var b strings.Builder
	b.WriteString("👥 Registered Users:\n\n")
	for i, u := range users {
		fmt.Fprintf(&b, "%d. %s\n", i+1, u.DisplayName())
	}
	fmt.Fprintf(&b, "\n💡 Total: %d users", len(users))
	return b.String()
}

func renderStats(stats *model.Stats) string {
	return fmt.Sprintf("📈 *Bot Statistics*\n\n👥 Total Users: %d\n💸 Total Transactions: %d\n💰 Total Balance: %s",
		stats.Users, stats.Transactions, model.FormatMoney(stats.Total))
}

func renderOwnBalance(u *model.User) string {
	return fmt.Sprintf("💰 Your Balance\n\n%s: %s", u.DisplayName(), model.FormatMoney(u.Balance))
}

func renderDirectionPrompt(direction string, available string) string {
	return fmt.Sprintf("💸 Transfer: %s\n\nAvailable balance: %s\n\nPlease enter the amount to transfer:\n(Type a number or /cancel to cancel)",
		direction, available)
}

func renderConfirm(c *Conversation) string {
	return fmt.Sprintf("💸 Confirm transfer\n\n%s from %s to %s\n\nProceed?",
		model.FormatMoney(*c.Amount), c.FromLabel, c.ToLabel)
}

func renderUnknownRecipient(to string, users []*model.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		if name == "" {
			name = strings.TrimPrefix(u.DisplayName(), "@")
		}
		names = append(names, "@"+name)
	}
	return fmt.Sprintf("❌ User '%s' not found in the system.\n\nAvailable users: %s\n\n💡 Tip: They need to send at least one message in this group first.",
		to, strings.Join(names, ", "))
}

func renderTransferResult(res *model.TransferResult) string {
	if !res.Success {
		return res.Message
	}
	return fmt.Sprintf("%s\n\nUpdated balances:\n• %s: %s\n• %s: %s", res.Message,
		res.From.DisplayName(), model.FormatMoney(res.From.Balance),
		res.To.DisplayName(), model.FormatMoney(res.To.Balance))
}

func renderGroupTransfer(res *model.TransferResult) string {
	from, to := res.From, res.To
	return fmt.Sprintf("✅ Transfer recorded!\n💸 %s from %s to %s\n\nUpdated balances:\n• %s: %s\n• %s: %s",
		model.FormatMoney(res.Transaction.Amount), from.DisplayName(), to.DisplayName(),
		from.DisplayName(), model.FormatMoney(from.Balance),
		to.DisplayName(), model.FormatMoney(to.Balance))
}
