package detection

import (
	"context"
	"regexp"
	"strings"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/prom"
	"github.com/shopspring/decimal"
)

const (
	ConfidenceComplete = 0.95
	ConfidencePartial  = 0.6
)

const amountPattern = `\$?\s?(\d[\d,]*(?:\.\d+)?)`

var (
	// I sent $100 to @alice / sent 100 to alice
	sentToPattern = regexp.MustCompile(`(?i)\b(?:sent|transferred|paid|gave)\s+` + amountPattern + `\s*(?:dollars|usd|bucks)?\s+to\s+@?([a-z_][\w]*)`)
	// paid @alice $100
	paidUserPattern = regexp.MustCompile(`(?i)\b(?:paid|sent|transferred)\s+@?([a-z_][\w]*)\s+` + amountPattern)
	// @alice I sent you $100
	mentionYouPattern = regexp.MustCompile(`(?i)@([a-z_][\w]*)[\s,:]+i\s+(?:sent|transferred|paid|gave)\s+you\s+` + amountPattern)

	verbPattern      = regexp.MustCompile(`(?i)\b(?:sent|transferred|paid|gave)\b`)
	bareAmount       = regexp.MustCompile(`(?i)(?:\$\s?(\d[\d,]*(?:\.\d+)?))|(?:\b(\d[\d,]*(?:\.\d+)?)\s*(?:dollars|usd|bucks)\b)|(?:\b(\d[\d,]*(?:\.\d+)?)\b)`)
	bareRecipient    = regexp.MustCompile(`(?i)(?:\bto\s+@?([a-z_][\w]*))|(?:@([a-z_][\w]*))`)
	futurePattern    = regexp.MustCompile(`(?i)\b(?:will|going to|gonna|should|shall|plan(?:ning)? to|about to|would)\b`)
	requestPattern   = regexp.MustCompile(`(?i)\b(?:please send|pls send|can you|could you|send me|pay me)\b`)
	pronounRecipient = map[string]bool{"you": true, "me": true, "him": true, "her": true, "them": true, "us": true, "it": true}
)

// RuleDetector recognises past-tense transfer announcements with regular
// expressions. It never errors.
type RuleDetector struct{}

func NewRuleDetector() *RuleDetector {
	return &RuleDetector{}
}

func (d *RuleDetector) Detect(_ context.Context, text, senderHint string) (*model.DetectionResult, error) {
	res := d.detect(strings.TrimSpace(text), normalizeUsername(senderHint))
	prom.IncDetection("rules", ruleOutcome(res))
	return res, nil
}

func (d *RuleDetector) detect(text, sender string) *model.DetectionResult {
	if text == "" {
		return model.NoTransfer("empty message")
	}
	if strings.Contains(text, "?") {
		return model.NoTransfer("question")
	}
	if futurePattern.MatchString(text) {
		return model.NoTransfer("future or conditional statement")
	}
	if requestPattern.MatchString(text) {
		return model.NoTransfer("request")
	}

	if m := sentToPattern.FindStringSubmatch(text); m != nil {
		if res := complete(sender, m[2], m[1], "sent amount to recipient"); res != nil {
			return res
		}
	}
	if m := mentionYouPattern.FindStringSubmatch(text); m != nil {
		if res := complete(sender, m[1], m[2], "mentioned recipient was sent an amount"); res != nil {
			return res
		}
	}
	if m := paidUserPattern.FindStringSubmatch(text); m != nil {
		if res := complete(sender, m[1], m[2], "paid recipient an amount"); res != nil {
			return res
		}
	}

	if !verbPattern.MatchString(text) {
		return model.NoTransfer("no transfer verb")
	}

	res := &model.DetectionResult{
		IsTransfer: true,
		From:       sender,
		Confidence: ConfidencePartial,
		Reasoning:  "transfer verb without full details",
	}
	if m := bareRecipient.FindStringSubmatch(text); m != nil {
		to := m[1]
		if to == "" {
			to = m[2]
		}
		if !pronounRecipient[strings.ToLower(to)] {
			res.To = normalizeUsername(to)
		}
	}
	if m := bareAmount.FindStringSubmatch(text); m != nil {
		raw := firstNonEmpty(m[1:]...)
		if amount, ok := parsePositive(raw); ok {
			res.Amount = &amount
		}
	}
	if res.To == "" && res.Amount == nil {
		return model.NoTransfer("transfer verb without recipient or amount")
	}
	return res
}

func complete(sender, to, rawAmount, reason string) *model.DetectionResult {
	to = normalizeUsername(to)
	if pronounRecipient[to] {
		return nil
	}
	amount, ok := parsePositive(rawAmount)
	if !ok {
		return nil
	}
	return &model.DetectionResult{
		IsTransfer: true,
		From:       sender,
		To:         to,
		Amount:     &amount,
		Confidence: ConfidenceComplete,
		Reasoning:  reason,
	}
}

func parsePositive(raw string) (decimal.Decimal, bool) {
	amount, err := model.ParseAmount(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func ruleOutcome(res *model.DetectionResult) string {
	switch {
	case res.IsTransfer && res.Complete():
		return outcomeTransfer
	case res.IsTransfer:
		return outcomePartial
	case res.Reasoning == "question" || res.Reasoning == "request" || strings.HasPrefix(res.Reasoning, "future"):
		return outcomeRejected
	}
	return outcomeNone
}
