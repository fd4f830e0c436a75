package usecase

import (
	"strings"

	"coffeeshop/internal/domain/model"
)

// 結果コードを approved / declined / unknown に分ける。
// どちらの集合にも無いコードは unknown（成功扱いにしない）。
type OutcomeClassifier struct {
	success map[string]struct{}
	decline map[string]struct{}
}

func NewOutcomeClassifier(successCodes []string, declineCodes []string) *OutcomeClassifier {
	c := &OutcomeClassifier{
		success: make(map[string]struct{}, len(successCodes)),
		decline: make(map[string]struct{}, len(declineCodes)),
	}
	for _, s := range successCodes {
		c.success[strings.TrimSpace(s)] = struct{}{}
	}
	for _, s := range declineCodes {
		c.decline[strings.TrimSpace(s)] = struct{}{}
	}
	return c
}

func (c *OutcomeClassifier) Classify(code string) model.PaymentOutcome {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.PaymentOutcomeUnknown
	}
	if _, ok := c.success[code]; ok {
		return model.PaymentOutcomeApproved
	}
	if _, ok := c.decline[code]; ok {
		return model.PaymentOutcomeDeclined
	}
	return model.PaymentOutcomeUnknown
}
