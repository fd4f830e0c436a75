package model

import "time"

// どの経路から結果が届いたか
type PaymentChannel string

const (
	PaymentChannelRedirect PaymentChannel = "redirect"
	PaymentChannelWebhook  PaymentChannel = "webhook"
	PaymentChannelConfirm  PaymentChannel = "confirm"
)

// 決済結果コードの分類
type PaymentOutcome string

const (
	PaymentOutcomeApproved PaymentOutcome = "approved"
	PaymentOutcomeDeclined PaymentOutcome = "declined"
	PaymentOutcomeUnknown  PaymentOutcome = "unknown"
)

// 照合の結果
type PaymentEventResult string

const (
	PaymentEventTransitioned     PaymentEventResult = "transitioned"
	PaymentEventAlreadyConfirmed PaymentEventResult = "already_confirmed"
	PaymentEventAlreadyTerminal  PaymentEventResult = "already_terminal"
	PaymentEventNeedsReview      PaymentEventResult = "needs_review"
	PaymentEventNotFound         PaymentEventResult = "not_found"
	PaymentEventDeclineDeferred  PaymentEventResult = "decline_deferred"
)

// 決済結果の受信ログ（追記のみ）。
// 「どの経路で」「どの注文に」「何のコードが来て」「どうなったか」を残す。
type PaymentEvent struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	//注文が見つからなかった場合はnil
	OrderID *int64 `gorm:"index" json:"order_id"`

	Channel       PaymentChannel     `gorm:"type:varchar(20);not null;index" json:"channel"`
	Reference     string             `gorm:"type:varchar(100);index" json:"reference"`
	TransactionID string             `gorm:"type:varchar(100)" json:"transaction_id"`
	Code          string             `gorm:"type:varchar(20)" json:"code"`
	Outcome       PaymentOutcome     `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Result        PaymentEventResult `gorm:"type:varchar(30);not null;index" json:"result"`

	//受信した値をJSON文字列で保存する。
	Payload string `gorm:"type:text" json:"payload"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
