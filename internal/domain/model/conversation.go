package model

// ConversationStep names a state of the per-user conversation machine.
type ConversationStep string

const (
	StepIdle                ConversationStep = ""
	StepOnboarding          ConversationStep = "onboarding"
	StepAwaitingEmail       ConversationStep = "awaiting_email"
	StepAwaitingRail        ConversationStep = "awaiting_payment_method"
	StepAwaitingDocument    ConversationStep = "awaiting_payment_document"
	StepBroadcastMessage    ConversationStep = "broadcast_message"
	StepBroadcastOption     ConversationStep = "broadcast_button_option"
	StepBroadcastButtonText ConversationStep = "broadcast_button_text"
	StepBroadcastButtonURL  ConversationStep = "broadcast_button_url"
	StepBroadcastConfirm    ConversationStep = "broadcast_confirm"
	StepWithdrawDetails     ConversationStep = "withdraw_details"
)

// IsBroadcast reports whether the step belongs to the operator broadcast flow.
func (s ConversationStep) IsBroadcast() bool {
	switch s {
	case StepBroadcastMessage, StepBroadcastOption, StepBroadcastButtonText, StepBroadcastButtonURL, StepBroadcastConfirm:
		return true
	}
	return false
}

// BroadcastDraft is the message an operator composes before sending it to everybody.
type BroadcastDraft struct {
	FromChatID int64  `json:"from_chat_id"`
	MessageID  int    `json:"message_id"`
	ButtonText string `json:"button_text,omitempty"`
	ButtonURL  string `json:"button_url,omitempty"`
}

// Conversation is the FSM context kept for the lifetime of one conversation.
type Conversation struct {
	Step          ConversationStep `json:"step"`
	Intent        *PurchaseIntent  `json:"intent,omitempty"`
	Broadcast     *BroadcastDraft  `json:"broadcast,omitempty"`
	TransactionID int64            `json:"transaction_id,omitempty"`
	PaymentID     string           `json:"payment_id,omitempty"`
}

func (c *Conversation) Reset() { *c = Conversation{} }
