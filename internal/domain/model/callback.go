package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback tags and operator commands shared by notifications and the conversation router.
const (
	CallbackApproveDocument = "approve_document_"
	CallbackRejectDocument  = "reject_document_"

	CommandApproveWithdraw = "approve_withdraw_"
	CommandDeclineWithdraw = "decline_withdraw_"
)

// DocumentReviewData builds "approve_document_{doc}_{tx}" or "reject_document_{doc}_{tx}".
func DocumentReviewData(approve bool, docID, txID int64) string {
	prefix := CallbackRejectDocument
	if approve {
		prefix = CallbackApproveDocument
	}
	return fmt.Sprintf("%s%d_%d", prefix, docID, txID)
}

// ParseDocumentReviewData is the inverse of DocumentReviewData.
func ParseDocumentReviewData(data string) (approve bool, docID, txID int64, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(data, CallbackApproveDocument):
		approve, rest = true, strings.TrimPrefix(data, CallbackApproveDocument)
	case strings.HasPrefix(data, CallbackRejectDocument):
		rest = strings.TrimPrefix(data, CallbackRejectDocument)
	default:
		return false, 0, 0, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return false, 0, 0, false
	}
	d, err1 := strconv.ParseInt(parts[0], 10, 64)
	t, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || d <= 0 || t <= 0 {
		return false, 0, 0, false
	}
	return approve, d, t, true
}
