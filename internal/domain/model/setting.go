package model

// Setting keys editable from the admin API. Values are plain strings.
const (
	SettingAdminTelegramID     = "admin_telegram_id"
	SettingTrialEnabled        = "trial_enabled"
	SettingTrialDurationDays   = "trial_duration_days"
	SettingReferralPercentage  = "referral_percentage"
	SettingReferralDiscount    = "referral_discount"
	SettingForceSubscription   = "force_subscription"
	SettingChannelURL          = "channel_url"
	SettingTermsURL            = "terms_url"
	SettingPrivacyURL          = "privacy_url"
	SettingNewsChannelURL      = "news_channel_url"
	SettingSupportTelegramURL  = "support_telegram_url"
	SettingSupportUser         = "support_user"
	SettingSupportText         = "support_text"
	SettingWelcomeText         = "welcome_message_text"
	SettingWelcomePhotoPath    = "welcome_message_photo_path"
	SettingAndroidURL          = "android_url"
	SettingIOSURL              = "ios_url"
	SettingWindowsURL          = "windows_url"
	SettingLinuxURL            = "linux_url"
	SettingTonWalletAddress    = "ton_wallet_address"
	SettingBankCardDetails     = "bank_card_rf_details"
	SettingYooKassaEnabled     = "yookassa_enabled"
	SettingSBPEnabled          = "sbp_enabled"
	SettingCryptoBotEnabled    = "cryptobot_enabled"
	SettingHeleketEnabled      = "heleket_enabled"
	SettingTonEnabled          = "tonconnect_enabled"
	SettingBankTransferEnabled = "bank_card_rf_enabled"
)

// DefaultSettings seeds the settings table on first start.
var DefaultSettings = map[string]string{
	SettingTrialEnabled:        "true",
	SettingTrialDurationDays:   "3",
	SettingReferralPercentage:  "10",
	SettingReferralDiscount:    "5",
	SettingForceSubscription:   "false",
	SettingYooKassaEnabled:     "false",
	SettingSBPEnabled:          "false",
	SettingCryptoBotEnabled:    "false",
	SettingHeleketEnabled:      "false",
	SettingTonEnabled:          "false",
	SettingBankTransferEnabled: "false",
}
