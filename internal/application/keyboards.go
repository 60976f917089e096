package application

import (
	"fmt"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/usecase"
)

const keyDateLayout = "02.01.2006"

func btn(text, data string) adapter.Button { return adapter.Button{Text: text, Data: data} }

func link(text, url string) adapter.Button { return adapter.Button{Text: text, URL: url} }

func row(b ...adapter.Button) []adapter.Button { return b }

func (f *Flow) backToMenuRow() []adapter.Button {
	return row(btn(f.tr.T("btn_back_to_menu"), "back_to_main_menu"))
}

func (f *Flow) mainMenuKeyboard(trial bool, keyCount int, operator bool) adapter.Keyboard {
	kb := adapter.Keyboard{}
	if trial {
		kb = append(kb, row(btn(f.tr.T("btn_trial"), "get_trial")))
	}
	kb = append(kb,
		row(btn(f.tr.T("btn_profile"), "show_profile")),
		row(btn(f.tr.T("btn_my_keys", keyCount), "manage_keys"), btn(f.tr.T("btn_referral"), "show_referral_program")),
		row(btn(f.tr.T("btn_support"), "show_help"), btn(f.tr.T("btn_about"), "show_about")),
		row(btn(f.tr.T("btn_howto_menu"), "howto_vless")),
	)
	if operator {
		kb = append(kb, row(btn(f.tr.T("btn_broadcast"), "start_broadcast")))
	}
	return kb
}

// welcomeKeyboard shows the channel and legal links followed by the agree button.
func (f *Flow) welcomeKeyboard(channelURL, termsURL, privacyURL string, forced bool) adapter.Keyboard {
	kb := adapter.Keyboard{}
	if channelURL != "" {
		kb = append(kb, row(link(f.tr.T("btn_channel"), channelURL)))
	}
	if termsURL != "" {
		kb = append(kb, row(link(f.tr.T("btn_terms"), termsURL)))
	}
	if privacyURL != "" {
		kb = append(kb, row(link(f.tr.T("btn_privacy"), privacyURL)))
	}
	agree := f.tr.T("btn_accept_terms")
	if forced {
		agree = f.tr.T("btn_subscribed")
	}
	return append(kb, row(btn(agree, "check_subscription_and_agree")))
}

func (f *Flow) keysKeyboard(keys []*model.Key, now time.Time) adapter.Keyboard {
	kb := adapter.Keyboard{}
	for i, k := range keys {
		mark := "❌"
		if k.Active(now) {
			mark = "✅"
		}
		text := f.tr.T("btn_key_item", mark, i+1, k.HostName, k.ExpiresAt.Format(keyDateLayout))
		kb = append(kb, row(btn(text, fmt.Sprintf("show_key_%d", k.ID))))
	}
	return append(kb,
		row(btn(f.tr.T("btn_buy_new_key"), "buy_new_key")),
		f.backToMenuRow(),
	)
}

// hostsKeyboard lists hosts for a new purchase ("new") or a trial ("trial").
func (f *Flow) hostsKeyboard(hosts []*model.Host, purpose string) adapter.Keyboard {
	kb := adapter.Keyboard{}
	for _, h := range hosts {
		kb = append(kb, row(btn(h.Name, fmt.Sprintf("select_host_%s_%s", purpose, h.Name))))
	}
	back := "back_to_main_menu"
	if purpose == "new" {
		back = "manage_keys"
	}
	return append(kb, row(btn(f.tr.T("btn_back"), back)))
}

func (f *Flow) plansKeyboard(plans []*model.Plan, intent *model.PurchaseIntent) adapter.Keyboard {
	kb := adapter.Keyboard{}
	for _, p := range plans {
		text := f.tr.T("btn_plan", p.Name, p.Price.StringFixed(2))
		kb = append(kb, row(btn(text, buyData(intent.HostName, p.ID, intent.Action, intent.KeyID))))
	}
	back := "buy_new_key"
	if intent.Action == model.ActionExtend {
		back = "manage_keys"
	}
	return append(kb, row(btn(f.tr.T("btn_back"), back)))
}

func (f *Flow) emailKeyboard() adapter.Keyboard {
	return adapter.Keyboard{row(btn(f.tr.T("btn_back"), "back_to_plans"))}
}

func (f *Flow) railsKeyboard(opts []usecase.RailOption) adapter.Keyboard {
	kb := adapter.Keyboard{}
	for _, o := range opts {
		key := "rail_" + string(o.Rail)
		if o.Rail == model.RailYooKassa && o.SBP {
			key = "rail_yookassa_sbp"
		}
		kb = append(kb, row(btn(f.tr.T(key), "pay_"+string(o.Rail))))
	}
	return append(kb, row(btn(f.tr.T("btn_back"), "back_to_email_prompt")))
}

func (f *Flow) payLinkKeyboard(url string) adapter.Keyboard {
	return adapter.Keyboard{
		row(link(f.tr.T("btn_pay"), url)),
		f.backToMenuRow(),
	}
}

func (f *Flow) tonKeyboard(url string) adapter.Keyboard {
	return adapter.Keyboard{row(link(f.tr.T("btn_open_wallet"), url))}
}

func (f *Flow) bankKeyboard() adapter.Keyboard {
	return adapter.Keyboard{
		row(btn(f.tr.T("btn_paid"), "payment_confirmed")),
		row(btn(f.tr.T("btn_back"), "back_to_payment_method")),
	}
}

func (f *Flow) howtoKeyboard(back string, urls map[string]string) adapter.Keyboard {
	kb := adapter.Keyboard{}
	for _, os := range []string{"android", "ios", "windows", "linux"} {
		if u := urls[os]; u != "" {
			kb = append(kb, row(link(f.tr.T("btn_os_"+os), u)))
		}
	}
	return append(kb, row(btn(f.tr.T("btn_back"), back)))
}

func (f *Flow) referralKeyboard(canWithdraw bool) adapter.Keyboard {
	kb := adapter.Keyboard{}
	if canWithdraw {
		kb = append(kb, row(btn(f.tr.T("btn_withdraw"), "withdraw_request")))
	}
	return append(kb, f.backToMenuRow())
}

func (f *Flow) broadcastOptionsKeyboard() adapter.Keyboard {
	return adapter.Keyboard{
		row(btn(f.tr.T("btn_broadcast_add_button"), "broadcast_add_button"), btn(f.tr.T("btn_broadcast_skip"), "broadcast_skip_button")),
		row(btn(f.tr.T("btn_cancel"), "cancel_broadcast")),
	}
}

func (f *Flow) broadcastConfirmKeyboard() adapter.Keyboard {
	return adapter.Keyboard{
		row(btn(f.tr.T("btn_broadcast_send"), "confirm_broadcast")),
		row(btn(f.tr.T("btn_cancel"), "cancel_broadcast")),
	}
}

func (f *Flow) cancelKeyboard() adapter.Keyboard {
	return adapter.Keyboard{row(btn(f.tr.T("btn_cancel"), "cancel_broadcast"))}
}

// draftButtons renders the optional URL button attached to a broadcast.
func draftButtons(d *model.BroadcastDraft) adapter.Keyboard {
	if d == nil || d.ButtonText == "" || d.ButtonURL == "" {
		return nil
	}
	return adapter.Keyboard{row(link(d.ButtonText, d.ButtonURL))}
}
