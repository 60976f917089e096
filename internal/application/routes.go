package application

import (
	"context"
	"sort"
	"strings"
)

// route binds callback data (exact or by prefix) to a handler. The handler receives
// the data with the prefix stripped. Exempt routes skip the registration guard.
type route struct {
	prefix string
	exempt bool
	handle func(ctx context.Context, s *session, arg string) error
}

func (f *Flow) registerRoutes() {
	f.exact = map[string]route{
		"check_subscription_and_agree": {exempt: true, handle: f.agree},
		"back_to_main_menu":            {handle: f.menuCallback},
		"show_main_menu":               {handle: f.menuCallback},
		"show_profile":                 {handle: f.profile},
		"manage_keys":                  {handle: f.keysList},
		"show_help":                    {handle: f.support},
		"howto_vless":                  {handle: f.howto},
		"show_about":                   {handle: f.news},
		"show_referral_program":        {handle: f.referralProgram},
		"withdraw_request":             {handle: f.withdrawPrompt},
		"get_trial":                    {handle: f.trial},
		"buy_new_key":                  {handle: f.hostsForPurchase},
		"buy_vpn":                      {handle: f.hostsForPurchase},
		"back_to_plans":                {handle: f.backToPlans},
		"back_to_email_prompt":         {handle: f.backToEmail},
		"back_to_payment_method":       {handle: f.backToRails},
		"pay_yookassa":                 {handle: f.payRail},
		"pay_cryptobot":                {handle: f.payRail},
		"pay_heleket":                  {handle: f.payRail},
		"pay_tonconnect":               {handle: f.payRail},
		"pay_bank_card_rf":             {handle: f.bankDetails},
		"payment_confirmed":            {handle: f.bankConfirmed},
		"start_broadcast":              {handle: f.broadcastStart},
		"broadcast_add_button":         {exempt: true, handle: f.broadcastAddButton},
		"broadcast_skip_button":        {exempt: true, handle: f.broadcastSkipButton},
		"confirm_broadcast":            {exempt: true, handle: f.broadcastConfirm},
		"cancel_broadcast":             {exempt: true, handle: f.broadcastCancel},
	}
	for data, r := range f.exact {
		r.prefix = data
		f.exact[data] = r
	}

	f.routes = []route{
		{prefix: "approve_document_", exempt: true, handle: f.reviewDocument},
		{prefix: "reject_document_", exempt: true, handle: f.reviewDocument},
		{prefix: "show_key_", handle: f.keyDetails},
		{prefix: "show_qr_", handle: f.keyQR},
		{prefix: "howto_vless_", handle: f.howtoForKey},
		{prefix: "extend_key_", handle: f.extendKey},
		{prefix: "select_host_new_", handle: f.plansForHost},
		{prefix: "select_host_trial_", handle: f.trialOnHost},
		{prefix: "buy_", handle: f.selectPlan},
	}
	// longest prefix wins
	sort.SliceStable(f.routes, func(i, j int) bool { return len(f.routes[i].prefix) > len(f.routes[j].prefix) })
}

func (f *Flow) match(data string) (route, string, bool) {
	if r, ok := f.exact[data]; ok {
		return r, "", true
	}
	for _, r := range f.routes {
		if strings.HasPrefix(data, r.prefix) {
			return r, strings.TrimPrefix(data, r.prefix), true
		}
	}
	return route{}, "", false
}
