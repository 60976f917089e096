package application

import (
	"context"
	"html"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/usecase"
)

func (f *Flow) keysList(ctx context.Context, s *session, _ string) error {
	f.reset(ctx, s)
	keys, err := f.keys.ListKeys(ctx, s.uid())
	if err != nil {
		return err
	}
	text := f.tr.T("keys_list")
	if len(keys) == 0 {
		text = f.tr.T("keys_empty")
	}
	f.show(ctx, s, text, f.keysKeyboard(keys, time.Now()))
	return nil
}

// keyNumber is the 1-based position of the key among the user's keys.
func keyNumber(keys []*model.Key, id int64) int {
	for i, k := range keys {
		if k.ID == id {
			return i + 1
		}
	}
	return len(keys)
}

// ownedKey loads a key of the sender, alerting when it is missing or foreign.
func (f *Flow) ownedKey(ctx context.Context, s *session, arg string) (*model.Key, bool, error) {
	id, ok := parseID(arg)
	if !ok {
		return nil, false, nil
	}
	key, err := f.keys.GetOwnedKey(ctx, s.uid(), id)
	if err != nil {
		if msg, ok := f.userError(err); ok {
			f.alert(ctx, s, msg)
			return nil, false, nil
		}
		return nil, false, err
	}
	return key, true, nil
}

func (f *Flow) keyDetails(ctx context.Context, s *session, arg string) error {
	key, ok, err := f.ownedKey(ctx, s, arg)
	if !ok || err != nil {
		return err
	}
	keys, err := f.keys.ListKeys(ctx, s.uid())
	if err != nil {
		return err
	}
	conn, err := f.keys.Connection(ctx, key)
	if err != nil {
		if msg, ok := f.userError(err); ok {
			f.alert(ctx, s, msg)
			return nil
		}
		return err
	}
	status := f.tr.T("key_status_expired")
	if key.Active(time.Now()) {
		status = f.tr.T("key_status_active")
	}
	text := f.tr.T("key_details",
		keyNumber(keys, key.ID),
		html.EscapeString(key.HostName),
		status,
		key.CreatedAt.Format(keyDateLayout),
		key.ExpiresAt.Format(keyDateLayout),
		html.EscapeString(conn),
	)
	f.show(ctx, s, text, usecase.KeyInfoButtons(f.tr, key.ID))
	return nil
}

func (f *Flow) keyQR(ctx context.Context, s *session, arg string) error {
	key, ok, err := f.ownedKey(ctx, s, arg)
	if !ok || err != nil {
		return err
	}
	conn, err := f.keys.Connection(ctx, key)
	if err != nil {
		if msg, ok := f.userError(err); ok {
			f.alert(ctx, s, msg)
			return nil
		}
		return err
	}
	png, err := f.keys.QRCode(conn)
	if err != nil {
		return err
	}
	f.toast(ctx, s, "")
	_, err = f.bot.SendPhoto(ctx, adapter.SendFileParams{
		ChatID:   s.up.ChatID,
		Bytes:    png,
		FileName: "key.png",
		Caption:  f.tr.T("qr_caption"),
	})
	return err
}

// trial issues the free key right away when there is a single host, otherwise
// asks which host to use.
func (f *Flow) trial(ctx context.Context, s *session, _ string) error {
	if !f.keys.TrialAvailable(ctx, s.user) {
		f.alert(ctx, s, f.tr.T("trial_used"))
		return nil
	}
	hosts, err := f.catalog.ListHosts(ctx)
	if err != nil {
		return err
	}
	switch len(hosts) {
	case 0:
		f.alert(ctx, s, f.tr.T("no_hosts"))
		return nil
	case 1:
		return f.issueTrial(ctx, s, hosts[0].Name)
	}
	f.show(ctx, s, f.tr.T("choose_host_trial"), f.hostsKeyboard(hosts, "trial"))
	return nil
}

func (f *Flow) trialOnHost(ctx context.Context, s *session, host string) error {
	if !f.keys.TrialAvailable(ctx, s.user) {
		f.alert(ctx, s, f.tr.T("trial_used"))
		return nil
	}
	return f.issueTrial(ctx, s, host)
}

func (f *Flow) issueTrial(ctx context.Context, s *session, host string) error {
	f.show(ctx, s, f.tr.T("trial_creating", html.EscapeString(host)), nil)
	issued, err := f.keys.IssueTrial(ctx, s.uid(), host)
	if err != nil {
		if msg, ok := f.userError(err); ok {
			f.reply(ctx, s, msg, f.keyboardBackToMenu())
			return nil
		}
		return err
	}
	keys, err := f.keys.ListKeys(ctx, s.uid())
	if err != nil {
		return err
	}
	text := usecase.PurchaseSuccessText(f.tr, model.ActionNew, keyNumber(keys, issued.Key.ID), issued.Key.ExpiresAt, issued.Connection)
	f.reply(ctx, s, f.tr.T("trial_issued")+"\n\n"+text, usecase.KeyInfoButtons(f.tr, issued.Key.ID))
	return nil
}

// extendKey starts the purchase flow for an existing key on its own host.
func (f *Flow) extendKey(ctx context.Context, s *session, arg string) error {
	key, ok, err := f.ownedKey(ctx, s, arg)
	if !ok || err != nil {
		return err
	}
	s.conv.Reset()
	s.conv.Intent = &model.PurchaseIntent{Action: model.ActionExtend, KeyID: key.ID, HostName: key.HostName}
	if err := f.save(ctx, s); err != nil {
		return err
	}
	return f.showPlans(ctx, s)
}
