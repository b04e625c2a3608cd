// The companion bot greets users and hands out the mini-app link. The heavy
// lifting (API, reminders) lives in cmd/server; this binary only needs the
// store for user upserts and family listings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"

	"famcal/internal/config"
	"famcal/internal/storage"
	"famcal/pkg/logx"
)

const handlerTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("info")

	cfg, err := config.Load()
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		os.Exit(1)
	}

	log, logCloser, err := logx.New(logx.Config{Level: cfg.LogLevel, Console: true})
	if err != nil {
		boot.Error("logging setup failed", logx.Err(err))
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.DBPath,
		BusyTimeout: 5 * time.Second,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		log.Error("store open failed", logx.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		log.Error("telegram bot init failed", logx.Err(err))
		os.Exit(1)
	}

	h := &handlers{store: store, webAppURL: cfg.WebAppURL, log: log}
	bot.Handle("/start", h.start)
	bot.Handle("/families", h.families)

	go func() {
		<-ctx.Done()
		bot.Stop()
	}()

	log.Info("bot polling started")
	bot.Start()
	log.Info("bot stopped")
}

type handlers struct {
	store     *storage.Store
	webAppURL string
	log       logx.Logger
}

func (h *handlers) upsertSender(c tele.Context) {
	sender := c.Sender()
	if sender == nil {
		return
	}
	u := storage.User{ID: sender.ID}
	if sender.FirstName != "" {
		u.FirstName = &sender.FirstName
	}
	if sender.LastName != "" {
		u.LastName = &sender.LastName
	}
	if sender.Username != "" {
		u.Username = &sender.Username
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if _, err := h.store.UpsertUser(ctx, u); err != nil {
		h.log.Warn("user upsert failed", logx.Int64("user_id", sender.ID), logx.Err(err))
	}
}

func (h *handlers) start(c tele.Context) error {
	h.upsertSender(c)

	text := "Hi! I keep track of personal and family plans. " +
		"Open the mini-app to see your calendar."

	if h.webAppURL == "" {
		return c.Send(text)
	}
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(menu.Row(menu.WebApp("Open calendar", &tele.WebApp{URL: h.webAppURL})))
	return c.Send(text, menu)
}

func (h *handlers) families(c tele.Context) error {
	h.upsertSender(c)
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	fams, err := h.store.FamiliesForUser(ctx, sender.ID)
	if err != nil {
		h.log.Warn("family list failed", logx.Int64("user_id", sender.ID), logx.Err(err))
		return c.Send("Something went wrong, try again later.")
	}
	if len(fams) == 0 {
		return c.Send("You are not in any family calendars yet. Create one in the mini-app or join by invite code!")
	}

	var b strings.Builder
	b.WriteString("Your family calendars:\n")
	for _, f := range fams {
		fmt.Fprintf(&b, "👥 %s (invite code: %s)\n", f.Name, f.InviteCode)
	}
	return c.Send(b.String())
}
