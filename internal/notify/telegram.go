// Package notify pushes reminder messages to users through a Telegram bot.
package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"famcal/pkg/logx"
)

// sendBudgetPerSec stays under Telegram's global bot send limit.
const sendBudgetPerSec = 25

// httpTimeout bounds every API call so one stuck send cannot stall a
// scheduler cycle.
const httpTimeout = 10 * time.Second

// Gateway delivers text messages to Telegram users. The bot handle is an
// explicit construction-time dependency; there is no package-level client.
type Gateway struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
}

// NewBot builds a send-only bot handle for token.
func NewBot(token string) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	return tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: httpTimeout},
	})
}

func New(bot *tele.Bot, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendBudgetPerSec), sendBudgetPerSec),
		log:     log,
	}
}

// Send delivers text to userID. Best effort, single attempt; the caller
// owns any idempotency or retry policy.
func (g *Gateway) Send(ctx context.Context, userID int64, text string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.bot.Send(&tele.User{ID: userID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		g.log.Warn("telegram send failed", logx.Int64("user_id", userID), logx.Err(err))
		return err
	}
	g.log.Debug("telegram message sent", logx.Int64("user_id", userID))
	return nil
}
