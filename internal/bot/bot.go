package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"starfarm-bot/internal/economy"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
)

type Bot struct {
	Instance *telego.Bot
	Engine   *economy.Engine
	Logger   *zap.Logger
	GameName string
}

func NewBot(token string, engine *economy.Engine, logger *zap.Logger, gameName string) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		Engine:   engine,
		Logger:   logger,
		GameName: gameName,
	}, nil
}

func mainKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("👤 Профиль").WithCallbackData("profile"),
			tu.InlineKeyboardButton("🌾 Мои фермы").WithCallbackData("farms"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🛒 Фермы").WithCallbackData("shop"),
			tu.InlineKeyboardButton("🎁 NFT").WithCallbackData("nft"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("▶️ Активировать").WithCallbackData("activate"),
			tu.InlineKeyboardButton("💰 Собрать").WithCallbackData("collect"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔨 Аукцион").WithCallbackData("auction"),
			tu.InlineKeyboardButton("🤝 Рефералы").WithCallbackData("referral"),
		),
	)
}

func backKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("« Назад").WithCallbackData("start_back"),
		),
	)
}

// Start registers handlers and blocks on long polling until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	// /start [referrerId]
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		userID := message.From.ID

		referrerID, _ := parseStartArg(message.Text)
		join, err := b.Engine.JoinUser(ctx.Context(), userID, referrerID)
		if err != nil {
			b.Logger.Error("failed to join user", zap.Int64("user", userID), zap.Error(err))
			b.reply(ctx, userID, errorText(err))
			return nil
		}
		if join.Reward > 0 {
			b.reply(ctx, userID, fmt.Sprintf("🎉 Вы пришли по приглашению и получили %d ⭐!", join.Reward))
			b.reply(ctx, referrerID, "🤝 По вашей ссылке зарегистрировался новый игрок!")
		}

		b.send(ctx, userID, fmt.Sprintf("Привет! 👋\n\nДобро пожаловать в %s!\n\n"+
			"🌾 Покупай фермы за звезды\n"+
			"▶️ Активируй их и собирай доход\n"+
			"🎁 NFT увеличивают доход\n"+
			"🔨 Участвуй в аукционах редких ферм", b.GameName), mainKeyboard())
		return nil
	}, th.CommandEqual("start"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.sendHelp(ctx, update.Message.From.ID)
		return nil
	}, th.CommandEqual("help"))

	// Views reachable both as commands and menu buttons.
	views := map[string]func(ctx *th.Context, userID int64){
		"profile":  b.sendProfile,
		"farms":    b.sendFarms,
		"shop":     b.sendShop,
		"nft":      b.sendNftShop,
		"activate": b.activate,
		"collect":  b.collect,
		"referral": b.sendReferral,
		"auction":  b.sendAuctions,
	}
	for name, view := range views {
		handler.Handle(func(ctx *th.Context, update telego.Update) error {
			view(ctx, update.Message.From.ID)
			return nil
		}, th.CommandEqual(name))

		handler.Handle(func(ctx *th.Context, update telego.Update) error {
			callback := update.CallbackQuery
			view(ctx, callback.From.ID)
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}, th.CallbackDataEqual(name))
	}

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		b.send(ctx, callback.From.ID, "Главное меню", mainKeyboard())
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("start_back"))

	// buy_farm_<id>
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		farmTypeID := strings.TrimPrefix(callback.Data, "buy_farm_")

		bought, err := b.Engine.BuyFarm(ctx.Context(), callback.From.ID, farmTypeID)
		b.answerPurchase(ctx, callback, bought, err)
		return nil
	}, th.CallbackDataPrefix("buy_farm_"))

	// buy_nft_<id>
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		nftTypeID := strings.TrimPrefix(callback.Data, "buy_nft_")

		bought, err := b.Engine.BuyNft(ctx.Context(), callback.From.ID, nftTypeID)
		b.answerPurchase(ctx, callback, bought, err)
		return nil
	}, th.CallbackDataPrefix("buy_nft_"))

	// auction_<id> opens the bid menu.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		auctionID, ok := parseIDData(callback.Data, "auction_")
		if !ok {
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}
		b.sendBidMenu(ctx, callback.From.ID, auctionID)
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("auction_"))

	// bid_<id>_<amount>
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		auctionID, amount, ok := parseBidData(callback.Data)
		if !ok {
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
			return nil
		}

		current, err := b.Engine.PlaceBid(ctx.Context(), auctionID, callback.From.ID, amount)
		if err != nil {
			if !isUserError(err) {
				b.Logger.Error("bid failed", zap.Int64("auction", auctionID), zap.Int64("user", callback.From.ID), zap.Error(err))
			}
			_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).WithText(errorText(err)).WithShowAlert())
			return nil
		}

		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).WithText(fmt.Sprintf("✅ Ставка %d ⭐ принята!", current)))
		b.sendBidMenu(ctx, callback.From.ID, auctionID)
		return nil
	}, th.CallbackDataPrefix("bid_"))

	go func() {
		<-ctx.Done()
		handler.Stop()
	}()

	b.Logger.Info("bot started")
	handler.Start()
	return nil
}

// NotifyAuctionResult tells the winning bidder how their auction settled.
func (b *Bot) NotifyAuctionResult(ctx context.Context, o economy.AuctionOutcome) error {
	if o.BidderID == nil {
		return nil
	}
	text := auctionResultText(o, b.Engine.Catalog())
	if text == "" {
		return nil
	}
	if _, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(*o.BidderID), text)); err != nil {
		return fmt.Errorf("failed to notify bidder %d: %w", *o.BidderID, err)
	}
	return nil
}

func (b *Bot) sendHelp(ctx *th.Context, userID int64) {
	b.send(ctx, userID, "📖 Команды\n\n"+
		"/profile - профиль\n"+
		"/farms - ваши фермы и доход\n"+
		"/shop - магазин ферм\n"+
		"/nft - магазин NFT\n"+
		fmt.Sprintf("/activate - запустить фермы на %d часов\n", int(economy.ActivationWindow.Hours()))+
		"/collect - собрать доход\n"+
		"/referral - пригласить друзей\n"+
		"/auction - аукцион редких ферм", backKeyboard())
}

func (b *Bot) sendProfile(ctx *th.Context, userID int64) {
	p, err := b.Engine.Profile(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "profile", err)
		return
	}
	b.send(ctx, userID, profileText(p, b.Engine.Catalog()), backKeyboard())
}

func (b *Bot) sendFarms(ctx *th.Context, userID int64) {
	p, err := b.Engine.Profile(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "farms", err)
		return
	}
	if p.Farms == 0 {
		b.send(ctx, userID, "🌾 У вас пока нет ферм. Загляните в магазин: /shop", backKeyboard())
		return
	}

	text := fmt.Sprintf("🌾 Ваши фермы: %d\n\n%s", p.Farms, incomeLine(p))
	if p.NextExpiry != nil {
		text += fmt.Sprintf("\n⏰ До остановки: %s", formatLeft(p.NextExpiry.Sub(b.Engine.Now())))
	} else {
		text += "\n\n💡 Фермы не активны. Запустите их: /activate"
	}
	b.send(ctx, userID, text, backKeyboard())
}

func (b *Bot) sendShop(ctx *th.Context, userID int64) {
	balance, err := b.Engine.GetBalance(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "shop", err)
		return
	}

	cat := b.Engine.Catalog()
	rows := make([][]telego.InlineKeyboardButton, 0, len(cat.Farms)+1)
	for _, f := range cat.Farms {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("%s - %d ⭐", f.Name, f.Price)).WithCallbackData("buy_farm_"+f.ID),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("« Назад").WithCallbackData("start_back")))

	b.send(ctx, userID, farmShopText(balance, cat), tu.InlineKeyboard(rows...))
}

func (b *Bot) sendNftShop(ctx *th.Context, userID int64) {
	balance, err := b.Engine.GetBalance(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "nft shop", err)
		return
	}

	cat := b.Engine.Catalog()
	rows := make([][]telego.InlineKeyboardButton, 0, len(cat.Nfts)+1)
	for _, n := range cat.Nfts {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("%s - %d ⭐", n.Name, n.Price)).WithCallbackData("buy_nft_"+n.ID),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("« Назад").WithCallbackData("start_back")))

	b.send(ctx, userID, nftShopText(balance, cat), tu.InlineKeyboard(rows...))
}

func (b *Bot) activate(ctx *th.Context, userID int64) {
	act, err := b.Engine.ActivateFarms(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "activate", err)
		return
	}

	var next *time.Time
	if act.Total > 0 && act.Activated == 0 {
		p, err := b.Engine.Profile(ctx.Context(), userID)
		if err != nil {
			b.fail(ctx, userID, "activate", err)
			return
		}
		next = p.NextExpiry
	}
	b.send(ctx, userID, activateText(act, next, b.Engine.Now()), backKeyboard())
}

func (b *Bot) collect(ctx *th.Context, userID int64) {
	income, err := b.Engine.CollectFarmIncome(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "collect", err)
		return
	}
	if income == 0 {
		b.send(ctx, userID, "🌾 Пока нечего собирать. Убедитесь, что фермы активны: /activate", backKeyboard())
		return
	}

	balance, err := b.Engine.GetBalance(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "collect", err)
		return
	}
	b.send(ctx, userID, fmt.Sprintf("💰 Собрано: %d ⭐\n⭐ Баланс: %d", income, balance), backKeyboard())
}

func (b *Bot) sendReferral(ctx *th.Context, userID int64) {
	count, err := b.Engine.GetReferralCount(ctx.Context(), userID)
	if err != nil {
		b.fail(ctx, userID, "referral", err)
		return
	}

	botUsername := "starfarm_bot"
	if info, err := b.Instance.GetMe(ctx.Context()); err == nil {
		botUsername = info.Username
	}
	refLink := fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)

	b.send(ctx, userID, fmt.Sprintf("🤝 Реферальная программа\n\n"+
		"Приглашайте друзей: каждый новый игрок получит стартовый бонус!\n\n"+
		"👥 Приглашено: %d\n\n"+
		"🔗 Ваша ссылка:\n%s", count, refLink), backKeyboard())
}

func (b *Bot) sendAuctions(ctx *th.Context, userID int64) {
	if _, err := b.Engine.EnsureAuctions(ctx.Context()); err != nil {
		b.Logger.Warn("failed to seed auctions", zap.Error(err))
	}

	auctions, err := b.Engine.GetActiveAuctions(ctx.Context())
	if err != nil {
		b.fail(ctx, userID, "auction", err)
		return
	}
	if len(auctions) == 0 {
		b.send(ctx, userID, "🔨 Сейчас нет активных аукционов", backKeyboard())
		return
	}

	cat := b.Engine.Catalog()
	now := b.Engine.Now()
	var sb strings.Builder
	sb.WriteString("🔨 Аукцион редких ферм\n\n")
	rows := make([][]telego.InlineKeyboardButton, 0, len(auctions)+1)
	for _, a := range auctions {
		sb.WriteString(auctionLine(a, cat, now))
		sb.WriteString("\n")
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("Ставка #%d", a.ID)).WithCallbackData(fmt.Sprintf("auction_%d", a.ID)),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("« Назад").WithCallbackData("start_back")))

	b.send(ctx, userID, sb.String(), tu.InlineKeyboard(rows...))
}

func (b *Bot) sendBidMenu(ctx *th.Context, userID, auctionID int64) {
	auctions, err := b.Engine.GetActiveAuctions(ctx.Context())
	if err != nil {
		b.fail(ctx, userID, "bid menu", err)
		return
	}

	for _, a := range auctions {
		if a.ID != auctionID {
			continue
		}
		buttons := make([]telego.InlineKeyboardButton, 0, 3)
		for _, amount := range bidSteps(a.CurrentBid) {
			buttons = append(buttons, tu.InlineKeyboardButton(fmt.Sprintf("%d ⭐", amount)).
				WithCallbackData(fmt.Sprintf("bid_%d_%d", a.ID, amount)))
		}
		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(buttons...),
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("« Назад").WithCallbackData("auction")),
		)
		b.send(ctx, userID, auctionLine(a, b.Engine.Catalog(), b.Engine.Now()), keyboard)
		return
	}
	b.reply(ctx, userID, errorText(economy.ErrNotFound))
}

func (b *Bot) answerPurchase(ctx *th.Context, callback *telego.CallbackQuery, bought bool, err error) {
	text := "✅ Покупка успешна!"
	switch {
	case err != nil:
		if !isUserError(err) {
			b.Logger.Error("purchase failed", zap.Int64("user", callback.From.ID), zap.String("data", callback.Data), zap.Error(err))
		}
		text = errorText(err)
	case !bought:
		text = errorText(economy.ErrInsufficientFunds)
	}
	_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID).WithText(text).WithShowAlert())
}

func (b *Bot) fail(ctx *th.Context, userID int64, action string, err error) {
	b.Logger.Error("handler failed", zap.String("action", action), zap.Int64("user", userID), zap.Error(err))
	b.reply(ctx, userID, "❌ "+errorText(err))
}

func (b *Bot) send(ctx *th.Context, userID int64, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text).WithReplyMarkup(keyboard))
}

func (b *Bot) reply(ctx *th.Context, userID int64, text string) {
	_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(userID), text))
}

func isUserError(err error) bool {
	return !errors.Is(err, economy.ErrStorageUnavailable)
}
