package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"starfarm-bot/internal/catalog"
	"starfarm-bot/internal/economy"
	"starfarm-bot/internal/models"
)

// errorText maps engine failures to user-facing text.
func errorText(err error) string {
	var tooLow *economy.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		return fmt.Sprintf("Ставка слишком мала. Текущая ставка: %d ⭐", tooLow.Current)
	case errors.Is(err, economy.ErrInsufficientFunds):
		return "Недостаточно звезд!"
	case errors.Is(err, economy.ErrNotFound):
		return "Аукцион не найден или уже завершен"
	case errors.Is(err, economy.ErrUnknownType):
		return "Ошибка: неизвестный товар"
	case errors.Is(err, economy.ErrSelfReferral):
		return "Нельзя пригласить самого себя"
	default:
		return "Что-то пошло не так, попробуйте еще раз"
	}
}

// parseStartArg extracts the referrer id from "/start <id>".
func parseStartArg(text string) (int64, bool) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseBidData parses "bid_<auction>_<amount>".
func parseBidData(data string) (auctionID, amount int64, ok bool) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 || parts[0] != "bid" {
		return 0, 0, false
	}
	auctionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	amount, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, false
	}
	return auctionID, amount, true
}

func parseIDData(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

// bidSteps offers raises of roughly 10%, 25% and 50% over the current bid.
func bidSteps(current int64) []int64 {
	steps := make([]int64, 0, 3)
	for _, pct := range []int64{10, 25, 50} {
		raise := current * pct / 100
		if raise < 1 {
			raise = 1
		}
		steps = append(steps, current+raise)
	}
	return steps
}

func formatLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dч %dм", int(d.Hours()), int(d.Minutes())%60)
}

func boostPercent(boost float64) int {
	return int((boost-1)*100 + 0.5)
}

func perMinute(perHour int64) string {
	return strconv.FormatFloat(float64(perHour)/60, 'f', 2, 64)
}

func profileText(p economy.Profile, cat *catalog.Catalog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 Ваш профиль\n\n")
	fmt.Fprintf(&sb, "⭐ Звезд: %d\n", p.Balance)
	fmt.Fprintf(&sb, "🌾 Ферм: %d (активных: %d)\n", p.Farms, p.FreshFarms)
	fmt.Fprintf(&sb, "🎁 NFT: %d\n", p.Nfts)
	fmt.Fprintf(&sb, "⚡ Буст к доходу: %d%%\n", boostPercent(p.Boost))
	fmt.Fprintf(&sb, "🔗 Рефералов: %d\n", p.ReferralCount)

	if len(p.FarmCounts) > 0 {
		sb.WriteString("\nВаши фермы:\n")
		for _, f := range cat.Farms {
			if n := p.FarmCounts[f.ID]; n > 0 {
				fmt.Fprintf(&sb, "  %s: %d шт.\n", f.Name, n)
			}
		}
	}
	if len(p.NftCounts) > 0 {
		sb.WriteString("\nВаши NFT:\n")
		for _, n := range cat.Nfts {
			if c := p.NftCounts[n.ID]; c > 0 {
				fmt.Fprintf(&sb, "  %s: %d шт.\n", n.Name, c)
			}
		}
	}
	return sb.String()
}

func incomeLine(p economy.Profile) string {
	line := fmt.Sprintf("📊 Доход (%d активных ферм): %s ⭐/мин | %d ⭐/час",
		p.FreshFarms, perMinute(p.BaseIncomePerHour), p.BaseIncomePerHour)
	if p.Boost > 1 {
		line += fmt.Sprintf("\n⚡ С бустом: %s ⭐/мин | %d ⭐/час",
			perMinute(p.BoostedIncomePerHour), p.BoostedIncomePerHour)
	}
	return line
}

func farmShopText(balance int64, cat *catalog.Catalog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🛒 Магазин ферм\n\n⭐ Ваши звезды: %d\n\n", balance)
	for _, f := range cat.Farms {
		fmt.Fprintf(&sb, "%s\n💰 Цена: %d ⭐\n📈 Доход: %s ⭐/мин | %d ⭐/час\n\n",
			f.Name, f.Price, perMinute(f.IncomePerHour), f.IncomePerHour)
	}
	return sb.String()
}

func nftShopText(balance int64, cat *catalog.Catalog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎁 Магазин NFT подарков\n\n⭐ Ваши звезды: %d\n\nNFT дают буст к доходу с ферм!\n\n", balance)
	for _, n := range cat.Nfts {
		fmt.Fprintf(&sb, "%s\n💰 Цена: %d ⭐\n⚡ Буст: +%d%%\n\n", n.Name, n.Price, boostPercent(n.Boost))
	}
	return sb.String()
}

func auctionLine(a models.Auction, cat *catalog.Catalog, now time.Time) string {
	name := a.FarmTypeID
	if f, ok := cat.Farm(a.FarmTypeID); ok {
		name = f.Name
	}
	return fmt.Sprintf("%s\n💰 Текущая ставка: %d ⭐\n⏰ Осталось: %s\n", name, a.CurrentBid, formatLeft(a.EndTime.Sub(now)))
}

func auctionResultText(o economy.AuctionOutcome, cat *catalog.Catalog) string {
	name := o.FarmTypeID
	if f, ok := cat.Farm(o.FarmTypeID); ok {
		name = f.Name
	}
	switch o.Result {
	case models.AuctionResultSold:
		return fmt.Sprintf("🏆 Вы выиграли аукцион!\n\n%s теперь ваша за %d ⭐\n💡 Не забудьте активировать её: /activate", name, o.Price)
	case models.AuctionResultUnpaid:
		return fmt.Sprintf("❌ Аукцион за %s завершен, но у вас не хватило звезд для оплаты ставки %d ⭐", name, o.Price)
	}
	return ""
}

// activateText describes an activation. next is the end of the earliest
// running window and is only consulted when nothing could be activated.
func activateText(act economy.Activation, next *time.Time, now time.Time) string {
	hours := int(economy.ActivationWindow.Hours())
	var text string
	switch {
	case act.Total == 0:
		return "🌾 У вас нет ферм для активации. Купите первую: /shop"
	case act.Activated == 0:
		text = "✅ Все фермы уже работают!"
		if next != nil {
			text += fmt.Sprintf("\n⏰ Следующая активация через: %s", formatLeft(next.Sub(now)))
		}
	default:
		text = fmt.Sprintf("▶️ Активировано ферм: %d из %d\n⏰ Они будут работать %d часов", act.Activated, act.Total, hours)
	}
	if act.Settled > 0 {
		text += fmt.Sprintf("\n💰 Зачислен доход с прошлого запуска: %d ⭐", act.Settled)
	}
	return text
}
