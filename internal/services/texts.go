package services

import (
	"fmt"
	"html"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dkazlouski/obedbot/internal/models"
)

// Delivery options offered by the kitchen.
var (
	AddressOptions = []string{"Цельсий", "Катин Бор", "Дубровская"}
	TimeSlots      = []string{"12-13", "13-14"}
	QtyOptions     = []int{1, 2, 3, 4, 5}
)

// User-facing texts. The bot talks HTML, so dynamic parts go through esc.
const (
	msgAskName          = "Привет! Давай познакомимся. Как тебя зовут? 🙂 (имя и фамилия)"
	msgBadName          = "Не получилось разобрать имя. Напиши, пожалуйста, имя и фамилию, например: Иван Иванов."
	msgAskPhone         = "Отлично! Теперь отправь, пожалуйста, номер телефона (или нажми кнопку)."
	msgBadPhone         = "Не могу распознать номер. Пришли его в формате +375XXXXXXXXX или нажми кнопку ниже."
	msgRegistered       = "Спасибо! Регистрация завершена ✅"
	msgContactUnneeded  = "Контакт получен, но сейчас он не требуется."
	msgUseButtons       = "Воспользуйся, пожалуйста, кнопками ниже 🙂"
	msgMenuEmpty        = "Меню на сегодня ещё не добавлено. Попробуй позже."
	msgSingleDish       = "Сегодня только одно блюдо 🙂"
	msgDishGone         = "Увы, это блюдо уже закончилось."
	msgRowMissing       = "Позиция меню не найдена."
	msgAskCustomAddress = "Напиши адрес доставки (минимум 5 символов):"
	msgBadAddress       = "Адрес слишком короткий. Напиши, пожалуйста, подробнее (минимум 5 символов)."
	msgAskQtyManual     = "Сколько порций? Напиши число от 1 до 999:"
	msgBadQty           = "Не получилось разобрать количество. Напиши число от 1 до 999."
	msgConfirmBusy      = "Заказ уже оформляется, секунду…"
	msgOrderAccepted    = "Спасибо! Твой заказ принят ✅"
	msgOrderSaveFailed  = "Не удалось сохранить заказ. Попробуй позже."
	msgProfileMissing   = "Не найден профиль клиента. Отправь /start для регистрации."
	msgProfileError     = "Ошибка профиля. Отправь /start для регистрации."
	msgSupportUsage     = "Опиши проблему после команды, например: /support не пришёл заказ"
	msgSupportAccepted  = "Обращение принято, мы свяжемся с тобой 🙌"
)

// Callback payloads
const (
	cbMenuPrev      = "menu_prev"
	cbMenuNext      = "menu_next"
	cbTariffPrefix  = "tariff:"
	cbAddrPrefix    = "addr:"
	cbAddrCustom    = "addr_custom"
	cbTimePrefix    = "time:"
	cbQtyPrefix     = "qty:"
	cbQtyManual     = "qty_manual"
	cbConfirm       = "confirm"
	cbBackPrefix    = "back:"
	cbShowMenuAgain = "show_menu"
)

func esc(s string) string {
	return html.EscapeString(s)
}

// menuCaption builds the menu card text for one item.
func menuCaption(item models.MenuItem) string {
	text := fmt.Sprintf("<b>Блюдо дня</b>: %s", esc(item.Dish))
	if comp := models.ParseComposition(item.Dish); comp.Soup != "" || comp.Salad != "" || comp.Drink != "" {
		text = "<b>Блюдо дня</b>\n" + esc(item.Dish)
	}
	text += fmt.Sprintf("\nДоступно: %d", item.Quantity)
	return text
}

func addressPrompt(dish string) string {
	return fmt.Sprintf("Вы выбрали: <b>%s</b>\n\nВыбери адрес доставки:", esc(dish))
}

func timePrompt(address string) string {
	return fmt.Sprintf("Адрес доставки: <b>%s</b>\n\nТеперь выбери время доставки:", esc(address))
}

func qtyPrompt(timeslot string) string {
	return fmt.Sprintf("Время доставки: <b>%s</b>\n\nСколько порций заказать?", esc(timeslot))
}

func confirmPrompt(fc models.FlowContext) string {
	tariffTitle := fc.ChosenTariff
	paymentLabel := ""
	if t, ok := models.TariffByCode(fc.ChosenTariff); ok {
		tariffTitle = t.Title
		paymentLabel = t.PaymentLabel
	}

	text := "Проверь заказ:\n" +
		fmt.Sprintf("• Блюдо: <b>%s</b>\n", esc(fc.ChosenDish)) +
		fmt.Sprintf("• Тариф: <b>%s</b>\n", esc(tariffTitle)) +
		fmt.Sprintf("• Адрес: <b>%s</b>\n", esc(fc.ChosenAddress)) +
		fmt.Sprintf("• Время: <b>%s</b>\n", esc(fc.ChosenTime)) +
		fmt.Sprintf("• Порций: <b>%d</b>\n", fc.ChosenQty)
	if paymentLabel != "" {
		text += fmt.Sprintf("• %s\n", esc(paymentLabel))
	}
	text += "\nПодтвердить заказ?"
	return text
}

// Keyboards

func kbMenuNavigation(canSwitch bool) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if canSwitch {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️", cbMenuPrev),
			tgbotapi.NewInlineKeyboardButtonData("▶️", cbMenuNext),
		))
	}
	for _, t := range models.Tariffs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Title, cbTariffPrefix+t.Code),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func kbAddresses() *tgbotapi.InlineKeyboardMarkup {
	var addrRow []tgbotapi.InlineKeyboardButton
	for _, a := range AddressOptions {
		addrRow = append(addrRow, tgbotapi.NewInlineKeyboardButtonData(a, cbAddrPrefix+a))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		addrRow,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Другой адрес", cbAddrCustom),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Назад", cbBackPrefix+"menu"),
		),
	)
	return &kb
}

func kbTimeSlots() *tgbotapi.InlineKeyboardMarkup {
	var slotRow []tgbotapi.InlineKeyboardButton
	for _, t := range TimeSlots {
		slotRow = append(slotRow, tgbotapi.NewInlineKeyboardButtonData(t, cbTimePrefix+t))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		slotRow,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Назад", cbBackPrefix+"addr"),
		),
	)
	return &kb
}

func kbQuantities() *tgbotapi.InlineKeyboardMarkup {
	var qtyRow []tgbotapi.InlineKeyboardButton
	for _, n := range QtyOptions {
		qtyRow = append(qtyRow, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(n), cbQtyPrefix+strconv.Itoa(n)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		qtyRow,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Другое количество", cbQtyManual),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Назад", cbBackPrefix+"time"),
		),
	)
	return &kb
}

func kbConfirm() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Всё верно", cbConfirm),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Назад", cbBackPrefix+"qty"),
		),
	)
	return &kb
}

func kbShowMenuAgain() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Посмотреть меню на сегодня", cbShowMenuAgain),
		),
	)
	return &kb
}

func kbSendContact() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("Поделиться контактом"),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
