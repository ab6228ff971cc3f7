package bot

import (
	"strconv"

	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
)

// 主菜单按钮
const (
	ButtonSetPrompt = "🎯 Установить промпт"
	ButtonStartChat = "▶️ Начать диалог"
	ButtonEndChat   = "⏹ Завершить диалог"
)

// 回调数据
const (
	CallbackRatingSuccessful   = "rating_successful"
	CallbackRatingUnsuccessful = "rating_unsuccessful"
	CallbackNaturalnessPrefix  = "naturalness_rating_"
)

// 固定文案，可配置的部分在 config.BotConfig 中。
const (
	textCurrentPrompt       = "Текущий системный промпт:\n"
	textPromptUpdated       = "Системный промпт обновлен:\n"
	textPromptCancelled     = "❌ Изменение промпта отменено."
	textStartChatFirst      = "Пожалуйста, начните чат, используя /start_chat или кнопку '▶️ Начать диалог'"
	textStartChatFirstVoice = "Пожалуйста, начните чат, используя /start_chat"
	textLLMError            = "Извините, произошла ошибка при обработке вашего сообщения."
	textVoiceError          = "Извините, произошла ошибка при обработке вашего голосового сообщения."
	textTranscribeFailed    = "Извините, не удалось расшифровать голосовое сообщение."
	textTranscribed         = "Расшифрованный текст: "
	textHistoryReset        = "История диалога очищена, системный промпт сохранен."
	textRatedSuccessful     = "Спасибо! Разговор отмечен как успешный. 👍\n"
	textRatedUnsuccessful   = "Спасибо за ваш отзыв. Разговор отмечен как неуспешный. 👎\n"
	textNaturalnessThanks   = "Спасибо за оценку! Вы оценили естественность диалога на %d из 5.\n"
	textAnalysisResult      = "Результат анализа:\n"
	textRateSuccess         = "Оцените, пожалуйста, успешность диалога:"
	textUnknownCommand      = "Неизвестная команда. Доступны: /start, /set_prompt, /check_prompt, /start_chat, /end_chat, /reset, /voice_input"
)

func mainKeyboard() telegram.ReplyKeyboard {
	return telegram.NewReplyKeyboard(
		[]string{ButtonSetPrompt},
		[]string{ButtonStartChat, ButtonEndChat},
	)
}

func ratingKeyboard() telegram.InlineKeyboard {
	return telegram.NewInlineRow(
		telegram.InlineButton{Text: "✅ Диалог успешный", CallbackData: CallbackRatingSuccessful},
		telegram.InlineButton{Text: "❌ Диалог неуспешный", CallbackData: CallbackRatingUnsuccessful},
	)
}

// naturalnessKeyboard 每个分值一行。
func naturalnessKeyboard() telegram.InlineKeyboard {
	kb := telegram.InlineKeyboard{}
	for i := 1; i <= 5; i++ {
		kb.InlineKeyboard = append(kb.InlineKeyboard, []telegram.InlineButton{{
			Text:         strconv.Itoa(i),
			CallbackData: CallbackNaturalnessPrefix + strconv.Itoa(i),
		}})
	}
	return kb
}
