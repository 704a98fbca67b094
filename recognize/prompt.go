package recognize

import (
	"regexp"
	"strings"
)

// gramsPattern detects an explicit weight in a user comment: a number
// followed by a standalone gram unit ("150 г", "200g"). Unit abbreviations
// glued to more letters ("150 грамм") intentionally do not match; only the
// bare unit counts as explicit.
var gramsPattern = regexp.MustCompile(`(?i)\b\d+\s*(?:гр|г|g)(?:\P{L}|$)`)

// HasExplicitGrams reports whether the user stated exact product weights.
func HasExplicitGrams(comment string) bool {
	if comment == "" {
		return false
	}
	return gramsPattern.MatchString(comment)
}

// BuildPrompt constructs the recognition prompt. It is written for the
// provider's native JSON-object mode: no chain-of-thought, no extra text,
// only a JSON object in the reply. When the comment carries explicit weights
// the model is told to treat them as ground truth unless the photo plainly
// contradicts them.
func BuildPrompt(userComment, locale string) string {
	comment := strings.TrimSpace(userComment)
	hasWeights := HasExplicitGrams(comment)

	if locale == "ru" {
		return buildPromptRU(comment, hasWeights)
	}
	return buildPromptEN(comment, hasWeights)
}

func buildPromptRU(comment string, hasWeights bool) string {
	commentText := comment
	if commentText == "" {
		commentText = "Комментарий отсутствует"
	}
	var b strings.Builder
	b.WriteString("Ты — профессиональный диетолог-технолог. Твоя задача — оценить КБЖУ по фото максимально точно.\n")
	b.WriteString("\n=== КОММЕНТАРИЙ ПОЛЬЗОВАТЕЛЯ ===\n")
	b.WriteString(commentText)
	b.WriteString("\n================================\n")
	if hasWeights {
		b.WriteString("\n⚠️ ВАЖНО: ПОЛЬЗОВАТЕЛЬ УКАЗАЛ ТОЧНЫЕ ВЕСА ПРОДУКТОВ — НЕ МЕНЯЙ ИХ БЕЗ ЯВНОГО ПРОТИВОРЕЧИЯ С ФОТО.\n")
	}
	b.WriteString(`
ПРАВИЛА:
1) Распознавай ВСЮ ЕДУ И НАПИТКИ на фото. Игнорируй фоновые объекты (стол, техника, руки, мебель).
2) Если комментарий пустой или содержит только название блюда — верни ОДНО блюдо целиком.
3) Если в комментарии перечислены ингредиенты — верни каждый ингредиент отдельной строкой в items.
4) Если в комментарии указаны веса (например: "курица 150 г, рис 200 г"):
   - Считай эти веса основным источником правды
   - Не меняй grams, кроме явного противоречия с фото
   - Если сомневаешься — оставь веса и опиши сомнения в model_notes
5) ВАЖНО: Даже если на фото только один предмет без контекста (фрукт, овощ, продукт) — распознай его и оцени
6) НЕ УГАДЫВАЙ: Если не можешь определить что это за еда — верни items=[] и укажи причину в model_notes

ОТВЕТ: ВЕРНИ ТОЛЬКО ВАЛИДНЫЙ JSON ОБЪЕКТ (без текста/markdown).

ФОРМАТ:
{
  "items": [
    {
      "name": "название продукта (ТОЛЬКО РУССКИЙ язык)",
      "grams": число,
      "kcal": число,
      "protein": число,
      "fat": число,
      "carbohydrates": число
    }
  ],
  "total": {
    "kcal": число,
    "protein": число,
    "fat": число,
    "carbohydrates": число
  },
  "model_notes": "краткие комментарии (ТОЛЬКО РУССКИЙ язык)"
}

ЯЗЫКОВОЕ ПРАВИЛО: name и model_notes ТОЛЬКО НА РУССКОМ языке.
`)
	return b.String()
}

func buildPromptEN(comment string, hasWeights bool) string {
	commentText := comment
	if commentText == "" {
		commentText = "No comment provided"
	}
	var b strings.Builder
	b.WriteString("You are a nutrition expert. Estimate nutrition from a photo.\n")
	b.WriteString("\n=== USER COMMENT ===\n")
	b.WriteString(commentText)
	b.WriteString("\n====================\n")
	if hasWeights {
		b.WriteString("\n⚠️ IMPORTANT: USER PROVIDED EXACT WEIGHTS — DO NOT CHANGE THEM WITHOUT EXPLICIT CONTRADICTION WITH THE PHOTO.\n")
	}
	b.WriteString(`
RULES:
- Recognize all food and drinks; ignore background objects.
- If comment is empty or only dish name: return ONE dish item.
- If comment lists ingredients: return each ingredient as a separate item.
- If comment includes grams: treat them as primary truth; do not change unless photo contradicts.
- IMPORTANT: Even if photo shows only a single item without context (fruit, vegetable, product) — recognize it and estimate
- DO NOT GUESS: If you cannot determine what food this is — return items=[] and explain in model_notes

OUTPUT: ONLY a valid JSON object (no markdown, no extra text).

FORMAT:
{
  "items": [
    {
      "name": "product/dish name",
      "grams": number,
      "kcal": number,
      "protein": number,
      "fat": number,
      "carbohydrates": number
    }
  ],
  "total": {
    "kcal": number,
    "protein": number,
    "fat": number,
    "carbohydrates": number
  },
  "model_notes": "brief notes"
}
`)
	return b.String()
}
