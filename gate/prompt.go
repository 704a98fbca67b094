package gate

// The gate answers permission ("could this reasonably be food?"), not
// ability ("what food is this?"). Prompts lean permissive on purpose:
// ambiguous photos proceed to recognition with low confidence instead of
// being rejected here.

const promptRU = `Проанализируй изображение. Это может быть еда или съедобный продукт?

ПРАВИЛА:
- Если изображение МОЖЕТ разумно представлять еду или съедобный продукт → is_food=true
- Еда может быть в любом контексте: на тарелке, без контекста, один предмет, несколько предметов
- НЕ ОТВЕРГАЙ фрукты, овощи, продукты без тарелки или стола
- ТОЛЬКО для: скриншоты, мемы, интерфейсы, живые животные, лица людей, документы → is_food=false
- При сомнении между "возможно еда" и "точно не еда" → is_food=true с низкой уверенностью

ОТВЕТ: Только валидный JSON:
{"is_food": boolean, "confidence": float от 0 до 1, "reason": "короткая причина"}`

const promptEN = `Analyze the image. Could this reasonably be food or an edible product?

RULES:
- If the image COULD reasonably represent food or an edible product → is_food=true
- Food can be in any context: on plate, without context, single item, multiple items
- DO NOT reject fruits, vegetables, products without plate or table
- ONLY reject: screenshots, memes, interfaces, live animals, human faces, documents → is_food=false
- When in doubt between "possibly food" and "definitely not food" → is_food=true with low confidence

OUTPUT: Only valid JSON:
{"is_food": boolean, "confidence": float 0-1, "reason": "short reason"}`

// BuildPrompt returns the locale-specific food-detection prompt.
func BuildPrompt(locale string) string {
	if locale == "ru" {
		return promptRU
	}
	return promptEN
}
