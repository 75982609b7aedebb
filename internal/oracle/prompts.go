package oracle

import "strings"

const defaultSummaryLanguage = "Telugu"

const summaryTemplate = `You are a helpful assistant. Summarize the following Discord message into clear, bullet-point {{LANG}}, preserving key tickers/symbols and statuses.

Output rules:
- Use short, simple {{LANG}} sentences
- Keep tickers (e.g., BTC, SOL) in Latin script
- If the message contains a recap/list, provide one bullet per line
- Do NOT add trading advice; only explain
- No preface, return only the summary lines

Message:
"""
{{TEXT}}
"""`

const extractTemplate = `You are a trading signal analyzer. Extract the trading information from the message below.

MESSAGE FORMAT EXAMPLES:
- "BTC\nEntries 119000-119500\nRisk 5%\nLeverage 10x\nSL: 4H close below 115000"
- "AAVE.P\nEntries 286.72-281.53\nRisk 5%\nLeverage 20x\nSL: 4H close below 275.44"
- "SOL\nEntries 150\nRisk 5%\nLeverage 10x"

PARSING RULES:
1. symbol: the traded instrument as written (e.g. "BTC", "AAVE.P")
2. side: "Buy" or "Sell", judged from the entries and context
3. entries: every entry price; levels are separated by "-" or "/" and are limit orders
4. riskPercent: the EXACT risk percentage in the message ("Risk 7%" is 7.0)
5. leverage: the multiplier ("20x" is 20); use 10 when not stated
6. stopLoss and stopLossCondition: the stop price and its condition (e.g. "4H close below")
7. confidence: how sure you are, from 0 to 1
8. reasoning: one short sentence

RESPONSE FORMAT (JSON only):
{
  "symbol": "BTC",
  "side": "Buy",
  "entries": [119000, 119500],
  "riskPercent": 5.0,
  "leverage": 10,
  "stopLoss": 115000,
  "stopLossCondition": "4H close below",
  "confidence": 0.95,
  "reasoning": "Clear signal with multiple entries and defined risk"
}

MESSAGE TO ANALYZE:
{{TEXT}}

Return ONLY the JSON object.`

// SummaryPrompt builds the summarization prompt for text in language.
func SummaryPrompt(language, text string) string {
	if language == "" {
		language = defaultSummaryLanguage
	}
	return strings.NewReplacer("{{LANG}}", language, "{{TEXT}}", text).Replace(summaryTemplate)
}

// ExtractPrompt builds the signal extraction prompt for text.
func ExtractPrompt(text string) string {
	return strings.Replace(extractTemplate, "{{TEXT}}", text, 1)
}
