package extract

import "fmt"

const systemPrompt = `你是一名面向知识图谱构建的史料信息抽取助手。` +
	`输入是一卷史书中的一个完整小节（以小标题为单位）。` +
	`请从文本中提炼出实体（人物、地点、官职）、事件与实体间关系，并提供可追溯证据。` +
	`要求：只依据原文；不要编造；只输出严格 JSON。`

const userPromptTemplate = `从以下史料中抽取结构化信息：

【小节标题】%s

【小节内容】
%s

要求输出格式（严格JSON，三个顶层数组缺一不可）：
{
  "entities": [{"name": "...", "type": "PERSON|PLACE|OFFICE|OTHER", "aliases": [...], "evidence": [...]}],
  "events": [{"event_name": "...", "event_type": "...", "time": "...", "place": "...", "participants": [...], "description": "...", "evidence": [...], "confidence": 0.9}],
  "relations": [{"type": "PERSON_PERSON|PERSON_OFFICE|PERSON_PLACE|PERSON_EVENT", "from": "...", "to": "...", "relation": "...", "time": "...", "place": "...", "evidence": "...", "confidence": 0.9}]
}

规则：
- 小节标题常含关键时间信息，对相对时间要结合标题给出明确 time。
- 没有可抽取内容的数组输出为空数组 []，不要省略。
- evidence 必须是原文节选。`

// buildUserPrompt renders the user message for one segment.
func buildUserPrompt(title, text string) string {
	return fmt.Sprintf(userPromptTemplate, title, text)
}
