// Package signal implements lexical intent detection over raw query text.
// Every function here is pure: regex matching only, no external calls.
//
// The pattern lexicon is a behavior contract shared with the frontend and the
// routing prompt; changing it changes routing outcomes.
package signal

import (
	"regexp"
	"strings"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

var (
	timeWords   = regexp.MustCompile(`(今天|明天|后天|现在|本周|本月)`)
	weatherHint = regexp.MustCompile(`(天气|气温|温度|下雨|降雨|晴|阴|多云|台风|空气质量)`)
	newsPrice   = regexp.MustCompile(`(新闻|价格|发布|最新)`)
	kbHint      = regexp.MustCompile(`(知识库|文档|文件|资料|报告|手册|说明书|方案|总结|教程|笔记)`)
	genHint     = regexp.MustCompile(`(写|短诗|诗|故事|续写|润色|摘要|总结|概括|定义|解释|推荐|建议|如何|怎么|一句话|短文|评论|点评|文案|口播|对联|打油诗)`)
	greetHint   = regexp.MustCompile(`(?i)^(你好|您好|哈喽|嗨|hi|hello|hey|早上好|中午好|下午好|晚上好)[！!。.\s]*$`)

	mathKeywords  = regexp.MustCompile(`(计算|求值|求最值|求和|方程|解方程|积分|微分|导数|极限|排列|组合|概率|方差|标准差|矩阵|行列式|特征值|阶乘)`)
	mathOperators = regexp.MustCompile(`[\d)(+\-*/^=]{3,}`)

	explicitKnowledge = regexp.MustCompile(`(用|使用|调用).*(知识库|文档|资料|报告|手册|说明书)`)
	explicitSearch    = regexp.MustCompile(`(联网|上网|搜索|搜一下|搜一搜|查一查)`)
	explicitResponder = regexp.MustCompile(`(不联网|直接回答|纯对话|闲聊)`)

	// Location extraction: a short han-character run before a weather word,
	// or one carrying an administrative suffix.
	locBeforeWeather = regexp.MustCompile(`([一-龥]{2,8})(?:市|省|区|县)?(?:的)?(?:天气|气温|温度)`)
	locWithSuffix    = regexp.MustCompile(`([一-龥]{2,8})(市|省|区|县)`)
)

// Web reports a time/weather/news-or-price signal: the query likely needs
// live information.
func Web(q string) bool {
	return timeWords.MatchString(q) || weatherHint.MatchString(q) || newsPrice.MatchString(q)
}

// WebReasons returns the individual web signal tags present in q, in fixed order.
func WebReasons(q string) []string {
	var rs []string
	if timeWords.MatchString(q) {
		rs = append(rs, "time")
	}
	if weatherHint.MatchString(q) {
		rs = append(rs, "weather")
	}
	if newsPrice.MatchString(q) {
		rs = append(rs, "news/price")
	}
	return rs
}

// Math reports a computation signal: math keywords or a run of operator/digit
// characters.
func Math(q string) bool {
	return mathKeywords.MatchString(q) || mathOperators.MatchString(q)
}

// KBHint reports knowledge-base vocabulary in the query. This is the weak KB
// signal; the strong one is a retrieval probe hit.
func KBHint(q string) bool {
	return kbHint.MatchString(q)
}

// Generative reports writing/explanation/summarization phrasing.
func Generative(q string) bool {
	return genHint.MatchString(q)
}

// PreferResponder reports that the query is generative and carries no web or
// math signal, so the language model should answer it directly.
func PreferResponder(q string) bool {
	return Generative(q) && !Web(q) && !Math(q)
}

// Greeting reports a bare greeting.
func Greeting(q string) bool {
	return greetHint.MatchString(strings.TrimSpace(q))
}

// Short reports a trimmed length of at most 6 characters.
func Short(q string) bool {
	return len([]rune(strings.TrimSpace(q))) <= 6
}

// Explicit is a matched explicit-tool instruction.
type Explicit struct {
	Tool   decision.ToolID
	Reason string
}

// DetectExplicit recognizes unambiguous imperative tool phrasing. It returns
// nil when no explicit pattern matches. Knowledge-base phrasing is checked
// first so that "用知识库查一查" binds to the knowledge base, not search, and
// the responder pattern before the search one so that the 联网 inside 不联网
// cannot read as a search directive.
func DetectExplicit(q string) *Explicit {
	switch {
	case explicitKnowledge.MatchString(q):
		return &Explicit{Tool: decision.ToolKnowledge, Reason: "explicit:f2"}
	case explicitResponder.MatchString(q):
		return &Explicit{Tool: decision.ToolResponder, Reason: "explicit:llm"}
	case explicitSearch.MatchString(q):
		return &Explicit{Tool: decision.ToolSearch, Reason: "explicit:f1"}
	}
	return nil
}

// SearchProvider tags every slot set; routing never reads it.
const SearchProvider = "metaso"

// ExtractSlots pulls advisory metadata for web-search-bound decisions: a
// relative-time token, a location token, and the provider tag. Slots never
// alter the routing decision itself.
func ExtractSlots(q string) map[string]string {
	slots := map[string]string{}

	if m := timeWords.FindStringSubmatch(q); m != nil {
		slots["when"] = m[1]
	}

	if m := locBeforeWeather.FindStringSubmatch(q); m != nil {
		slots["location"] = m[1]
	} else if m := locWithSuffix.FindStringSubmatch(q); m != nil {
		slots["location"] = m[1] + m[2]
	}

	slots["provider"] = SearchProvider
	return slots
}
