package rag

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dshills/datasheet-rag/pkg/types"
)

// Prompt languages
const (
	LanguageKorean  = "ko"
	LanguageEnglish = "en"
)

const (
	// PreviewLength is the number of runes kept in a source's content preview
	PreviewLength = 250

	// enhancementKeywords is how many role keywords are appended to a weak query
	enhancementKeywords = 2
)

// roleKeywords are the terms each role tends to ask about
var roleKeywords = map[types.UserRole][]string{
	types.RoleEngineer: {
		"specifications", "parameters", "design", "technical", "electrical",
		"mechanical", "performance", "characteristics", "dimensions",
	},
	types.RoleQuality: {
		"limits", "tolerance", "standards", "compliance", "testing",
		"quality", "certification", "reliability", "durability",
	},
	types.RoleSales: {
		"features", "benefits", "advantages", "comparison", "competitive",
		"applications", "use cases", "market", "customer value",
	},
	types.RoleSupport: {
		"troubleshooting", "compatibility", "solutions", "problems",
		"issues", "installation", "maintenance", "support", "help",
	},
}

var roleInstructions = map[string]map[types.UserRole]string{
	LanguageKorean: {
		types.RoleEngineer: "기술적 세부사항, 사양, 설계 파라미터에 집중하여 정확한 수치와 조건을 포함해 답변하세요.",
		types.RoleQuality:  "품질 기준, 한계치, 테스트 조건, 규격 준수 사항에 중점을 두어 답변하세요.",
		types.RoleSales:    "제품의 특징, 장점, 경쟁 우위를 강조하여 고객 가치 중심으로 답변하세요.",
		types.RoleSupport:  "문제해결 방법, 호환성 정보, 실용적인 해결책에 초점을 맞춰 답변하세요.",
	},
	LanguageEnglish: {
		types.RoleEngineer: "Focus on technical details, specifications and design parameters, including exact values and conditions.",
		types.RoleQuality:  "Focus on quality criteria, limits, test conditions and standards compliance.",
		types.RoleSales:    "Emphasize product features, benefits and competitive advantages in terms of customer value.",
		types.RoleSupport:  "Focus on troubleshooting steps, compatibility information and practical solutions.",
	},
}

type contextLabels struct {
	document, file, product, page, section, content, truncated string

	// multi-source context
	source, database, web string
}

var labels = map[string]contextLabels{
	LanguageKorean: {
		document: "문서", file: "파일", product: "제품", page: "페이지", section: "섹션", content: "내용",
		truncated: "\n[내용이 길어 일부만 표시됨]",
		source: "소스", database: "DB", web: "웹",
	},
	LanguageEnglish: {
		document: "Document", file: "File", product: "Product", page: "Page", section: "Section", content: "Content",
		truncated: "\n[content truncated]",
		source: "Source", database: "DB", web: "Web",
	},
}

const koreanPrompt = `
다음은 제품 데이터시트에서 추출한 기술 정보입니다:

%s

사용자 역할: %s
지침: %s

질문: %s

위 정보를 바탕으로 정확하고 구체적인 한글 답변을 제공하세요.

** 중요한 답변 형식 지침 **:
1. 반드시 한국어로만 답변하세요
2. 개조식으로 답변하세요 (예: "• DDR5 동작 전압: 1.1V", "• 온도 범위: 0~95℃")
3. 구체적인 수치와 단위를 포함하세요
4. 관련 조건이나 제약사항을 명시하세요
5. 정보가 불충분한 경우 그 사실을 명시하세요
6. 추측하지 말고 제공된 정보에만 기반하여 답변하세요
7. 영어 단어는 필요한 기술용어만 사용하고 괄호로 병기하세요

한글 개조식 답변:`

const englishPrompt = `
The following technical information was extracted from product datasheets:

%s

User role: %s
Instruction: %s

Question: %s

Answer accurately and specifically using only the information above.

** Answer format **:
1. Answer in English
2. Use bullet points (e.g. "• DDR5 operating voltage: 1.1V", "• Temperature range: 0~95°C")
3. Include concrete values and units
4. State related conditions and constraints
5. Say so when the information is insufficient
6. Do not guess; rely only on the information provided

Bulleted answer:`

// normalizeLanguage maps anything but "en" to Korean
func normalizeLanguage(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), LanguageEnglish) {
		return LanguageEnglish
	}
	return LanguageKorean
}

// enhanceQuery appends the role's first two keywords when fewer than two of
// them already appear in the question
func enhanceQuery(question string, role types.UserRole) string {
	keywords := roleKeywords[role]
	if len(keywords) == 0 {
		return question
	}

	lower := strings.ToLower(question)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	if matches >= enhancementKeywords {
		return question
	}
	return question + " " + strings.Join(keywords[:enhancementKeywords], " ")
}

// buildContext renders results as numbered document blocks, capped at maxLength runes
func buildContext(results []types.SearchResult, lang string, maxLength int) string {
	l := labels[normalizeLanguage(lang)]

	parts := make([]string, 0, len(results))
	for i, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "\n--- %s %d ---", l.document, i+1)
		if r.Document != nil {
			fmt.Fprintf(&b, "\n%s: %s", l.file, r.Document.Filename)
			if r.Document.ProductModel != "" {
				fmt.Fprintf(&b, "\n%s: %s", l.product, r.Document.ProductModel)
			}
		}
		if r.PageNumber > 0 {
			fmt.Fprintf(&b, "\n%s: %d", l.page, r.PageNumber)
		}
		if r.Section != "" {
			fmt.Fprintf(&b, "\n%s: %s", l.section, r.Section)
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", l.content, r.Content)
		parts = append(parts, b.String())
	}

	context := strings.Join(parts, "\n")
	if maxLength > 0 && utf8.RuneCountInString(context) > maxLength {
		context = string([]rune(context)[:maxLength]) + l.truncated
	}
	return context
}

// buildPrompt combines the role instruction, context and question
func buildPrompt(lang string, role types.UserRole, question, context string) string {
	lang = normalizeLanguage(lang)
	template := koreanPrompt
	if lang == LanguageEnglish {
		template = englishPrompt
	}
	return fmt.Sprintf(template, context, role, roleInstructions[lang][role], question)
}

// preview returns the first PreviewLength runes of content
func preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	return string([]rune(content)[:PreviewLength])
}

// calculateConfidence is 0.7 * mean relevance + 0.3 * min(len(answer)/100, 1),
// clamped to [0,1] and rounded to three places
func calculateConfidence(results []types.SearchResult, answer string) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum float64
	for _, r := range results {
		sum += r.RelevanceScore
	}
	return blendConfidence(sum/float64(len(results)), answer)
}

func blendConfidence(avgRelevance float64, answer string) float64 {
	lengthFactor := math.Min(float64(utf8.RuneCountInString(answer))/100, 1)
	return round3(avgRelevance*0.7 + lengthFactor*0.3)
}

func round3(v float64) float64 {
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1000) / 1000
}
