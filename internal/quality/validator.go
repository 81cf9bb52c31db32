package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RiskLevel grades hallucination risk and keyword confidence
type RiskLevel string

const (
	LevelLow    RiskLevel = "low"
	LevelMedium RiskLevel = "medium"
	LevelHigh   RiskLevel = "high"
)

// Thresholds used by Validate
const (
	MinAnswerLength       = 5
	IndicatorRisk         = 0.2
	HighRiskThreshold     = 0.6
	MediumRiskThreshold   = 0.3
	MinSourceCoverage     = 0.3
	HighRiskPenalty       = 0.5
	InconsistencyPenalty  = 0.7
	LowQualityThreshold   = 0.5
	LowConfidenceWarning  = 0.5
	MinKeywordRuneLength  = 3
	riskScoreRoundingUnit = 1000
)

// Source is the retrieved text an answer should be grounded on
type Source struct {
	Content string `json:"content"`
}

// BasicCheck reports the structural checks on an answer
type BasicCheck struct {
	Valid  bool            `json:"is_valid"`
	Issues []string        `json:"issues"`
	Checks map[string]bool `json:"checks"`
}

// HallucinationCheck reports speculative phrasing found in an answer
type HallucinationCheck struct {
	RiskLevel  RiskLevel `json:"risk_level"`
	Indicators []string  `json:"indicators_found"`
	RiskScore  float64   `json:"risk_score"`
}

// SourceCheck reports how much of the answer's vocabulary appears in the sources
type SourceCheck struct {
	Consistent bool    `json:"is_consistent"`
	Score      float64 `json:"consistency_score"`
	Coverage   float64 `json:"source_coverage"`
}

// ConfidenceCheck reports certainty keywords found in an answer
type ConfidenceCheck struct {
	Level RiskLevel              `json:"confidence_level"`
	Found map[RiskLevel][]string `json:"keywords_found"`
}

// Details holds every individual check
type Details struct {
	Basic              BasicCheck         `json:"basic"`
	Hallucination      HallucinationCheck `json:"hallucination"`
	SourceConsistency  SourceCheck        `json:"source_consistency"`
	ConfidenceKeywords ConfidenceCheck    `json:"confidence_keywords"`
}

// Result is the outcome of validating one answer
type Result struct {
	IsValid            bool     `json:"is_valid"`
	QualityScore       float64  `json:"quality_score"`
	Issues             []string `json:"issues"`
	Suggestions        []string `json:"suggestions"`
	ConfidenceAdjusted float64  `json:"confidence_adjusted"`
	Details            Details  `json:"validation_details"`
}

var (
	boilerplatePatterns = []string{
		`도와드릴 수 있`, `어떻게.*도와`, `무엇.*원하시`,
		`As an AI`, `I'm an AI`, `assist you`,
		`죄송합니다.*도와드리지`, `더 구체적으로.*말씀해`,
	}

	hallucinationPatterns = []string{
		`확실하지.*않지만`, `추측.*입니다`, `아마도`,
		`것 같습니다`, `생각됩니다`, `추정.*됩니다`,
	}

	confidenceKeywords = []struct {
		level    RiskLevel
		keywords []string
	}{
		{LevelHigh, []string{"정확히", "명시되어", "문서에 따르면", "사양서에서"}},
		{LevelMedium, []string{"일반적으로", "보통", "대체로"}},
		{LevelLow, []string{"가능성이", "추정", "예상", "것으로 보임"}},
	}

	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

type pattern struct {
	source string
	re     *regexp.Regexp
}

func compileAll(sources []string) []pattern {
	patterns := make([]pattern, len(sources))
	for i, s := range sources {
		patterns[i] = pattern{source: s, re: regexp.MustCompile(`(?i)` + s)}
	}
	return patterns
}

// Validator scores generated answers for quality and grounding
type Validator struct {
	boilerplate   []pattern
	hallucination []pattern
}

// NewValidator creates a Validator with the built-in Korean and English patterns
func NewValidator() *Validator {
	return &Validator{
		boilerplate:   compileAll(boilerplatePatterns),
		hallucination: compileAll(hallucinationPatterns),
	}
}

// Validate runs every check on answer and returns the combined result.
// The question is not scored.
func (v *Validator) Validate(question, answer string, sources []Source, confidence float64) Result {
	result := Result{
		IsValid:            true,
		Issues:             []string{},
		ConfidenceAdjusted: confidence,
	}

	basic := v.checkBasic(answer)
	result.Details.Basic = basic
	if !basic.Valid {
		result.IsValid = false
		result.Issues = append(result.Issues, basic.Issues...)
	}

	halluc := v.checkHallucination(answer)
	result.Details.Hallucination = halluc
	if halluc.RiskLevel == LevelHigh {
		result.ConfidenceAdjusted *= HighRiskPenalty
		result.Issues = append(result.Issues, "높은 환각 위험 감지")
	}

	consistency := checkSourceConsistency(answer, sources)
	result.Details.SourceConsistency = consistency
	if !consistency.Consistent {
		result.ConfidenceAdjusted *= InconsistencyPenalty
		result.Issues = append(result.Issues, "소스와의 일치성 부족")
	}

	result.Details.ConfidenceKeywords = analyzeConfidenceKeywords(answer)
	result.QualityScore = qualityScore(result.Details)
	result.Suggestions = suggestions(result)
	return result
}

func (v *Validator) checkBasic(answer string) BasicCheck {
	check := BasicCheck{Valid: true, Issues: []string{}, Checks: map[string]bool{}}
	trimmed := strings.TrimSpace(answer)

	check.Checks["length"] = utf8.RuneCountInString(trimmed) >= MinAnswerLength
	if !check.Checks["length"] {
		check.Valid = false
		check.Issues = append(check.Issues, "답변이 너무 짧거나 비어있음")
	}

	check.Checks["not_na"] = !strings.EqualFold(trimmed, "N/A")
	if !check.Checks["not_na"] {
		check.Valid = false
		check.Issues = append(check.Issues, "정보를 찾을 수 없음")
	}

	boilerplate := false
	for _, p := range v.boilerplate {
		if p.re.MatchString(answer) {
			boilerplate = true
			break
		}
	}
	check.Checks["not_boilerplate"] = !boilerplate
	if boilerplate {
		check.Valid = false
		check.Issues = append(check.Issues, "일반적인 AI 응답 템플릿 감지")
	}

	return check
}

func (v *Validator) checkHallucination(answer string) HallucinationCheck {
	check := HallucinationCheck{RiskLevel: LevelLow, Indicators: []string{}}
	for _, p := range v.hallucination {
		if p.re.MatchString(answer) {
			check.Indicators = append(check.Indicators, p.source)
		}
	}

	check.RiskScore = math.Round(float64(len(check.Indicators))*IndicatorRisk*riskScoreRoundingUnit) / riskScoreRoundingUnit
	switch {
	case check.RiskScore >= HighRiskThreshold:
		check.RiskLevel = LevelHigh
	case check.RiskScore >= MediumRiskThreshold:
		check.RiskLevel = LevelMedium
	}
	return check
}

// keywords returns the distinct lowercased words of at least three runes
func keywords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) >= MinKeywordRuneLength {
			words[w] = struct{}{}
		}
	}
	return words
}

func checkSourceConsistency(answer string, sources []Source) SourceCheck {
	check := SourceCheck{Consistent: true, Score: 1}
	if len(sources) == 0 {
		check.Consistent = false
		check.Score = 0
		return check
	}

	answerWords := keywords(answer)
	sourceWords := make(map[string]struct{})
	for _, s := range sources {
		for w := range keywords(s.Content) {
			sourceWords[w] = struct{}{}
		}
	}
	if len(answerWords) == 0 || len(sourceWords) == 0 {
		return check
	}

	overlap := 0
	for w := range answerWords {
		if _, ok := sourceWords[w]; ok {
			overlap++
		}
	}
	check.Coverage = float64(overlap) / float64(len(answerWords))
	if check.Coverage < MinSourceCoverage {
		check.Consistent = false
		check.Score = check.Coverage
	}
	return check
}

func analyzeConfidenceKeywords(answer string) ConfidenceCheck {
	check := ConfidenceCheck{
		Level: LevelMedium,
		Found: map[RiskLevel][]string{LevelHigh: {}, LevelMedium: {}, LevelLow: {}},
	}
	for _, group := range confidenceKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(answer, kw) {
				check.Found[group.level] = append(check.Found[group.level], kw)
			}
		}
	}

	switch {
	case len(check.Found[LevelHigh]) > 0:
		check.Level = LevelHigh
	case len(check.Found[LevelLow]) > 0:
		check.Level = LevelLow
	}
	return check
}

// qualityScore weights basic validity 0.4, hallucination 0.3, consistency 0.2 and certainty 0.1
func qualityScore(d Details) float64 {
	score := 0.0
	if d.Basic.Valid {
		score += 0.4
	}

	switch d.Hallucination.RiskLevel {
	case LevelLow:
		score += 0.3
	case LevelMedium:
		score += 0.15
	}

	score += 0.2 * d.SourceConsistency.Score

	switch d.ConfidenceKeywords.Level {
	case LevelHigh:
		score += 0.1
	case LevelMedium:
		score += 0.05
	}

	return math.Min(1, score)
}

func suggestions(r Result) []string {
	out := []string{}
	if r.QualityScore < LowQualityThreshold {
		out = append(out, "답변 품질이 낮습니다. 더 구체적인 정보가 필요합니다.")
	}
	if r.Details.Hallucination.RiskLevel == LevelHigh {
		out = append(out, "추측성 표현을 줄이고 확실한 정보만 제공하세요.")
	}
	if !r.Details.SourceConsistency.Consistent {
		out = append(out, "소스 문서의 내용을 더 정확히 반영하세요.")
	}
	if r.ConfidenceAdjusted < LowConfidenceWarning {
		out = append(out, "신뢰도가 낮습니다. 더 정확한 소스가 필요합니다.")
	}
	return out
}
