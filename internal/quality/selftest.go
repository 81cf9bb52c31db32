package quality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownSuite is returned for a suite name that is not defined
var ErrUnknownSuite = errors.New("unknown test suite")

// DefaultCaseConfidence is used when a case does not carry a confidence
const DefaultCaseConfidence = 0.5

// failedQueryAnswer replaces the answer of a suite question whose query failed
const failedQueryAnswer = "테스트 실행 실패"

// Case is one answer to be checked by RunSelfTest
type Case struct {
	Question           string   `json:"question"`
	ExpectedAnswer     string   `json:"expected_answer"`
	ActualAnswer       string   `json:"actual_answer"`
	ExpectedValidation *bool    `json:"expected_validation,omitempty"`
	Sources            []Source `json:"sources"`
	Confidence         *float64 `json:"confidence,omitempty"`
}

// ExpectsValid reports whether the case expects a valid answer; the default is true
func (c Case) ExpectsValid() bool {
	return c.ExpectedValidation == nil || *c.ExpectedValidation
}

func (c Case) confidence() float64 {
	if c.Confidence == nil {
		return DefaultCaseConfidence
	}
	return *c.Confidence
}

// CaseResult is the outcome of one self-test case
type CaseResult struct {
	TestID             int    `json:"test_id"`
	Question           string `json:"question"`
	ExpectedAnswer     string `json:"expected_answer"`
	ActualAnswer       string `json:"actual_answer"`
	ExpectedValidation bool   `json:"expected_validation"`
	Passed             bool   `json:"passed"`
	Validation         Result `json:"validation_result"`
}

// Report summarizes a self-test run
type Report struct {
	TotalTests   int          `json:"total_tests"`
	Passed       int          `json:"passed"`
	Failed       int          `json:"failed"`
	OverallScore float64      `json:"overall_score"`
	TestResults  []CaseResult `json:"test_results"`
	Timestamp    time.Time    `json:"timestamp"`
}

// RunSelfTest validates every case. A case expecting a valid answer passes when the
// answer is valid with a score of at least 0.5; a case expecting an invalid answer
// passes otherwise.
func (v *Validator) RunSelfTest(cases []Case) *Report {
	report := &Report{
		TotalTests:  len(cases),
		TestResults: make([]CaseResult, 0, len(cases)),
		Timestamp:   time.Now().UTC(),
	}

	for i, c := range cases {
		validation := v.Validate(c.Question, c.ActualAnswer, c.Sources, c.confidence())
		good := validation.IsValid && validation.QualityScore >= LowQualityThreshold

		passed := good
		if !c.ExpectsValid() {
			passed = !good
		}

		if passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.TestResults = append(report.TestResults, CaseResult{
			TestID:             i + 1,
			Question:           c.Question,
			ExpectedAnswer:     c.ExpectedAnswer,
			ActualAnswer:       c.ActualAnswer,
			ExpectedValidation: c.ExpectsValid(),
			Passed:             passed,
			Validation:         validation,
		})
	}

	if report.TotalTests > 0 {
		report.OverallScore = float64(report.Passed) / float64(report.TotalTests)
	}
	return report
}

// Answer is a generated answer with the sources it was built from
type Answer struct {
	Text       string
	Sources    []Source
	Confidence float64
}

// Asker answers a question end to end, usually through the RAG service
type Asker interface {
	Ask(ctx context.Context, question string) (*Answer, error)
}

// SuiteQuestion is a predefined question and whether a valid answer is expected
type SuiteQuestion struct {
	Question    string `json:"question"`
	ExpectValid bool   `json:"expect_valid"`
}

// Suite is a named set of predefined questions
type Suite struct {
	Name             string          `json:"name"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Categories       []string        `json:"categories"`
	ExpectedAccuracy float64         `json:"expected_accuracy"`
	Questions        []SuiteQuestion `json:"questions"`
}

var suites = map[string]Suite{
	"manufacturing": {
		Name:             "manufacturing",
		Title:            "제조업 데이터시트 테스트",
		Description:      "DDR5, 메모리 모듈 등 제조업 특화 질문들",
		Categories:       []string{"전압", "타이밍", "용량", "호환성", "온도"},
		ExpectedAccuracy: 0.85,
		Questions: []SuiteQuestion{
			{"DDR5의 동작 전압은 얼마인가요?", true},
			{"DDR5의 최대 용량은?", true},
			{"RDIMM과 UDIMM의 차이는?", true},
			{"DDR5의 ECC 기능은?", true},
			{"메모리 모듈의 온도 범위는?", true},
			{"DDR6의 출시일은 언제인가요?", false},
			{"이 제품의 가격은 얼마인가요?", false},
			{"제조사의 연락처는?", false},
		},
	},
	"general": {
		Name:             "general",
		Title:            "일반 RAG 테스트",
		Description:      "기본적인 문서 검색 및 질의응답",
		Categories:       []string{"검색", "요약", "분류", "추출"},
		ExpectedAccuracy: 0.80,
		Questions: []SuiteQuestion{
			{"문서에는 어떤 제품들이 설명되어 있나요?", true},
			{"주요 기술 사양은 무엇인가요?", true},
			{"호환성 정보가 있나요?", true},
			{"설치 방법이 설명되어 있나요?", true},
			{"이 회사의 주식 가격은?", false},
			{"CEO가 누구인가요?", false},
		},
	},
	"hallucination": {
		Name:             "hallucination",
		Title:            "환각 억제 테스트",
		Description:      "존재하지 않는 정보에 대한 적절한 응답",
		Categories:       []string{"거짓 정보", "추측", "없는 데이터"},
		ExpectedAccuracy: 0.90,
		Questions: []SuiteQuestion{
			{"존재하지 않는 DDR7 규격에 대해 알려주세요", false},
			{"이 제품의 미래 로드맵은?", false},
			{"경쟁사 비교 분석해주세요", false},
			{"시장 점유율은 어떻게 되나요?", false},
		},
	},
	"accuracy": {
		Name:             "accuracy",
		Title:            "정확도 검증 테스트",
		Description:      "명확한 답이 있는 질문들의 정확도",
		Categories:       []string{"수치", "사실", "정의", "절차"},
		ExpectedAccuracy: 0.88,
		Questions: []SuiteQuestion{
			{"DDR5의 정확한 데이터 전송률은?", true},
			{"메모리 모듈의 핀 수는?", true},
			{"동작 온도 범위는 정확히 얼마인가요?", true},
			{"전력 소비량은?", true},
		},
	},
}

// Suites returns every predefined suite ordered by name
func Suites() []Suite {
	out := make([]Suite, 0, len(suites))
	for _, s := range suites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetSuite returns the named suite
func GetSuite(name string) (Suite, error) {
	s, ok := suites[name]
	if !ok {
		return Suite{}, fmt.Errorf("%w: %s", ErrUnknownSuite, name)
	}
	return s, nil
}

// BuildCases asks every question and turns the answers into self-test cases.
// A question whose query fails becomes a case that expects an invalid answer.
func BuildCases(ctx context.Context, asker Asker, questions []SuiteQuestion) ([]Case, error) {
	cases := make([]Case, 0, len(questions))
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expect := q.ExpectValid
		answer, err := asker.Ask(ctx, q.Question)
		if err != nil {
			expect = false
			zero := 0.0
			cases = append(cases, Case{
				Question:           q.Question,
				ActualAnswer:       failedQueryAnswer,
				ExpectedValidation: &expect,
				Sources:            []Source{},
				Confidence:         &zero,
			})
			continue
		}

		confidence := answer.Confidence
		cases = append(cases, Case{
			Question:           q.Question,
			ActualAnswer:       answer.Text,
			ExpectedValidation: &expect,
			Sources:            answer.Sources,
			Confidence:         &confidence,
		})
	}
	return cases, nil
}

// RunSuite answers every question of the named suite and validates the answers
func (v *Validator) RunSuite(ctx context.Context, name string, asker Asker) (*Report, error) {
	suite, err := GetSuite(name)
	if err != nil {
		return nil, err
	}
	cases, err := BuildCases(ctx, asker, suite.Questions)
	if err != nil {
		return nil, err
	}
	return v.RunSelfTest(cases), nil
}
