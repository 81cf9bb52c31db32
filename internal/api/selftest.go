package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dshills/datasheet-rag/internal/quality"
)

// SelfTestRequest runs a predefined suite, or the given cases when present
type SelfTestRequest struct {
	TestSuite   string         `json:"test_suite"`
	CustomCases []quality.Case `json:"custom_cases,omitempty"`
}

// POST /selftest/run
func (s *Server) runSelfTest(c *gin.Context) {
	var req SelfTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	validator := s.rag.Validator()
	if len(req.CustomCases) > 0 {
		c.JSON(http.StatusOK, validator.RunSelfTest(req.CustomCases))
		return
	}

	name := strings.TrimSpace(req.TestSuite)
	if name == "" {
		s.writeError(c, badRequest("test_suite or custom_cases is required"))
		return
	}
	report, err := validator.RunSuite(c.Request.Context(), name, s.rag.Asker())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ValidateRequest is an answer to score
type ValidateRequest struct {
	Question   string           `json:"question"`
	Answer     string           `json:"answer"`
	Sources    []quality.Source `json:"sources"`
	Confidence *float64         `json:"confidence,omitempty"`
}

// POST /selftest/validate
func (s *Server) validateAnswer(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(c, badRequest("question is required"))
		return
	}

	confidence := quality.DefaultCaseConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	c.JSON(http.StatusOK, s.rag.Validator().Validate(req.Question, req.Answer, req.Sources, confidence))
}

// SuiteSummary describes a suite without its questions
type SuiteSummary struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Categories       []string `json:"categories"`
	TestCount        int      `json:"test_count"`
	ExpectedAccuracy float64  `json:"expected_accuracy"`
}

func summarize(suite quality.Suite) SuiteSummary {
	return SuiteSummary{
		Name:             suite.Name,
		Title:            suite.Title,
		Description:      suite.Description,
		Categories:       suite.Categories,
		TestCount:        len(suite.Questions),
		ExpectedAccuracy: suite.ExpectedAccuracy,
	}
}

// GET /selftest/suites
func (s *Server) listSuites(c *gin.Context) {
	suites := quality.Suites()
	out := make([]SuiteSummary, len(suites))
	for i, suite := range suites {
		out[i] = summarize(suite)
	}
	c.JSON(http.StatusOK, gin.H{"suites": out})
}

// GET /selftest/suite/:name
func (s *Server) getSuite(c *gin.Context) {
	suite, err := quality.GetSuite(c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suite":     summarize(suite),
		"questions": suite.Questions,
	})
}
