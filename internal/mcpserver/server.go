// Package mcpserver exposes question generation and answer grading as Model
// Context Protocol tools, so assistants can run practice interviews without
// the web client.
//
// Tools are stateless: nothing is written to the document store.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mockprep/internal/answer"
	"github.com/MrWong99/mockprep/internal/interview"
	"github.com/MrWong99/mockprep/internal/observe"
)

// Tool names.
const (
	ToolGenerateQuestions = "generate_questions"
	ToolGradeAnswer       = "grade_answer"
)

// GenerateInput is the input of the generate_questions tool.
type GenerateInput struct {
	Position    string  `json:"position" jsonschema:"job position or role, at most 100 characters"`
	Description string  `json:"description" jsonschema:"job description, at least 10 characters"`
	Experience  float64 `json:"experience" jsonschema:"years of experience"`
	TechStack   string  `json:"techStack" jsonschema:"comma separated technologies"`
}

// GenerateOutput is the structured result of generate_questions.
type GenerateOutput struct {
	Questions []interview.QAPair `json:"questions"`
}

// GradeInput is the input of the grade_answer tool.
type GradeInput struct {
	Question      string `json:"question" jsonschema:"the interview question"`
	CorrectAnswer string `json:"correctAnswer" jsonschema:"the reference answer"`
	UserAnswer    string `json:"userAnswer" jsonschema:"the candidate's answer, at least 30 characters"`
}

// Server is an MCP server backed by the interview and answer services.
type Server struct {
	mcp        *mcpsdk.Server
	interviews *interview.Service
	grader     *answer.Grader
}

// New builds a Server and registers its tools.
func New(interviews *interview.Service, grader *answer.Grader, version string) *Server {
	s := &Server{
		mcp:        mcpsdk.NewServer(&mcpsdk.Implementation{Name: "mockprep", Version: version}, nil),
		interviews: interviews,
		grader:     grader,
	}
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        ToolGenerateQuestions,
		Description: "Generate mock interview questions with reference answers for a job position.",
	}, s.generateQuestions)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        ToolGradeAnswer,
		Description: "Rate a candidate's answer to an interview question and give improvement feedback.",
	}, s.gradeAnswer)
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

func (s *Server) generateQuestions(ctx context.Context, _ *mcpsdk.CallToolRequest, in GenerateInput) (*mcpsdk.CallToolResult, GenerateOutput, error) {
	qs, err := s.interviews.Preview(ctx, interview.Spec{
		Position:    in.Position,
		Description: in.Description,
		Experience:  in.Experience,
		TechStack:   in.TechStack,
	})
	if err != nil {
		observe.Logger(ctx).Warn("mcp: generate_questions failed", "err", err)
		return nil, GenerateOutput{}, err
	}
	return nil, GenerateOutput{Questions: qs}, nil
}

func (s *Server) gradeAnswer(ctx context.Context, _ *mcpsdk.CallToolRequest, in GradeInput) (*mcpsdk.CallToolResult, answer.Result, error) {
	if in.Question == "" {
		return nil, answer.Result{}, fmt.Errorf("question is required")
	}
	if utf8.RuneCountInString(in.UserAnswer) < answer.MinAnswerLength {
		return nil, answer.Result{}, answer.ErrAnswerTooShort
	}
	return nil, s.grader.Grade(ctx, in.Question, in.CorrectAnswer, in.UserAnswer), nil
}
