package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ozyassistant/ozy/backend/internal/observability"
)

var (
	// ErrResearchFailed marks a pipeline run that produced no usable context.
	ErrResearchFailed = errors.New("research failed")
	// ErrDelegateUnavailable is returned when no delegate runtime is configured.
	ErrDelegateUnavailable = errors.New("research delegate is not configured")
	// ErrEmptyQuery is returned when the simplifier yields nothing.
	ErrEmptyQuery = errors.New("simplifier returned an empty query")
	// ErrNoFindings is returned when the searcher yields nothing.
	ErrNoFindings = errors.New("searcher returned no findings")
)

const (
	simplifierName = "agent_simplifier"
	searcherName   = "agent_searcher"

	contextHeader = "\n\n--- Web Research Context ---\n"
	contextFooter = "\n--- End of Context ---"
)

const simplifierInstruction = `Your only job is to write one concise and effective question to be used in a Google search.
Suggest ONLY the question, with no introduction, explanation or additional text. Make sure the question is clear and directly related to the user's prompt.
Return only ONE search-optimised question.`

const searcherInstruction = `You are an agent specialised in running Google searches and returning the most relevant and recent information found, **including the links to the original sources**.
Use the web_search tool to run the search with the prompt provided by the user, and fetch_page when a source needs checking. Analyse the results and extract the most precise information that answers the user's original intent.

**Format the answer clearly: the relevant content followed by the source link.** When several results are relevant, list them all.

Example format:
[Relevant content of result 1]
Link: https://example.com/result-1

[Relevant content of result 2]
Link: https://example.com/result-2

Stay focused on providing useful research context for another AI, making sure every source is easy to identify by its link.`

// Result is the outcome of a successful pipeline run.
type Result struct {
	Query    string `json:"query"`
	Findings string `json:"findings"`
}

// Pipeline refines a prompt into a search query and searches the web with it.
type Pipeline struct {
	delegate Delegate
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewPipeline creates a pipeline. A nil delegate makes every run fail with
// ErrDelegateUnavailable.
func NewPipeline(delegate Delegate, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		delegate: delegate,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger.Named("research"),
	}
}

// Simplify condenses a free-form prompt into a single search query.
func (p *Pipeline) Simplify(ctx context.Context, prompt string) (string, error) {
	query, err := p.run(ctx, "simplify", Task{
		Name:        simplifierName,
		Description: "Simplifies the user's prompt into a search query.",
		Instruction: simplifierInstruction,
		Input:       fmt.Sprintf("Simplify and structure the following prompt into a Google search question: '%s'", prompt),
	})
	if err != nil {
		return "", err
	}
	if query == "" {
		p.metrics.ObserveResearchStep("simplify", "empty")
		return "", ErrEmptyQuery
	}
	return query, nil
}

// Search runs the query against the web and returns prose with source links.
func (p *Pipeline) Search(ctx context.Context, query string) (string, error) {
	findings, err := p.run(ctx, "search", Task{
		Name:        searcherName,
		Description: "Runs the search and returns the findings with their sources.",
		Instruction: searcherInstruction,
		Input:       fmt.Sprintf("Run a Google search with the following prompt and return the relevant information: '%s'.", query),
		UseTools:    true,
	})
	if err != nil {
		return "", err
	}
	if findings == "" {
		p.metrics.ObserveResearchStep("search", "empty")
		return "", ErrNoFindings
	}
	return findings, nil
}

// Run executes Simplify then Search. Any failure returns the zero Result and
// an error wrapping ErrResearchFailed.
func (p *Pipeline) Run(ctx context.Context, prompt string) (Result, error) {
	query, err := p.Simplify(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: simplify: %w", ErrResearchFailed, err)
	}

	findings, err := p.Search(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: search: %w", ErrResearchFailed, err)
	}

	return Result{Query: query, Findings: findings}, nil
}

func (p *Pipeline) run(ctx context.Context, step string, task Task) (string, error) {
	if p.delegate == nil {
		p.metrics.ObserveResearchStep(step, "unavailable")
		return "", ErrDelegateUnavailable
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	p.logger.Debug("calling delegate", zap.String("agent", task.Name), zap.String("input", task.Input))
	out, err := p.delegate.RunTurn(ctx, task)
	if err != nil {
		p.metrics.ObserveResearchStep(step, "error")
		p.logger.Warn("delegate failed", zap.String("agent", task.Name), zap.Error(err))
		return "", err
	}

	out = strings.TrimSpace(out)
	p.metrics.ObserveResearchStep(step, "ok")
	p.logger.Debug("delegate finished",
		zap.String("agent", task.Name),
		zap.Int("length", len(out)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// FormatContext wraps findings in the delimiter markers appended to the
// outgoing message.
func FormatContext(findings string) string {
	return contextHeader + findings + contextFooter
}
