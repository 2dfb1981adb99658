package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/adboard-backend/pkg/errors"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/workersai"
)

// VisibilityThreshold is the lowest score that is shown in search.
const VisibilityThreshold = 5

var (
	// ErrNoValidTags is returned when non-zero-score content cannot be tagged.
	ErrNoValidTags = errors.New("content has no valid tags")
	// ErrUnavailable is returned when the model could not be reached for tagging.
	ErrUnavailable = errors.New("content analysis unavailable")
)

type generator interface {
	Generate(ctx context.Context, req workersai.GenerateRequest) (string, error)
}

// Result is the final moderation and tagging outcome for a listing.
type Result struct {
	Score    int
	Reasons  []string
	Tags     []string
	Visible  bool
	Warnings []string
	// Refused is set when the model declined or produced unusable output.
	Refused bool
	// FailedOpen is set when moderation was unavailable and defaulted to allow.
	FailedOpen bool
	// Fallback is set when the split moderation and tagging calls were used.
	Fallback bool
}

// Analyzer scores and tags listing content with a text model.
type Analyzer struct {
	ai        generator
	maxTokens int
	logg      *logger.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(ai generator, maxTokens int, logg *logger.Logger) (*Analyzer, error) {
	if ai == nil {
		return nil, fmt.Errorf("text generator required")
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Analyzer{ai: ai, maxTokens: maxTokens, logg: logg}, nil
}

// Analyze runs the combined call and falls back to split calls if it fails.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	text, err := a.call(ctx, ModeCombined, in)
	if err != nil {
		a.warn(ctx, fmt.Sprintf("combined analysis failed, falling back to split calls: %v", err))
		return a.analyzeSplit(ctx, in)
	}

	result := resultFrom(Parse(text, ModeCombined))
	if result.Score == 0 || len(result.Tags) > 0 {
		return result, nil
	}

	a.warn(ctx, "combined analysis returned no valid tags, retrying tags only")
	tags, warnings, tagErr := a.tagsOnly(ctx, in)
	if tagErr != nil {
		return nil, tagErr
	}
	result.Tags = tags
	result.Warnings = append(result.Warnings, warnings...)
	return result, nil
}

func (a *Analyzer) analyzeSplit(ctx context.Context, in Input) (*Result, error) {
	var (
		moderation *Result
		tags       []string
		warnings   []string
		tagErr     error
		g          errgroup.Group
	)

	g.Go(func() error {
		text, err := a.call(ctx, ModeModeration, in)
		if err != nil {
			a.warn(ctx, fmt.Sprintf("moderation call failed, failing open: %v", err))
			moderation = &Result{Score: 10, Visible: true, FailedOpen: true}
			return nil
		}
		moderation = resultFrom(Parse(text, ModeModeration))
		return nil
	})
	g.Go(func() error {
		tags, warnings, tagErr = a.tagsOnly(ctx, in)
		return nil
	})
	_ = g.Wait()

	result := moderation
	result.Fallback = true
	if result.Score == 0 {
		result.Tags = []string{}
		return result, nil
	}
	if tagErr != nil {
		return nil, tagErr
	}
	result.Tags = tags
	result.Warnings = append(result.Warnings, warnings...)
	return result, nil
}

// tagsOnly returns vocabulary tags, or an analysis error when none are usable.
func (a *Analyzer) tagsOnly(ctx context.Context, in Input) ([]string, []string, error) {
	text, err := a.call(ctx, ModeTags, in)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeAnalysisFailed, fmt.Errorf("%w: %v", ErrUnavailable, err), "tag generation unavailable")
	}
	switch res := Parse(text, ModeTags).(type) {
	case ParseSuccess:
		if len(res.Value.Tags) == 0 {
			return nil, nil, rejected("model returned no tags from the vocabulary")
		}
		return res.Value.Tags, res.Value.Warnings, nil
	case ParseFailure:
		return nil, nil, rejected("tag output unusable: " + res.Reason)
	default:
		return nil, nil, rejected("tag output unusable")
	}
}

func (a *Analyzer) call(ctx context.Context, mode Mode, in Input) (string, error) {
	text, err := a.ai.Generate(ctx, workersai.GenerateRequest{
		System:    SystemPrompt(mode),
		User:      UserMessage(in),
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty model output")
	}
	return text, nil
}

func (a *Analyzer) warn(ctx context.Context, msg string) {
	if a.logg != nil {
		a.logg.Warn(ctx, msg)
	}
}

// resultFrom turns a parse outcome into a result. Failures are scored 0.
func resultFrom(parsed ParseResult) *Result {
	switch res := parsed.(type) {
	case ParseSuccess:
		v := res.Value
		out := &Result{
			Score:    v.Score,
			Reasons:  v.Reasons,
			Tags:     v.Tags,
			Visible:  v.Score >= VisibilityThreshold,
			Warnings: v.Warnings,
		}
		if out.Tags == nil {
			out.Tags = []string{}
		}
		return out
	case ParseFailure:
		return &Result{
			Score:   0,
			Reasons: []string{"unusable model output: " + res.Reason},
			Tags:    []string{},
			Visible: false,
			Refused: true,
		}
	default:
		return &Result{Tags: []string{}, Refused: true}
	}
}

func rejected(detail string) error {
	return pkgerrors.Wrap(pkgerrors.CodeAnalysisRejected, ErrNoValidTags, "listing content could not be tagged").
		WithDetails(map[string]any{"reason": detail})
}
