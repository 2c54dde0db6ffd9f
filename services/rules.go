package services

import (
	"fmt"
	"strings"
	"sync"

	"finquest-gamification/models"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

// Variables exposed to badge rules.
const (
	VarTotalXP            = "total_xp"
	VarLevel              = "level"
	VarCurrentStreak      = "current_streak"
	VarModulesCompleted   = "modules_completed"
	VarQuizzesCompleted   = "quizzes_completed"
	VarPortfolioPositions = "portfolio_positions"
	VarEventType          = "event_type"
	VarQuizScore          = "quiz_score"
)

// CategoryDefaultRules apply when a definition carries no rule of its own.
var CategoryDefaultRules = map[models.BadgeCategory]string{
	models.BadgeCategoryLearning:  "modules_completed >= 1",
	models.BadgeCategoryStreak:    "current_streak >= 7",
	models.BadgeCategoryPortfolio: "portfolio_positions >= 1",
}

// RuleEngine compiles and evaluates CEL badge predicates. Compiled programs
// are cached by expression text.
type RuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarTotalXP, cel.IntType),
		cel.Variable(VarLevel, cel.IntType),
		cel.Variable(VarCurrentStreak, cel.IntType),
		cel.Variable(VarModulesCompleted, cel.IntType),
		cel.Variable(VarQuizzesCompleted, cel.IntType),
		cel.Variable(VarPortfolioPositions, cel.IntType),
		cel.Variable(VarEventType, cel.StringType),
		cel.Variable(VarQuizScore, cel.DoubleType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &RuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Validate compiles expr and checks that it yields a boolean.
func (e *RuleEngine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate runs expr against vars.
func (e *RuleEngine) Evaluate(expr string, vars map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return a boolean, got %T", out.Value())
	}
	return b, nil
}

// Reset drops every compiled program.
func (e *RuleEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]cel.Program)
}

func (e *RuleEngine) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}

	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return a boolean, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// RuleFor returns the predicate of def, falling back to its category default.
func RuleFor(def models.BadgeDefinition) string {
	if r := strings.TrimSpace(def.Rule); r != "" {
		return r
	}
	return CategoryDefaultRules[def.Category]
}

// RuleVars exposes stats and the triggering event to badge rules.
func RuleVars(stats models.GamificationStats, ev models.GamificationEvent) map[string]any {
	score := -1.0
	if ev.Type == models.EventQuizCompleted && ev.QuizScore != nil {
		score = *ev.QuizScore
	}
	return map[string]any{
		VarTotalXP:            stats.TotalXP,
		VarLevel:              int64(stats.Level),
		VarCurrentStreak:      int64(stats.CurrentStreak),
		VarModulesCompleted:   stats.ModulesCompleted,
		VarQuizzesCompleted:   stats.QuizzesCompleted,
		VarPortfolioPositions: stats.PortfolioPositions,
		VarEventType:          string(ev.Type),
		VarQuizScore:          score,
	}
}

// Eligible returns the active, not yet earned definitions whose predicate
// holds for stats. Broken rules are logged and count as false.
func (e *RuleEngine) Eligible(catalog []models.BadgeDefinition, earned map[string]bool, stats models.GamificationStats, ev models.GamificationEvent) []models.BadgeDefinition {
	vars := RuleVars(stats, ev)
	var out []models.BadgeDefinition
	for _, def := range catalog {
		if !def.IsActive || earned[def.ID] {
			continue
		}
		rule := RuleFor(def)
		if rule == "" {
			continue
		}
		ok, err := e.Evaluate(rule, vars)
		if err != nil {
			zap.L().Warn("badge rule failed", zap.String("code", def.Code), zap.String("rule", rule), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, def)
		}
	}
	return out
}
