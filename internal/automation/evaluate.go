package automation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"plutus/internal/logger"
	pkgcel "plutus/pkg/cel"
)

// GroupMembershipFunc answers whether a category belongs to a category group.
// The product has no hierarchy backend today, so engines usually run without
// one; the inGroup operator then evaluates to false with a warning.
type GroupMembershipFunc func(ctx context.Context, categoryID, groupID interface{}) (bool, error)

// EvalContext carries per-pass inputs the evaluator needs beyond the entity
// itself.
type EvalContext struct {
	EntityType string
	Event      string
	Previous   map[string]interface{}
	InGroup    GroupMembershipFunc
}

// Evaluator evaluates condition trees. It is pure with respect to the entity:
// no mutation, no I/O apart from warning logs on malformed conditions. A
// malformed condition evaluates to false so that one broken rule never aborts
// a rule pass.
type Evaluator struct {
	logger logger.Logger
	cel    *pkgcel.Evaluator
	now    func() time.Time
}

func NewEvaluator(log logger.Logger) (*Evaluator, error) {
	celEval, err := pkgcel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		logger: log,
		cel:    celEval,
		now:    time.Now,
	}, nil
}

// EvaluateGroup evaluates a condition tree against an entity. An empty group
// is vacuously true for both AND and OR.
func (e *Evaluator) EvaluateGroup(ctx context.Context, group ConditionGroup, entity Entity, ec EvalContext) bool {
	if len(group.Conditions) == 0 {
		return true
	}

	switch group.Operator {
	case GroupOr:
		for _, node := range group.Conditions {
			if e.evaluateNode(ctx, node, entity, ec) {
				return true
			}
		}
		return false
	default:
		// AND, and any unrecognized group operator, requires all children.
		for _, node := range group.Conditions {
			if !e.evaluateNode(ctx, node, entity, ec) {
				return false
			}
		}
		return true
	}
}

func (e *Evaluator) evaluateNode(ctx context.Context, node ConditionNode, entity Entity, ec EvalContext) bool {
	if node.Group != nil {
		return e.EvaluateGroup(ctx, *node.Group, entity, ec)
	}
	if node.Leaf != nil {
		return e.EvaluateCondition(ctx, *node.Leaf, entity, ec)
	}
	return false
}

// EvaluateCondition evaluates one leaf condition. Negate is applied after the
// operator result, independent of operator semantics.
func (e *Evaluator) EvaluateCondition(ctx context.Context, cond Condition, entity Entity, ec EvalContext) bool {
	result := e.applyOperator(ctx, cond, entity, ec)
	if cond.Negate {
		return !result
	}
	return result
}

func (e *Evaluator) applyOperator(ctx context.Context, cond Condition, entity Entity, ec EvalContext) bool {
	fieldValue, found := entity.GetField(cond.Field)

	switch cond.Operator {
	case OpEquals:
		return valuesEqual(fieldValue, cond.Value)
	case OpNotEquals:
		return !valuesEqual(fieldValue, cond.Value)
	case OpContains:
		return stringTest(fieldValue, cond.Value, strings.Contains)
	case OpStartsWith:
		return stringTest(fieldValue, cond.Value, strings.HasPrefix)
	case OpEndsWith:
		return stringTest(fieldValue, cond.Value, strings.HasSuffix)
	case OpMatches:
		return e.evalMatches(ctx, cond, fieldValue)
	case OpGreaterThan:
		return numericCompare(fieldValue, cond.Value, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return numericCompare(fieldValue, cond.Value, func(a, b float64) bool { return a < b })
	case OpGreaterThanOrEquals:
		return numericCompare(fieldValue, cond.Value, func(a, b float64) bool { return a >= b })
	case OpLessThanOrEquals:
		return numericCompare(fieldValue, cond.Value, func(a, b float64) bool { return a <= b })
	case OpBetween:
		return evalBetween(fieldValue, cond.Value, cond.Value2)
	case OpIn:
		return evalIn(fieldValue, cond.Value)
	case OpInGroup:
		return e.evalInGroup(ctx, cond, fieldValue, ec)
	case OpIsNull:
		return !found || fieldValue == nil
	case OpIsEmpty:
		return evalIsEmpty(found, fieldValue)
	case OpBefore:
		return dateCompare(fieldValue, cond.Value, func(a, b time.Time) bool { return a.Before(b) })
	case OpAfter:
		return dateCompare(fieldValue, cond.Value, func(a, b time.Time) bool { return a.After(b) })
	case OpWithin:
		return e.evalWithin(fieldValue, cond.Value)
	case OpDayOfWeek:
		return evalDayOfWeek(fieldValue, cond.Value)
	case OpDayOfMonth:
		return evalDayOfMonth(fieldValue, cond.Value)
	case OpExpression:
		return e.evalExpression(ctx, cond, entity, ec)
	default:
		e.logger.WarnwCtx(ctx, "Unknown condition operator, evaluating to false",
			"operator", cond.Operator,
			"field", cond.Field,
		)
		return false
	}
}

// valuesEqual implements the coercing equality used by equals, notEquals and
// in: case-insensitive for string pairs, numeric when either side is a number,
// identity otherwise.
func valuesEqual(a, b interface{}) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.EqualFold(as, bs)
	}
	if isNumber(a) || isNumber(b) {
		an, aOK := toNumber(a)
		bn, bOK := toNumber(b)
		return aOK && bOK && an == bn
	}
	return a == b
}

func stringTest(a, b interface{}, test func(s, substr string) bool) bool {
	as, aOK := a.(string)
	bs, bOK := b.(string)
	if !aOK || !bOK {
		return false
	}
	return test(strings.ToLower(as), strings.ToLower(bs))
}

func (e *Evaluator) evalMatches(ctx context.Context, cond Condition, fieldValue interface{}) bool {
	subject, okSubject := fieldValue.(string)
	pattern, okPattern := cond.Value.(string)
	if !okSubject || !okPattern {
		return false
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		e.logger.WarnwCtx(ctx, "Invalid regex pattern in condition, evaluating to false",
			"field", cond.Field,
			"pattern", pattern,
			"error", err,
		)
		return false
	}
	return re.MatchString(subject)
}

func numericCompare(a, b interface{}, cmp func(a, b float64) bool) bool {
	an, aOK := toNumber(a)
	bn, bOK := toNumber(b)
	if !aOK || !bOK {
		return false
	}
	return cmp(an, bn)
}

func evalBetween(a, min, max interface{}) bool {
	an, aOK := toNumber(a)
	minN, minOK := toNumber(min)
	maxN, maxOK := toNumber(max)
	if !aOK || !minOK || !maxOK {
		return false
	}
	return an >= minN && an <= maxN
}

func evalIn(a, list interface{}) bool {
	items, ok := toList(list)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(a, item) {
			return true
		}
	}
	return false
}

func (e *Evaluator) evalInGroup(ctx context.Context, cond Condition, fieldValue interface{}, ec EvalContext) bool {
	if ec.InGroup == nil {
		e.logger.WarnwCtx(ctx, "inGroup condition used without a category hierarchy resolver, evaluating to false",
			"field", cond.Field,
		)
		return false
	}
	member, err := ec.InGroup(ctx, fieldValue, cond.Value)
	if err != nil {
		e.logger.WarnwCtx(ctx, "Category hierarchy lookup failed, evaluating to false",
			"field", cond.Field,
			"error", err,
		)
		return false
	}
	return member
}

func evalIsEmpty(found bool, v interface{}) bool {
	if !found || v == nil {
		return true
	}
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value) == ""
	case []interface{}:
		return len(value) == 0
	case []string:
		return len(value) == 0
	default:
		return false
	}
}

func dateCompare(a, b interface{}, cmp func(a, b time.Time) bool) bool {
	at, aOK := toTime(a)
	bt, bOK := toTime(b)
	if !aOK || !bOK {
		return false
	}
	return cmp(at, bt)
}

// evalWithin reports whether the field date falls within [now, now+N days]
// inclusive. Past dates are always false.
func (e *Evaluator) evalWithin(fieldValue, days interface{}) bool {
	at, aOK := toTime(fieldValue)
	n, nOK := toNumber(days)
	if !aOK || !nOK {
		return false
	}
	now := e.now().UTC()
	deadline := now.Add(time.Duration(n*24) * time.Hour)
	return !at.Before(now) && !at.After(deadline)
}

var weekdayNames = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

// evalDayOfWeek tests the UTC day of week (Sunday=0) of the field date against
// a list of day names or numbers. UTC keeps the result identical across
// deployments in different timezones.
func evalDayOfWeek(fieldValue, days interface{}) bool {
	at, ok := toTime(fieldValue)
	if !ok {
		return false
	}
	items, ok := toList(days)
	if !ok {
		// Tolerate a single scalar day.
		items = []interface{}{days}
	}
	weekday := int(at.UTC().Weekday())
	for _, item := range items {
		if name, isStr := item.(string); isStr {
			if num, known := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; known && num == weekday {
				return true
			}
			continue
		}
		if num, isNum := toNumber(item); isNum && int(num) == weekday {
			return true
		}
	}
	return false
}

func evalDayOfMonth(fieldValue, day interface{}) bool {
	at, aOK := toTime(fieldValue)
	n, nOK := toNumber(day)
	if !aOK || !nOK {
		return false
	}
	return at.UTC().Day() == int(n)
}

func (e *Evaluator) evalExpression(ctx context.Context, cond Condition, entity Entity, ec EvalContext) bool {
	expr, ok := cond.Value.(string)
	if !ok || strings.TrimSpace(expr) == "" {
		e.logger.WarnwCtx(ctx, "expression condition without a string expression, evaluating to false",
			"field", cond.Field,
		)
		return false
	}
	result, err := e.cel.EvaluateCondition(ctx, expr, ec.EntityType, ec.Event, entity, ec.Previous)
	if err != nil {
		e.logger.WarnwCtx(ctx, "Expression evaluation failed, evaluating to false",
			"expression", expr,
			"error", err,
		)
		return false
	}
	return result
}
