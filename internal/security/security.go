// Package security implements the Security Enforcer (spec.md §4.10):
// at planning time it injects row predicates and masked projections
// from a per-resource Policy into the plan tree, records an audit event
// for every Scan access decision, and fails closed on any
// ambiguity (no policy on file for a resource denies access rather
// than permitting it).
//
// Grounded directly on the teacher's pkg/security package: Access
// levels and the total order spec.md §3 names are a generalization of
// pkg/security/authorization.go's bitmask Permission/Role model (that
// model grants independent bit-flags per table; spec.md instead wants
// one totally-ordered label compared against a single required level
// per resource, so AccessLevel is a small ordered int rather than a
// reused bitmask). AuditEvent/AuditSink follow pkg/security/
// audit_log.go's AuditEvent struct and ring-buffered AuditLogger,
// trimmed to the fields spec.md §4.10 names (subject, resource,
// action, decision, session id, timestamp). DetectSQLInjection ports a
// representative subset of pkg/security/sql_injection.go's regexp
// pattern table as the pre-parse defense-in-depth check spec.md §4.10
// calls for, kept deliberately shallow since the parser's own grammar
// is the authoritative defense past the DSL boundary.
package security

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/datapunk/lakequery/internal/plan"
	"github.com/datapunk/lakequery/internal/queryerr"
)

// AccessLevel is spec.md §3's totally ordered privilege label:
// none < read < write < admin < system.
type AccessLevel int

const (
	LevelNone AccessLevel = iota
	LevelRead
	LevelWrite
	LevelAdmin
	LevelSystem
)

func (l AccessLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	case LevelSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Identity is the caller context spec.md §5 says every ExecutionContext
// carries: subject, roles, access level, and session id.
type Identity struct {
	Subject   string
	Roles     []string
	Level     AccessLevel
	SessionID string
	ClientIP  string
}

// Policy governs access to one resource (table), mirroring spec.md
// §3's Security Policy shape: {resource, access_level_required,
// masking_rules, row_predicate}.
type Policy struct {
	Resource            string
	AccessLevelRequired AccessLevel
	// MaskingRules replaces a column's projected value with a literal
	// replacement (default "***") rather than its real value.
	MaskingRules map[string]string
	// RowPredicate builds the row-restricting predicate to inject into
	// Scan.Predicate for this identity (e.g. user_id = caller_id); nil
	// means no row restriction beyond the access-level check.
	RowPredicate func(Identity) plan.Expr
}

// AuditEvent records one access decision, per spec.md §4.10.
type AuditEvent struct {
	Timestamp time.Time
	Subject   string
	Resource  string
	Action    string
	Decision  string // "allow" | "deny"
	SessionID string
	Reason    string
}

// AuditSink receives audit events. Implementations must not block the
// caller meaningfully; InMemorySink buffers in a ring per the
// teacher's AuditLogger.
type AuditSink interface {
	Record(AuditEvent)
}

// InMemorySink is a bounded ring-buffer AuditSink, grounded on the
// teacher's AuditLogger buffer field (a fixed-size slice written
// round-robin rather than an unbounded log).
type InMemorySink struct {
	mu      sync.Mutex
	buf     []AuditEvent
	maxSize int
	next    int
	full    bool
}

func NewInMemorySink(maxSize int) *InMemorySink {
	return &InMemorySink{buf: make([]AuditEvent, maxSize), maxSize: maxSize}
}

func (s *InMemorySink) Record(e AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = e
	s.next = (s.next + 1) % s.maxSize
	if s.next == 0 {
		s.full = true
	}
}

// Events returns the buffered events in insertion order.
func (s *InMemorySink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		out := make([]AuditEvent, s.next)
		copy(out, s.buf[:s.next])
		return out
	}
	out := make([]AuditEvent, s.maxSize)
	copy(out, s.buf[s.next:])
	copy(out[s.maxSize-s.next:], s.buf[:s.next])
	return out
}

// Enforcer rewrites plan trees per resource Policy and records an
// audit event for every Scan it touches.
type Enforcer struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	sink     AuditSink
}

func NewEnforcer(sink AuditSink) *Enforcer {
	if sink == nil {
		sink = NewInMemorySink(1000)
	}
	return &Enforcer{policies: make(map[string]*Policy), sink: sink}
}

func (e *Enforcer) SetPolicy(p *Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Resource] = p
}

func (e *Enforcer) policyFor(resource string) (*Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[resource]
	return p, ok
}

// Enforce rewrites n for identity: every Scan gains its policy's row
// predicate (conjoined with any predicate already pushed down), and
// every Project's masked columns are replaced by a literal
// replacement value. Fails closed: a Scan naming a resource with no
// policy on file is denied rather than passed through, and a Scan
// whose policy requires a level the identity lacks is denied.
func (e *Enforcer) Enforce(n plan.Node, identity Identity) (plan.Node, error) {
	var enforceErr error
	out := plan.Transform(n, func(node plan.Node, children []plan.Node) plan.Node {
		if enforceErr != nil {
			return node
		}
		switch v := node.(type) {
		case *plan.Scan:
			rewritten, err := e.enforceScan(v, identity)
			if err != nil {
				enforceErr = err
				return node
			}
			return rewritten
		case *plan.Project:
			return e.enforceProject(v, identity)
		default:
			return node
		}
	})
	if enforceErr != nil {
		return nil, enforceErr
	}
	return out, nil
}

func (e *Enforcer) enforceScan(s *plan.Scan, identity Identity) (*plan.Scan, error) {
	policy, ok := e.policyFor(s.Table)
	if !ok {
		e.audit(identity, s.Table, "scan", "deny", "no policy on file for resource")
		return nil, queryerr.New(queryerr.KindSecurity, "planning", "no_policy",
			fmt.Sprintf("no security policy for resource %q: failing closed", s.Table))
	}
	if identity.Level < policy.AccessLevelRequired {
		e.audit(identity, s.Table, "scan", "deny",
			fmt.Sprintf("access level %s below required %s", identity.Level, policy.AccessLevelRequired))
		return nil, queryerr.New(queryerr.KindSecurity, "planning", "insufficient_access_level",
			fmt.Sprintf("identity %q has access level %s, resource %q requires %s",
				identity.Subject, identity.Level, s.Table, policy.AccessLevelRequired))
	}

	cp := *s
	if policy.RowPredicate != nil {
		pred := policy.RowPredicate(identity)
		if pred != nil {
			if cp.Predicate == nil {
				cp.Predicate = pred
			} else {
				cp.Predicate = &plan.BinOp{Op: "AND", Left: cp.Predicate, Right: pred}
			}
		}
	}
	e.audit(identity, s.Table, "scan", "allow", "")
	return &cp, nil
}

func (e *Enforcer) enforceProject(p *plan.Project, identity Identity) *plan.Project {
	var newExprs []plan.NamedExpr
	changed := false
	for _, ne := range p.Exprs {
		col, ok := ne.Expr.(*plan.ColumnRef)
		if !ok {
			newExprs = append(newExprs, ne)
			continue
		}
		table, column := splitQualified(col.Qualified)
		policy, ok := e.policyFor(table)
		if !ok || len(policy.MaskingRules) == 0 {
			newExprs = append(newExprs, ne)
			continue
		}
		replacement, ok := policy.MaskingRules[column]
		if !ok {
			newExprs = append(newExprs, ne)
			continue
		}
		changed = true
		newExprs = append(newExprs, plan.NamedExpr{Expr: &plan.Literal{Val: replacement}, Alias: ne.Alias})
	}
	if !changed {
		return p
	}
	cp := *p
	cp.Exprs = newExprs
	return &cp
}

// splitQualified mirrors internal/optimizer's splitQualifiedRef: the
// plan model has no binder pass resolving aliases to schemas, so
// table/column membership is inferred from the qualified name's last
// dot-separated segment rather than a schema lookup (the same
// open item noted in internal/optimizer/rules_expr.go).
func splitQualified(qualified string) (table, column string) {
	idx := -1
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}

func (e *Enforcer) audit(identity Identity, resource, action, decision, reason string) {
	e.sink.Record(AuditEvent{
		Timestamp: time.Now(),
		Subject:   identity.Subject,
		Resource:  resource,
		Action:    action,
		Decision:  decision,
		SessionID: identity.SessionID,
		Reason:    reason,
	})
}

// injectionPatterns is a condensed subset of the teacher's
// sql_injection.go pattern table: UNION-based, boolean-based (OR/AND
// tautologies), comment-based, and stacked-query injection shapes.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\s+or\s+['"]?\d+['"]?\s*(=|<|>)\s*['"]?\d+['"]?`),
	regexp.MustCompile(`(?i)\s+and\s+['"]?\d+['"]?\s*(=|<|>)\s*['"]?\d+['"]?`),
	regexp.MustCompile(`(?i)(--[^a-zA-Z0-9]|/\*[^*]*\*/)`),
	regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|alter|create|exec)\b`),
}

// DetectSQLInjection is the pre-parse defense-in-depth check spec.md
// §4.10 calls for: a heuristic scan of raw DSL input for common
// injection shapes, run before the parser ever sees the string. It
// reports the first matching pattern's description, or "" if none
// matched.
func DetectSQLInjection(raw string) string {
	for _, p := range injectionPatterns {
		if p.MatchString(raw) {
			return p.String()
		}
	}
	return ""
}
