package manifest

import (
	"fmt"
	"sort"
)

type varKind uint8

const (
	// varKindTable sorts before varKindEntity so subject variables are
	// resolved before derived ones.
	varKindTable varKind = iota
	varKindEntity
	varKindUnknown
)

const (
	maxVariableCount = 256
	unsetDepth       = maxVariableCount - 1
)

// variable is one entry of a rule's variable table. All cross-references are
// ids (positions in the table), never pointers; sorting rewrites ids in one
// pass.
type variable struct {
	kind   varKind
	name   string
	id     int
	occurs int
	depth  int
	marked bool
}

func (r *Rule) findVar(kind varKind, name string) int {
	for i := range r.vars {
		v := &r.vars[i]
		if v.name == name && (kind == varKindUnknown || kind == v.kind) {
			return i
		}
	}
	return regNone
}

func (r *Rule) createVar(kind varKind, name string) int {
	if len(r.vars) >= maxVariableCount {
		panic(TooManyVariablesError{Count: len(r.vars) + 1})
	}
	id := len(r.vars)
	if name == "" {
		// Anonymous register
		name = fmt.Sprintf("_%d", id)
	}
	r.vars = append(r.vars, variable{
		kind:  kind,
		name:  name,
		id:    id,
		depth: unsetDepth,
	})
	return id
}

func (r *Rule) createAnonymousVar(kind varKind) int {
	return r.createVar(kind, "")
}

func (r *Rule) ensureVar(kind varKind, name string) int {
	v := r.findVar(kind, name)
	if v == regNone {
		v = r.createVar(kind, name)
	} else if r.vars[v].kind == varKindUnknown {
		r.vars[v].kind = kind
	}
	return v
}

func termVar(id TermID) (string, bool) {
	return id.Name, id.Var
}

func (r *Rule) termPred(term *Term) int {
	if name, ok := termVar(term.Pred); ok {
		return r.findVar(varKindUnknown, name)
	}
	return regNone
}

func (r *Rule) termSubj(term *Term) int {
	if name, ok := termVar(term.Subj); ok {
		return r.findVar(varKindUnknown, name)
	}
	return regNone
}

func (r *Rule) termObj(term *Term) int {
	if !term.HasObj {
		return regNone
	}
	if name, ok := termVar(term.Obj); ok {
		return r.findVar(varKindUnknown, name)
	}
	return regNone
}

func (r *Rule) isSubject(v int) bool {
	return v != regNone && v < r.subjectVarCount
}

// skipTerm excludes negated terms from dependency analysis; their variables
// must be bound by positive terms.
func skipTerm(term *Term) bool {
	return term.Oper == OperNot
}

// ensureAllVariables registers an Entity-kind companion for every variable
// used as a predicate, object or non-This subject, so the variable table is
// complete before instructions are emitted.
func (r *Rule) ensureAllVariables() {
	for i := range r.terms {
		term := &r.terms[i]
		if skipTerm(term) {
			continue
		}
		if term.Pred.Var {
			r.ensureVar(varKindEntity, term.Pred.Name)
		}
		if term.Subj.Var && term.Subj.Name != "." {
			r.ensureVar(varKindEntity, term.Subj.Name)
		}
		if term.HasObj && term.Obj.Var {
			r.ensureVar(varKindEntity, term.Obj.Name)
		}
	}
}

// scanVariables finds all variables, elects a root, assigns dependency
// depths and puts the variable table in evaluation order.
func (r *Rule) scanVariables() error {
	maxOccur := 0
	maxOccurVar := regNone

	// Step 1: find all possible roots
	for i := range r.terms {
		term := &r.terms[i]
		if !term.Subj.Var {
			continue
		}
		subj := r.findVar(varKindTable, term.Subj.Name)
		if subj == regNone {
			if len(r.vars) >= maxVariableCount {
				return TooManyVariablesError{Count: len(r.vars) + 1}
			}
			subj = r.createVar(varKindTable, term.Subj.Name)
		}
		r.vars[subj].occurs++
		if r.vars[subj].occurs > maxOccur {
			maxOccur = r.vars[subj].occurs
			maxOccurVar = subj
		}
	}

	r.subjectVarCount = len(r.vars)

	r.ensureAllVariables()

	// Variables in a term with a literal subject have depth 0
	for i := range r.terms {
		term := &r.terms[i]
		if term.Subj.Var {
			continue
		}
		if pred := r.termPred(term); pred != regNone {
			r.vars[pred].depth = 0
		}
		if obj := r.termObj(term); obj != regNone {
			r.vars[obj].depth = 0
		}
	}

	// Elect a root: the this (.) variable when present, else the subject
	// variable with the most occurrences.
	root := r.findVar(varKindTable, ".")
	if root == regNone {
		root = maxOccurVar
	}
	if root == regNone {
		// No subject variables; the rule evaluates a fixed fact set.
		return nil
	}

	r.vars[root].depth = r.getVariableDepth(root, root, 0)

	// Unconstrained variables are unreachable from the root.
	for v := 0; v < r.subjectVarCount; v++ {
		if r.vars[v].depth == unsetDepth {
			return UnconstrainedVariableError{Name: r.vars[v].name}
		}
	}

	// For each Not term, verify that variables are known
	for i := range r.terms {
		term := &r.terms[i]
		if term.Oper != OperNot {
			continue
		}
		if term.Pred.Var && r.termPred(term) == regNone {
			return MissingVariableError{Position: "predicate", Name: term.Pred.Name}
		}
		if term.HasObj && term.Obj.Var && r.termObj(term) == regNone {
			return MissingVariableError{Position: "object", Name: term.Obj.Name}
		}
	}

	r.sortVariables()
	return nil
}

// getVariableDepth computes the distance of a variable from the root. The
// depth of v is 1 + the smallest depth of the other variables appearing in
// any term where v is the subject.
func (r *Rule) getVariableDepth(v, root, recur int) int {
	r.vars[v].marked = true

	result := unsetDepth
	for i := range r.terms {
		term := &r.terms[i]
		if skipTerm(term) {
			continue
		}
		pred := r.termPred(term)
		subj := r.termSubj(term)
		obj := r.termObj(term)
		if subj != v {
			continue
		}
		if !r.isSubject(pred) {
			pred = regNone
		}
		if !r.isSubject(obj) {
			obj = regNone
		}
		depth := r.getDepthFromTerm(v, pred, obj, root, recur)
		if depth < result {
			result = depth
		}
	}
	if result == unsetDepth {
		result = 0
	}
	r.vars[v].depth = result

	// Depths propagate from subject to (pred, obj). Subjects related only
	// through a shared predicate or object are found by crawling those
	// links; whatever stays unreachable is an unconstrained variable.
	for i := range r.terms {
		term := &r.terms[i]
		if skipTerm(term) {
			continue
		}
		subj := r.termSubj(term)
		pred := r.termPred(term)
		obj := r.termObj(term)
		if subj != v {
			continue
		}
		r.crawlVariable(subj, root, recur)
		if pred != regNone && pred != v {
			r.crawlVariable(pred, root, recur)
		}
		if obj != regNone && obj != v {
			r.crawlVariable(obj, root, recur)
		}
	}

	return r.vars[v].depth
}

func (r *Rule) getDepthFromTerm(cur, pred, obj, root, recur int) int {
	if pred == regNone && obj == regNone {
		return 0
	}
	result := unsetDepth
	if pred != regNone && cur != pred {
		depth := r.getDepthFromVar(pred, root, recur)
		if depth == unsetDepth {
			return unsetDepth
		}
		if depth < result {
			result = depth
		}
	}
	if obj != regNone && cur != obj {
		depth := r.getDepthFromVar(obj, root, recur)
		if depth == unsetDepth {
			return unsetDepth
		}
		if depth < result {
			result = depth
		}
	}
	return result
}

func (r *Rule) getDepthFromVar(v, root, recur int) int {
	if v == root || r.vars[v].depth != unsetDepth {
		return r.vars[v].depth + 1
	}
	// Already being evaluated; a cycle, stop.
	if r.vars[v].marked {
		return 0
	}
	depth := r.getVariableDepth(v, root, recur+1)
	if depth == unsetDepth {
		return depth
	}
	return depth + 1
}

func (r *Rule) crawlVariable(v, root, recur int) {
	for i := range r.terms {
		term := &r.terms[i]
		if skipTerm(term) {
			continue
		}
		pred := r.termPred(term)
		subj := r.termSubj(term)
		obj := r.termObj(term)
		if v != pred && v != subj && v != obj {
			continue
		}
		if pred != regNone && pred != v && !r.vars[pred].marked {
			r.getVariableDepth(pred, root, recur+1)
		}
		if subj != regNone && subj != v && !r.vars[subj].marked {
			r.getVariableDepth(subj, root, recur+1)
		}
		if obj != regNone && obj != v && !r.vars[obj].marked {
			r.getVariableDepth(obj, root, recur+1)
		}
	}
}

// sortVariables orders by kind, then ascending depth, then descending
// occurrence count, then descending id, and reassigns ids to match the new
// positions.
func (r *Rule) sortVariables() {
	sort.Slice(r.vars, func(i, j int) bool {
		a, b := &r.vars[i], &r.vars[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		if a.occurs != b.occurs {
			return a.occurs > b.occurs
		}
		return a.id > b.id
	})
	for i := range r.vars {
		r.vars[i].id = i
	}
}
