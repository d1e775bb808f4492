package manifest

// Rule is a compiled query program. It is immutable after compilation and
// may be shared by any number of iterators.
type Rule struct {
	store Store
	terms []Term

	ops  []ruleOp
	vars []variable

	varNames []string
	subjVars []int

	subjectVarCount int
	frameCount      int
}

func newRule(store Store, terms []Term) (*Rule, error) {
	if len(terms) == 0 {
		return nil, EmptyRuleError{}
	}
	onlyNegated := true
	for i := range terms {
		if terms[i].Oper != OperNot {
			onlyNegated = false
			break
		}
	}
	if onlyNegated {
		return nil, NegatedRuleError{}
	}

	r := &Rule{
		store: store,
		terms: normalizeTerms(terms),
	}
	if err := r.scanVariables(); err != nil {
		return nil, err
	}
	r.compileProgram()

	// The name mirror lists entity variables only; table variable slots
	// stay empty.
	r.varNames = make([]string, len(r.vars))
	for i := range r.vars {
		if r.vars[i].kind == varKindEntity {
			r.varNames[i] = r.vars[i].name
		}
	}

	// Per-term subject variable lookup for the iterator snapshot.
	r.subjVars = make([]int, len(r.terms))
	for i := range r.terms {
		r.subjVars[i] = regNone
		term := &r.terms[i]
		if term.Subj.Var {
			if v := r.findVar(varKindEntity, term.Subj.Name); v != regNone {
				r.subjVars[i] = v
			}
		}
	}
	return r, nil
}

// VarCount returns the number of variables in the rule, including the
// internal table variables.
func (r *Rule) VarCount() int {
	return len(r.vars)
}

// VarName returns the name of a variable.
func (r *Rule) VarName(id int) string {
	return r.vars[id].name
}

// VarIsEntity reports whether the variable holds an entity (as opposed to
// an internal table binding).
func (r *Rule) VarIsEntity(id int) bool {
	return r.vars[id].kind == varKindEntity
}

// FindVar returns the id of the named entity variable, or -1.
func (r *Rule) FindVar(name string) int {
	return r.findVar(varKindEntity, name)
}

// TermCount returns the number of terms the rule was compiled from.
func (r *Rule) TermCount() int {
	return len(r.terms)
}

func (r *Rule) newOp() int {
	idx := len(r.ops)
	r.ops = append(r.ops, ruleOp{
		term: -1,
		rIn:  regNone,
		rOut: regNone,
	})
	return idx
}

func (r *Rule) pushFrame() int {
	frame := r.frameCount
	r.frameCount++
	return frame
}
