package cron

import "fmt"

// Compile parses a five field cron expression (minute hour day-of-month month
// day-of-week) into field sets. The seconds set of the result is left empty.
//
// Each field is a comma separated list of sub-terms: "*", "N", "A-B", "A/S" and
// "A-B/S", mixed freely. The parser is lenient: unrecognised characters are
// ignored and out-of-domain values are dropped. On a structural problem
// (more or fewer than five fields) the partial result is returned together
// with ErrTooManyFields or ErrTooFewFields.
func Compile(expression string) (Fields, error) {
	fs := NewFields()
	err := compileInto(&fs, expression)
	return fs, err
}

// compileInto adds the sets described by expression to fs.
func compileInto(fs *Fields, expression string) error {
	p := parser{fields: fs}
	p.reset()
	for i := 0; i < len(expression) && !p.stopped; i++ {
		p.step(expression[i])
	}
	if !p.stopped {
		// virtual trailing separator terminates the last field
		p.step(' ')
	}

	switch {
	case p.stopped:
		return fmt.Errorf("%w: %q", ErrTooManyFields, expression)
	case p.field < len(expressionFields):
		return fmt.Errorf("%w: %q has %d", ErrTooFewFields, expression, p.field)
	}
	return nil
}

// termKind is a bit set of the operators seen in the pending sub-term.
type termKind uint8

const (
	termPlain    termKind = 0
	termRange    termKind = 1 << 0
	termInterval termKind = 1 << 1
)

// accumulatorCap keeps overlong literals from overflowing. Anything this large
// is out of every domain anyway.
const accumulatorCap = 1 << 20

type charClass int

const (
	classOther charClass = iota
	classDigit
	classSeparator
	classComma
	classDash
	classSlash
	classStar
)

func classify(c byte) charClass {
	switch {
	case c >= '0' && c <= '9':
		return classDigit
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		return classSeparator
	case c == ',':
		return classComma
	case c == '-':
		return classDash
	case c == '/':
		return classSlash
	case c == '*':
		return classStar
	default:
		return classOther
	}
}

// parser is the explicit scan state for one expression.
type parser struct {
	fields *Fields

	// field indexes expressionFields. inField is set once a non-separator
	// character of the current field has been seen.
	field   int
	inField bool
	stopped bool

	// pending sub-term
	kind          termKind
	acc           int
	rangeStart    int
	intervalStart int
	// empty stays true until a character other than '*' is seen.
	empty    bool
	wildcard bool
	digits   bool
}

func (p *parser) reset() {
	p.kind = termPlain
	p.acc = 0
	p.rangeStart = 0
	p.intervalStart = 0
	p.empty = true
	p.wildcard = false
	p.digits = false
}

func (p *parser) step(c byte) {
	class := classify(c)
	if class == classSeparator {
		if p.inField {
			p.commit()
			p.reset()
			p.inField = false
			p.field++
		}
		return
	}

	if !p.inField {
		if p.field >= len(expressionFields) {
			p.stopped = true
			return
		}
		p.inField = true
	}
	if class != classStar && class != classComma {
		p.empty = false
	}

	switch class {
	case classDigit:
		p.acc = p.acc*10 + int(c-'0')
		if p.acc > accumulatorCap {
			p.acc = accumulatorCap
		}
		p.digits = true
	case classComma:
		p.commit()
		p.reset()
	case classSlash:
		p.intervalStart = p.acc
		if p.kind&termRange == 0 && p.wildcard && !p.digits {
			p.intervalStart = p.current().Min()
		}
		p.kind |= termInterval
		p.acc = 0
		p.digits = false
	case classDash:
		p.rangeStart = p.acc
		p.kind |= termRange
		p.acc = 0
		p.digits = false
	case classStar:
		p.wildcard = true
	case classOther:
		// ignored
	}
}

func (p *parser) current() Field { return expressionFields[p.field] }

// commit inserts the pending sub-term into the current field.
func (p *parser) commit() {
	f := p.current()
	if p.empty {
		if p.wildcard {
			p.fields.Fill(f)
		}
		return
	}

	switch {
	case p.kind&termRange != 0 && p.kind&termInterval != 0:
		// A-B/S: the '/' snapshot holds the range end, acc holds the step.
		p.fields.AddRange(f, p.rangeStart, p.intervalStart, p.acc)
	case p.kind&termRange != 0:
		p.fields.AddRange(f, p.rangeStart, p.acc, 1)
	case p.kind&termInterval != 0:
		p.fields.AddRange(f, p.intervalStart, f.Max(), p.acc)
	default:
		p.fields.Add(f, p.acc)
	}
}
