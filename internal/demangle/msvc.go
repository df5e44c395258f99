package demangle

import (
	"errors"
	"strconv"
	"strings"
)

var (
	errMalformed   = errors.New("malformed decorated name")
	errUnsupported = errors.New("unsupported decorated name construct")
)

// MSVC undecorates Microsoft Visual C++ names (those starting with '?').
// The output follows the system undecorator with leading underscores and
// Microsoft keywords (calling conventions, __ptr64) suppressed, for example
// "public: void Bar::Foo(void)".
type MSVC struct {
	// PortableOnly skips the platform facility even where it exists.
	PortableOnly bool
}

// Demangle implements Demangler.
func (m MSVC) Demangle(name string) (string, bool) {
	if !strings.HasPrefix(name, "?") {
		return "", false
	}
	if !m.PortableOnly {
		if out, ok := systemUndecorate(name); ok && out != name {
			return out, true
		}
	}
	out, err := Undecorate(name)
	if err != nil {
		return "", false
	}
	return out, true
}

// Undecorate is the portable Microsoft C++ undecorator.
func Undecorate(name string) (string, error) {
	if !strings.HasPrefix(name, "?") {
		return "", errMalformed
	}
	p := &msvcParser{in: name, pos: 1}
	out, err := p.symbol()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.in) {
		return "", errMalformed
	}
	return out, nil
}

type nameInfo struct {
	parts      []string
	ctor       bool
	dtor       bool
	conversion bool
}

func (n nameInfo) String() string {
	return strings.Join(n.parts, "::")
}

type msvcParser struct {
	in    string
	pos   int
	names []string
	types []string
}

func (p *msvcParser) eof() bool {
	return p.pos >= len(p.in)
}

func (p *msvcParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.in[p.pos]
}

func (p *msvcParser) next() byte {
	if p.eof() {
		return 0
	}
	c := p.in[p.pos]
	p.pos++
	return c
}

func (p *msvcParser) consume(prefix string) bool {
	if strings.HasPrefix(p.in[p.pos:], prefix) {
		p.pos += len(prefix)
		return true
	}
	return false
}

func (p *msvcParser) rememberName(s string) {
	if len(p.names) < 10 {
		for _, n := range p.names {
			if n == s {
				return
			}
		}
		p.names = append(p.names, s)
	}
}

func (p *msvcParser) rememberType(s string) {
	if len(p.types) < 10 {
		p.types = append(p.types, s)
	}
}

func (p *msvcParser) symbol() (string, error) {
	ni, err := p.qualifiedName(true)
	if err != nil {
		return "", err
	}

	c := p.peek()
	switch {
	case c >= '0' && c <= '4':
		return p.variable(ni)
	case c == '6' || c == '7':
		return p.table(ni)
	case c >= 'A' && c <= 'Z':
		return p.function(ni)
	}
	return "", errUnsupported
}

// qualifiedName reads name fragments, innermost first, up to the closing '@'.
func (p *msvcParser) qualifiedName(allowOperator bool) (nameInfo, error) {
	var ni nameInfo
	var frags []string

	for {
		if p.eof() {
			return ni, errMalformed
		}
		if p.peek() == '@' {
			p.pos++
			break
		}

		var frag string
		var err error
		if allowOperator && len(frags) == 0 && p.peek() == '?' && !strings.HasPrefix(p.in[p.pos:], "?$") {
			p.pos++
			frag, err = p.operatorName(&ni)
		} else {
			frag, err = p.nameFragment()
		}
		if err != nil {
			return ni, err
		}
		frags = append(frags, frag)
	}

	if len(frags) == 0 {
		return ni, errMalformed
	}

	for i, j := 0, len(frags)-1; i < j; i, j = i+1, j-1 {
		frags[i], frags[j] = frags[j], frags[i]
	}
	ni.parts = frags

	if ni.ctor || ni.dtor {
		if len(frags) < 2 {
			return ni, errMalformed
		}
		class := frags[len(frags)-2]
		if ni.dtor {
			class = "~" + class
		}
		ni.parts[len(frags)-1] = class
	}
	return ni, nil
}

func (p *msvcParser) nameFragment() (string, error) {
	c := p.peek()
	switch {
	case c >= '0' && c <= '9':
		p.pos++
		idx := int(c - '0')
		if idx >= len(p.names) {
			return "", errMalformed
		}
		return p.names[idx], nil
	case p.consume("?$"):
		s, err := p.template()
		if err != nil {
			return "", err
		}
		p.rememberName(s)
		return s, nil
	case p.consume("?A"):
		end := strings.IndexByte(p.in[p.pos:], '@')
		if end < 0 {
			return "", errMalformed
		}
		p.pos += end + 1
		s := "`anonymous namespace'"
		p.rememberName(s)
		return s, nil
	case c == '?':
		return "", errUnsupported
	}
	return p.simpleName()
}

func (p *msvcParser) simpleName() (string, error) {
	end := strings.IndexByte(p.in[p.pos:], '@')
	if end <= 0 {
		return "", errMalformed
	}
	s := p.in[p.pos : p.pos+end]
	p.pos += end + 1
	p.rememberName(s)
	return s, nil
}

var operatorNames = map[byte]string{
	'2': "operator new",
	'3': "operator delete",
	'4': "operator=",
	'5': "operator>>",
	'6': "operator<<",
	'7': "operator!",
	'8': "operator==",
	'9': "operator!=",
	'A': "operator[]",
	'C': "operator->",
	'D': "operator*",
	'E': "operator++",
	'F': "operator--",
	'G': "operator-",
	'H': "operator+",
	'I': "operator&",
	'J': "operator->*",
	'K': "operator/",
	'L': "operator%",
	'M': "operator<",
	'N': "operator<=",
	'O': "operator>",
	'P': "operator>=",
	'Q': "operator,",
	'R': "operator()",
	'S': "operator~",
	'T': "operator^",
	'U': "operator|",
	'V': "operator&&",
	'W': "operator||",
	'X': "operator*=",
	'Y': "operator+=",
	'Z': "operator-=",
}

var extendedOperatorNames = map[byte]string{
	'0': "operator/=",
	'1': "operator%=",
	'2': "operator>>=",
	'3': "operator<<=",
	'4': "operator&=",
	'5': "operator|=",
	'6': "operator^=",
	'7': "`vftable'",
	'8': "`vbtable'",
	'9': "`vcall'",
	'D': "`vbase destructor'",
	'E': "`vector deleting destructor'",
	'F': "`default constructor closure'",
	'G': "`scalar deleting destructor'",
	'U': "operator new[]",
	'V': "operator delete[]",
}

func (p *msvcParser) operatorName(ni *nameInfo) (string, error) {
	c := p.next()
	switch c {
	case '0':
		ni.ctor = true
		return "", nil
	case '1':
		ni.dtor = true
		return "", nil
	case 'B':
		ni.conversion = true
		return "operator", nil
	case '_':
		if s, ok := extendedOperatorNames[p.next()]; ok {
			return s, nil
		}
		return "", errUnsupported
	}
	if s, ok := operatorNames[c]; ok {
		return s, nil
	}
	return "", errMalformed
}

func (p *msvcParser) template() (string, error) {
	savedNames, savedTypes := p.names, p.types
	p.names, p.types = nil, nil
	defer func() {
		p.names, p.types = savedNames, savedTypes
	}()

	name, err := p.simpleName()
	if err != nil {
		return "", err
	}

	var args []string
	for p.peek() != '@' {
		if p.eof() {
			return "", errMalformed
		}
		arg, err := p.templateArg()
		if err != nil {
			return "", err
		}
		if arg != "" {
			args = append(args, arg)
		}
	}
	p.pos++

	joined := strings.Join(args, ",")
	if strings.HasSuffix(joined, ">") {
		joined += " "
	}
	return name + "<" + joined + ">", nil
}

func (p *msvcParser) templateArg() (string, error) {
	switch {
	case p.consume("$0"):
		n, err := p.number()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case p.consume("$$V"), p.consume("$$Z"):
		return "", nil
	}

	c := p.peek()
	if c >= '0' && c <= '9' {
		p.pos++
		idx := int(c - '0')
		if idx >= len(p.types) {
			return "", errMalformed
		}
		return p.types[idx], nil
	}

	start := p.pos
	t, err := p.typ()
	if err != nil {
		return "", err
	}
	if p.pos-start > 1 {
		p.rememberType(t)
	}
	return t, nil
}

// number decodes the compressed integer encoding: '0'..'9' are 1..10, otherwise
// hex digits 'A'..'P' terminated by '@'. A leading '?' negates.
func (p *msvcParser) number() (int64, error) {
	neg := p.consume("?")
	c := p.peek()
	if c >= '0' && c <= '9' {
		p.pos++
		v := int64(c-'0') + 1
		if neg {
			v = -v
		}
		return v, nil
	}

	var v int64
	for {
		c := p.next()
		switch {
		case c == '@':
			if neg {
				v = -v
			}
			return v, nil
		case c >= 'A' && c <= 'P':
			v = v*16 + int64(c-'A')
		default:
			return 0, errMalformed
		}
	}
}

var primitiveTypes = map[byte]string{
	'C': "signed char",
	'D': "char",
	'E': "unsigned char",
	'F': "short",
	'G': "unsigned short",
	'H': "int",
	'I': "unsigned int",
	'J': "long",
	'K': "unsigned long",
	'M': "float",
	'N': "double",
	'O': "long double",
	'X': "void",
}

var extendedPrimitiveTypes = map[byte]string{
	'N': "bool",
	'J': "__int64",
	'K': "unsigned __int64",
	'W': "wchar_t",
	'S': "char16_t",
	'U': "char32_t",
	'Q': "char8_t",
}

var tagKeywords = map[byte]string{
	'T': "union",
	'U': "struct",
	'V': "class",
}

func (p *msvcParser) typ() (string, error) {
	if p.eof() {
		return "", errMalformed
	}
	c := p.next()
	if s, ok := primitiveTypes[c]; ok {
		return s, nil
	}

	switch c {
	case '_':
		if s, ok := extendedPrimitiveTypes[p.next()]; ok {
			return s, nil
		}
		return "", errUnsupported
	case 'T', 'U', 'V':
		ni, err := p.qualifiedName(false)
		if err != nil {
			return "", err
		}
		return tagKeywords[c] + " " + ni.String(), nil
	case 'W':
		p.next()
		ni, err := p.qualifiedName(false)
		if err != nil {
			return "", err
		}
		return "enum " + ni.String(), nil
	case 'P':
		return p.pointer("*", "")
	case 'Q':
		return p.pointer("*", " const")
	case 'R':
		return p.pointer("*", " volatile")
	case 'S':
		return p.pointer("*", " const volatile")
	case 'A':
		return p.pointer("&", "")
	case 'B':
		return p.pointer("&", " volatile")
	case '$':
		switch {
		case p.consume("$Q"):
			return p.pointer("&&", "")
		case p.consume("$R"):
			return p.pointer("&&", " volatile")
		case p.consume("$T"):
			return "std::nullptr_t", nil
		case p.consume("$C"):
			cv, err := p.cvQualifier()
			if err != nil {
				return "", err
			}
			t, err := p.typ()
			if err != nil {
				return "", err
			}
			return t + cv, nil
		}
	}
	return "", errUnsupported
}

func (p *msvcParser) pointerExtensions() {
	for {
		switch p.peek() {
		case 'E', 'F', 'I':
			p.pos++
		default:
			return
		}
	}
}

func (p *msvcParser) cvQualifier() (string, error) {
	switch p.next() {
	case 'A':
		return "", nil
	case 'B':
		return " const", nil
	case 'C':
		return " volatile", nil
	case 'D':
		return " const volatile", nil
	}
	return "", errMalformed
}

func (p *msvcParser) pointer(sym, ptrCV string) (string, error) {
	if p.consume("6") {
		ret, params, err := p.functionType()
		if err != nil {
			return "", err
		}
		return ret + " (" + sym + ptrCV + ")(" + params + ")", nil
	}

	p.pointerExtensions()
	cv, err := p.cvQualifier()
	if err != nil {
		return "", err
	}
	pointee, err := p.typ()
	if err != nil {
		return "", err
	}
	return pointee + cv + " " + sym + ptrCV, nil
}

func (p *msvcParser) callingConvention() error {
	switch p.next() {
	case 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'S', 'W':
		return nil
	}
	return errMalformed
}

// functionType reads calling convention, return type, parameters and the
// throw specification. An empty return type means none was encoded.
func (p *msvcParser) functionType() (ret string, params string, err error) {
	if err := p.callingConvention(); err != nil {
		return "", "", err
	}

	if !p.consume("@") {
		var cv string
		switch {
		case p.consume("?A"):
		case p.consume("?B"):
			cv = " const"
		}
		ret, err = p.typ()
		if err != nil {
			return "", "", err
		}
		ret += cv
	}

	params, err = p.parameters()
	if err != nil {
		return "", "", err
	}

	if !p.consume("_E") && !p.consume("Z") {
		return "", "", errMalformed
	}
	return ret, params, nil
}

func (p *msvcParser) parameters() (string, error) {
	if p.consume("X") {
		return "void", nil
	}

	var params []string
	for {
		if p.eof() {
			return "", errMalformed
		}
		switch c := p.peek(); {
		case c == '@':
			p.pos++
			return strings.Join(params, ","), nil
		case c == 'Z':
			p.pos++
			return strings.Join(append(params, "..."), ","), nil
		case c >= '0' && c <= '9':
			p.pos++
			idx := int(c - '0')
			if idx >= len(p.types) {
				return "", errMalformed
			}
			params = append(params, p.types[idx])
			continue
		}

		start := p.pos
		t, err := p.typ()
		if err != nil {
			return "", err
		}
		if p.pos-start > 1 {
			p.rememberType(t)
		}
		params = append(params, t)
	}
}

func (p *msvcParser) function(ni nameInfo) (string, error) {
	code := int(p.next() - 'A')

	var access string
	var member, static, virtual bool
	if code < 24 {
		member = true
		access = [...]string{"private", "protected", "public"}[code/8]
		switch (code % 8) / 2 {
		case 1:
			static = true
		case 2:
			virtual = true
		case 3:
			virtual = true
			if _, err := p.number(); err != nil {
				return "", err
			}
		}
	}

	var thisCV, ref string
	if member && !static {
		p.pointerExtensions()
		switch {
		case p.consume("G"):
			ref = "&"
		case p.consume("H"):
			ref = "&&"
		}
		cv, err := p.cvQualifier()
		if err != nil {
			return "", err
		}
		thisCV = strings.TrimPrefix(cv, " ")
	}

	ret, params, err := p.functionType()
	if err != nil {
		return "", err
	}

	if ni.conversion {
		ni.parts[len(ni.parts)-1] = "operator " + ret
		ret = ""
	}

	var b strings.Builder
	if access != "" {
		b.WriteString(access)
		b.WriteString(": ")
	}
	if static {
		b.WriteString("static ")
	}
	if virtual {
		b.WriteString("virtual ")
	}
	if ret != "" {
		b.WriteString(ret)
		b.WriteString(" ")
	}
	b.WriteString(ni.String())
	b.WriteString("(")
	b.WriteString(params)
	b.WriteString(")")
	b.WriteString(thisCV)
	b.WriteString(ref)
	return b.String(), nil
}

func (p *msvcParser) variable(ni nameInfo) (string, error) {
	var access string
	var static bool
	switch p.next() {
	case '0':
		access, static = "private", true
	case '1':
		access, static = "protected", true
	case '2':
		access, static = "public", true
	}

	t, err := p.typ()
	if err != nil {
		return "", err
	}
	p.pointerExtensions()
	cv, err := p.cvQualifier()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if access != "" {
		b.WriteString(access)
		b.WriteString(": ")
	}
	if static {
		b.WriteString("static ")
	}
	b.WriteString(t)
	b.WriteString(cv)
	b.WriteString(" ")
	b.WriteString(ni.String())
	return b.String(), nil
}

// table handles virtual function and virtual base tables ("??_7Foo@@6B@").
func (p *msvcParser) table(ni nameInfo) (string, error) {
	p.pos++
	cv, err := p.cvQualifier()
	if err != nil {
		return "", err
	}

	out := strings.TrimPrefix(cv+" ", " ") + ni.String()
	if p.consume("@") {
		return out, nil
	}

	for !p.consume("@") {
		if p.eof() {
			return "", errMalformed
		}
		scope, err := p.qualifiedName(false)
		if err != nil {
			return "", err
		}
		out += "{for `" + scope.String() + "'}"
	}
	return out, nil
}
