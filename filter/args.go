package filter

import (
	"strconv"
	"strings"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/nlog"
	"github.com/gofilt/gofilt/prop"
)

// ParseArgString implements §4.4's argument-string grammar: tokens
// separated by sep.Arg; name=value pairs via sep.Value; list elements via
// sep.List (left to prop.Parse, not split here); a fragment-introduced
// per-pid property assignment via sep.Frag; a negated boolean flag via
// sep.Negate; a doubled separator escapes to a literal character; and a
// "scheme://host[:port]" run is never split on its own colons. $GINC and
// the macro tokens are expanded before the value is stored.
//
// Returns (filter args, per-pid property assignments).
func ParseArgString(s string, sep cmn.Separators, resolver MacroResolver) (map[string]prop.Value, map[string]prop.Value, error) {
	args := make(map[string]prop.Value)
	pidProps := make(map[string]prop.Value)
	if s == "" {
		return args, pidProps, nil
	}
	for _, tok := range splitArgs(s, sep) {
		if tok == "" {
			continue
		}
		dest := args
		if tok[0] == sep.Frag {
			dest = pidProps
			tok = tok[1:]
		}
		name, raw, hasValue := splitOnce(tok, sep.Value)
		negate := false
		if len(name) > 0 && name[0] == sep.Negate {
			negate = true
			name = name[1:]
		}
		if !hasValue {
			dest[name] = prop.Bool(!negate)
			continue
		}
		raw = expandMacros(raw, resolver)
		v, err := prop.Parse(prop.KindString, raw, nil, string(sep.List))
		if err != nil {
			return nil, nil, err
		}
		dest[name] = v
	}
	return args, pidProps, nil
}

// splitArgs tokenizes on sep.Arg, treating a doubled separator as an
// escape (literal char, no split) and skipping over "scheme://host[:port]"
// runs so the URL's own separator-colliding characters never split it.
func splitArgs(s string, sep cmn.Separators) []string {
	var tokens []string
	var cur strings.Builder
	n := len(s)
	i := 0
	for i < n {
		if isURLStart(s, i) {
			j := i + 3
			for j < n && s[j] != '/' && s[j] != sep.Arg {
				j++
			}
			if j < n && s[j] == sep.Arg {
				k := j + 1
				for k < n && s[k] >= '0' && s[k] <= '9' {
					k++
				}
				if k > j+1 {
					j = k
				}
			}
			cur.WriteString(s[i:j])
			i = j
			continue
		}
		c := s[i]
		if c == sep.Arg {
			if i+1 < n && s[i+1] == sep.Arg {
				cur.WriteByte(sep.Arg)
				i += 2
				continue
			}
			tokens = append(tokens, cur.String())
			cur.Reset()
			i++
			continue
		}
		cur.WriteByte(c)
		i++
	}
	tokens = append(tokens, cur.String())
	return tokens
}

func isURLStart(s string, i int) bool {
	return i+2 < len(s) && s[i] == ':' && s[i+1] == '/' && s[i+2] == '/'
}

func splitOnce(s string, sep byte) (name, value string, ok bool) {
	idx := strings.IndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

// CoerceArgTypes re-parses each arg's raw string value (ParseArgString
// always stores KindString, since it runs before a Register is known)
// against the Register's declared ArgDesc.Type. Args with no matching
// ArgDesc are left as-is (e.g. a plugin's undeclared passthrough option).
// An arg whose value does not parse as its declared type is logged and
// removed from args, so instantiation goes on without it.
func CoerceArgTypes(reg *Register, args map[string]prop.Value) error {
	for name, v := range args {
		desc, ok := reg.argDesc(name)
		if !ok || desc.Type == prop.KindString || v.Kind != prop.KindString {
			continue
		}
		coerced, err := prop.Parse(desc.Type, v.AsString(), nil, ",")
		if err != nil {
			nlog.Warningf("filter %s: skipping argument %q: %v", reg.Name, name, err)
			delete(args, name)
			continue
		}
		args[name] = coerced
	}
	return nil
}

// InheritArgs implements §4.4's argument inheritance: when the resolver
// splices an intermediate filter between src and dst, it concatenates
// src's source-applicable args with dst's destination-applicable args,
// stripping FID/SID/TAG/FS, any "gfloc"-prefixed (local-only) option, and
// dst's user pid-property assignments (which apply only to dst).
func InheritArgs(sep cmn.Separators, srcArgs, dstArgs string) string {
	var out []string
	for _, tok := range splitArgs(srcArgs, sep) {
		if tok != "" && !isStrippedKey(tok, sep) {
			out = append(out, tok)
		}
	}
	for _, tok := range splitArgs(dstArgs, sep) {
		if tok == "" || isStrippedKey(tok, sep) {
			continue
		}
		if tok[0] == sep.Frag {
			continue // dst's own pid-property assignments don't propagate
		}
		out = append(out, tok)
	}
	return strings.Join(out, string(sep.Arg))
}

func isStrippedKey(tok string, sep cmn.Separators) bool {
	name, _, _ := splitOnce(tok, sep.Value)
	switch strings.ToUpper(name) {
	case "FID", "SID", "TAG", "FS":
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "gfloc")
}

// expandMacros resolves $GINC(seed[,step]) and the $GSHARE/$GJS/$GLANG/
// $GUA tokens (§4.4) within a raw argument value.
func expandMacros(raw string, resolver MacroResolver) string {
	raw = expandGIncTokens(raw)
	if resolver == nil {
		return raw
	}
	raw = strings.ReplaceAll(raw, "$GSHARE", resolver.GShare())
	raw = strings.ReplaceAll(raw, "$GJS", resolver.GJS())
	raw = strings.ReplaceAll(raw, "$GLANG", resolver.GLang())
	raw = strings.ReplaceAll(raw, "$GUA", resolver.GUA())
	return raw
}

func expandGIncTokens(raw string) string {
	const prefix = "$GINC("
	for {
		start := strings.Index(raw, prefix)
		if start < 0 {
			return raw
		}
		end := strings.IndexByte(raw[start:], ')')
		if end < 0 {
			return raw
		}
		end += start
		inner := raw[start+len(prefix) : end]
		seed, stepStr, hasStep := splitOnce(inner, ',')
		var step int64
		if hasStep {
			step, _ = strconv.ParseInt(strings.TrimSpace(stepStr), 10, 64)
		}
		val := GInc(strings.TrimSpace(seed), step)
		raw = raw[:start] + strconv.FormatInt(val, 10) + raw[end+1:]
	}
}
