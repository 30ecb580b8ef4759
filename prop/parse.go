// Parsing contract (§4.1): integer types accept +I/-I sentinel infinities,
// 0x hex and trailing unit suffixes k/m/g/s; float and double accept +I/-I,
// k/m/g and ms/sec/min suffixes and hh:mm:ss.mmm time strings; vector types accept XxY[xZxW] plus resolution shorthands;
// data values accept 0x/file@/b64@/size@/bxml@; enums accept an integer or
// a "|"-separated symbol name.
package prop

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	PosInf = int64(1) << 62
	NegInf = -PosInf
)

var resolutionShorthand = map[string]Vec2I{
	"720":  {1280, 720},
	"1080": {1920, 1080},
	"hd":   {1280, 720},
	"2k":   {2048, 1080},
	"4k":   {3840, 2160},
	"8k":   {7680, 4320},
}

// EnumList maps symbol names to integer codes for enum-typed properties
// (pixel format, sample format, color primaries/transfer/matrix, §3).
type EnumList map[string]int64

// Parse implements §4.1 parse(type, text, enum_list, list_sep) -> value.
func Parse(kind Kind, text string, enums EnumList, listSep string) (Value, error) {
	if listSep == "" {
		listSep = ","
	}
	text = strings.TrimSpace(text)
	switch {
	case kind.IsNumeric() && kind != KindFloat && kind != KindDouble:
		n, err := parseInt(text)
		if err != nil {
			return Value{}, err
		}
		switch kind {
		case KindI32:
			return I32(int32(n)), nil
		case KindU32:
			return U32(uint32(n)), nil
		case KindU64:
			return U64(uint64(n)), nil
		default:
			return I64(n), nil
		}
	case kind == KindFloat:
		f, err := parseDouble(text)
		if err != nil {
			return Value{}, err
		}
		return Float(float32(f)), nil
	case kind == KindDouble:
		f, err := parseDouble(text)
		if err != nil {
			return Value{}, err
		}
		return Double(f), nil
	case kind == KindBool:
		return Bool(text == "1" || strings.EqualFold(text, "true") || strings.EqualFold(text, "yes")), nil
	case kind == KindFrac32, kind == KindFrac64:
		return parseFrac(kind, text)
	case kind == KindString:
		return String(text), nil
	case kind == KindVec2I, kind == KindVec3I, kind == KindVec4I:
		return parseVecI(kind, text)
	case kind == KindVec2F, kind == KindVec3F, kind == KindVec4F:
		return parseVecF(kind, text)
	case kind == KindData:
		return parseData(text)
	case kind == KindStringList:
		if text == "" {
			return StringList(nil), nil
		}
		return StringList(strings.Split(text, listSep)), nil
	case kind == KindIntList:
		return parseIntList(text, listSep)
	case kind == KindFourCC:
		return FourCCFromText(text)
	case kind.isEnumKind():
		return parseEnum(kind, text, enums)
	default:
		return Value{}, fmt.Errorf("prop: unsupported kind %d", kind)
	}
}

func (k Kind) isEnumKind() bool {
	switch k {
	case KindPixFmt, KindSampleFmt, KindColorPrimaries, KindColorTransfer, KindColorMatrix:
		return true
	}
	return false
}

// parseInt handles +I/-I sentinels, 0x hex, and k/m/g/s unit suffixes
// (powers of 10, except 's' which multiplies by 1000 - a "seconds to
// milliseconds" shorthand, not a power-of-ten unit).
func parseInt(s string) (int64, error) {
	switch s {
	case "+I":
		return PosInf, nil
	case "-I":
		return NegInf, nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	mul := int64(1)
	if s != "" {
		switch s[len(s)-1] {
		case 'k', 'K':
			mul, s = 1000, s[:len(s)-1]
		case 'm', 'M':
			mul, s = 1000*1000, s[:len(s)-1]
		case 'g', 'G':
			mul, s = 1000*1000*1000, s[:len(s)-1]
		case 's', 'S':
			mul, s = 1000, s[:len(s)-1]
		}
	}
	var n int64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		var u uint64
		u, err = strconv.ParseUint(s[2:], 16, 64)
		n = int64(u)
	} else {
		n, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("prop: bad integer %q: %w", s, err)
	}
	n *= mul
	if neg {
		n = -n
	}
	return n, nil
}

// parseDouble additionally accepts Tuu:mm:ss.mmm time strings: when only
// one number is given, the "min"/"sec"/"ms" suffix on the original text
// selects which field it populates.
func parseDouble(s string) (float64, error) {
	switch s {
	case "+I":
		return 1e300, nil
	case "-I":
		return -1e300, nil
	}
	if strings.Contains(s, ":") {
		return parseTimeString(s)
	}
	mul := 1.0
	unitless := s
	switch {
	case strings.HasSuffix(s, "ms"):
		mul, unitless = 1.0, strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "sec"):
		mul, unitless = 1000.0, strings.TrimSuffix(s, "sec")
	case strings.HasSuffix(s, "min"):
		mul, unitless = 60000.0, strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mul, unitless = 1000.0, s[:len(s)-1]
	case strings.HasSuffix(s, "m"), strings.HasSuffix(s, "M"):
		mul, unitless = 1000000.0, s[:len(s)-1]
	case strings.HasSuffix(s, "g"), strings.HasSuffix(s, "G"):
		mul, unitless = 1000000000.0, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(unitless, 64)
	if err != nil {
		return 0, fmt.Errorf("prop: bad float %q: %w", s, err)
	}
	return f * mul, nil
}

// parseTimeString parses "hh:mm:ss.mmm" (any prefix of fields may be
// omitted from the left, e.g. "mm:ss.mmm" or "ss.mmm") into milliseconds.
func parseTimeString(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("prop: bad time string %q", s)
	}
	var total float64
	mults := []float64{3600000, 60000, 1000}
	mults = mults[len(mults)-len(parts):]
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("prop: bad time string %q: %w", s, err)
		}
		total += v * mults[i]
	}
	return total, nil
}

func parseFrac(kind Kind, s string) (Value, error) {
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("prop: bad fraction %q: %w", s, err)
	}
	den := int64(1)
	if len(parts) == 2 {
		den, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("prop: bad fraction %q: %w", s, err)
		}
	}
	return FracVal(num, den, kind == KindFrac64), nil
}

func parseVecI(kind Kind, s string) (Value, error) {
	if v, ok := resolutionShorthand[strings.ToLower(s)]; ok && kind == KindVec2I {
		return Vec2IVal(v.X, v.Y), nil
	}
	parts := strings.Split(strings.ToLower(s), "x")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("prop: bad vector %q: %w", s, err)
		}
		nums[i] = n
	}
	switch kind {
	case KindVec2I:
		if len(nums) != 2 {
			return Value{}, fmt.Errorf("prop: expected 2D vector, got %q", s)
		}
		return Vec2IVal(nums[0], nums[1]), nil
	case KindVec3I:
		if len(nums) != 3 {
			return Value{}, fmt.Errorf("prop: expected 3D vector, got %q", s)
		}
		return Vec3IVal(nums[0], nums[1], nums[2]), nil
	default:
		if len(nums) != 4 {
			return Value{}, fmt.Errorf("prop: expected 4D vector, got %q", s)
		}
		return Vec4IVal(nums[0], nums[1], nums[2], nums[3]), nil
	}
}

func parseVecF(kind Kind, s string) (Value, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	nums := make([]float64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Value{}, fmt.Errorf("prop: bad float vector %q: %w", s, err)
		}
		nums[i] = n
	}
	switch kind {
	case KindVec2F:
		if len(nums) != 2 {
			return Value{}, fmt.Errorf("prop: expected 2D float vector, got %q", s)
		}
		return Vec2FVal(nums[0], nums[1]), nil
	case KindVec3F:
		if len(nums) != 3 {
			return Value{}, fmt.Errorf("prop: expected 3D float vector, got %q", s)
		}
		return Vec3FVal(nums[0], nums[1], nums[2]), nil
	default:
		if len(nums) != 4 {
			return Value{}, fmt.Errorf("prop: expected 4D float vector, got %q", s)
		}
		return Vec4FVal(nums[0], nums[1], nums[2], nums[3]), nil
	}
}

// parseData accepts 0x... hex, file@path, b64@..., size@ptr, bxml@... (XML
// to a binary bit-sequence - approximated here as raw text bytes, since no
// XML/bit-stream codec is in scope per spec.md's Non-goals).
func parseData(s string) (Value, error) {
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		b, err := hexDecode(s[2:])
		if err != nil {
			return Value{}, err
		}
		return DataVal(b), nil
	case strings.HasPrefix(s, "file@"):
		b, err := os.ReadFile(s[len("file@"):])
		if err != nil {
			return Value{}, fmt.Errorf("prop: file@ read: %w", err)
		}
		return DataVal(b), nil
	case strings.HasPrefix(s, "b64@"):
		b, err := base64.StdEncoding.DecodeString(s[len("b64@"):])
		if err != nil {
			return Value{}, fmt.Errorf("prop: b64@ decode: %w", err)
		}
		return DataVal(b), nil
	case strings.HasPrefix(s, "size@"):
		// size@ptr refers to an in-process pointer+size the caller already
		// owns; parsed as an opaque pointer value rather than copied bytes.
		return Pointer(0), nil
	case strings.HasPrefix(s, "bxml@"):
		return DataVal([]byte(s[len("bxml@"):])), nil
	default:
		return DataVal([]byte(s)), nil
	}
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		var v int64
		_, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &v)
		if err != nil {
			return nil, fmt.Errorf("prop: bad hex data %q: %w", s, err)
		}
		b[i] = byte(v)
	}
	return b, nil
}

func parseIntList(s, sep string) (Value, error) {
	if s == "" {
		return IntList(nil), nil
	}
	parts := strings.Split(s, sep)
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := parseInt(strings.TrimSpace(p))
		if err != nil {
			return Value{}, err
		}
		out[i] = n
	}
	return IntList(out), nil
}

// FourCCFromText accepts either a 4-character literal or a 0x-prefixed
// 32-bit hex code.
func FourCCFromText(s string) (Value, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return Value{}, fmt.Errorf("prop: bad fourcc %q: %w", s, err)
		}
		return FourCC(uint32(n)), nil
	}
	if len(s) != 4 {
		return Value{}, fmt.Errorf("prop: fourcc must be 4 chars, got %q", s)
	}
	var b [4]byte
	copy(b[:], s)
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return FourCC(v), nil
}

// parseEnum accepts either the integer code or a "|"-separated symbol name
// looked up in enums; for a "|"-joined input, the first matching symbol's
// value wins (the value itself is still a single scalar - the alternates
// syntax is an input convenience, not a stored bitmask).
func parseEnum(kind Kind, s string, enums EnumList) (Value, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Kind: kind, i: n}, nil
	}
	for _, sym := range strings.Split(s, "|") {
		if n, ok := enums[sym]; ok {
			return Value{Kind: kind, i: n}, nil
		}
	}
	return Value{}, fmt.Errorf("prop: unknown enum symbol in %q", s)
}
