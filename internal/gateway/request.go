package gateway

import (
	"strconv"
	"strings"

	"hemlock/internal/wire"
)

// GatewayPath is the fixed path of the JSON-RPC gateway endpoint.
const GatewayPath = "/osrf-gateway-v1"

// BuildURL constructs the GET URL for one gateway call. Arguments are
// serialized as JSON literals and appended as param= components in input
// order. An empty base URL fails closed: the result is the empty string
// and callers must check before dispatch.
func BuildURL(base, service, method string, args []any) string {
	if strings.TrimSpace(base) == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "/"))
	sb.WriteString(GatewayPath)
	sb.WriteString("?service=")
	sb.WriteString(escapeQuery(service))
	sb.WriteString("&method=")
	sb.WriteString(escapeQuery(method))
	for _, arg := range args {
		sb.WriteString("&param=")
		sb.WriteString(escapeQuery(ParamLiteral(arg)))
	}
	return sb.String()
}

// ParamLiteral renders one argument as a JSON literal: strings are
// quoted, numbers rendered in decimal, wire objects as canonical JSON.
// Unsupported types serialize to an empty string rather than failing; a
// caller that needs round-trip fidelity must not pass them.
func ParamLiteral(arg any) string {
	switch t := arg.(type) {
	case string:
		return string(wire.String(t).JSON())
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	case *wire.Object:
		return string(t.JSON())
	case wire.Value:
		return string(t.JSON())
	}
	return ""
}

// Bytes that ride in a query value unescaped. RFC 3986 sub-delims plus
// the JSON punctuation the gateway expects to see literally (quotes,
// braces, colons), matching what the servers have always accepted.
const querySafe = "-._~!$'()*,;:@/?=\"{}[]"

func escapeQuery(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case strings.IndexByte(querySafe, c) >= 0:
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&0x0f])
		}
	}
	return sb.String()
}

const upperhex = "0123456789ABCDEF"
