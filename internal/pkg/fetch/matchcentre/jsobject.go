package matchcentre

import "regexp"

// The match-centre page embeds its data as a JavaScript object literal, not
// JSON: keys are unquoted, strings use single quotes, trailing commas appear.
// These rewrites make the blob json.Unmarshal-able. A full JS parser is
// overkill for the shapes the source actually emits.

var (
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][\w$]*)\s*:`)
	singleQuoteRe   = regexp.MustCompile(`(\\)?'`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// jsObjectToJSON converts a JavaScript object literal into a JSON string.
func jsObjectToJSON(js string) string {
	out := bareKeyRe.ReplaceAllString(js, `$1"$2":`)
	// Swap unescaped single quotes for double; keep \' as a literal quote.
	out = singleQuoteRe.ReplaceAllStringFunc(out, func(m string) string {
		if len(m) == 2 { // escaped: \'
			return "'"
		}
		return `"`
	})
	out = trailingCommaRe.ReplaceAllString(out, `$1`)
	return out
}
