package dataset

import (
	"fmt"
	"regexp"
	"strings"
)

// The guard treats generated SQL as untrusted input: the text comes from a
// language model, so nothing beyond a read-only SELECT against the bound
// table is allowed through. This is a security boundary, not query hygiene.

// forbiddenKeywords are statement-level keywords that can mutate state, touch
// the filesystem or network, or escape the bound dataset.
var forbiddenKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true,
	"create": true, "alter": true, "truncate": true, "merge": true,
	"attach": true, "detach": true, "copy": true, "export": true,
	"import": true, "install": true, "load": true, "pragma": true,
	"set": true, "reset": true, "call": true, "vacuum": true,
	"checkpoint": true, "grant": true, "revoke": true, "use": true,
}

// forbiddenFunctions are table functions that read outside the bound table.
var forbiddenFunctions = map[string]bool{
	"read_csv": true, "read_csv_auto": true, "read_parquet": true,
	"read_json": true, "read_json_auto": true, "read_text": true,
	"read_blob": true, "glob": true, "sniff_csv": true,
	"duckdb_tables": true, "duckdb_settings": true, "getenv": true,
}

var (
	identRe    = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	fromRe     = regexp.MustCompile(`(?i)\b(?:from|join)\s+("?[a-zA-Z_][a-zA-Z0-9_]*"?)`)
	funcCallRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
)

// ValidateQuery checks that sql is a single read-only SELECT against the
// handle's table and nothing else. A violation is reported as a syntax-kind
// ExecutionError so it flows through the normal retry path.
func ValidateQuery(h *Handle, sql string) *ExecutionError {
	stripped := stripLiteralsAndComments(sql)
	stmt := strings.TrimSpace(stripped)
	stmt = strings.TrimSuffix(stmt, ";")

	if stmt == "" {
		return &ExecutionError{Kind: ErrSyntax, Detail: "empty query"}
	}
	if strings.Contains(stmt, ";") {
		return &ExecutionError{Kind: ErrSyntax, Detail: "multiple statements are not allowed"}
	}

	tokens := identRe.FindAllString(strings.ToLower(stmt), -1)
	if len(tokens) == 0 {
		return &ExecutionError{Kind: ErrSyntax, Detail: "query has no recognizable statement"}
	}
	if tokens[0] != "select" && tokens[0] != "with" {
		return &ExecutionError{Kind: ErrSyntax, Detail: fmt.Sprintf("only SELECT statements are allowed, got %q", tokens[0])}
	}

	for _, tok := range tokens {
		if forbiddenKeywords[tok] {
			return &ExecutionError{Kind: ErrSyntax, Detail: fmt.Sprintf("statement keyword %q is not allowed", tok)}
		}
	}

	for _, m := range funcCallRe.FindAllStringSubmatch(strings.ToLower(stmt), -1) {
		if forbiddenFunctions[m[1]] {
			return &ExecutionError{Kind: ErrSyntax, Detail: fmt.Sprintf("function %q is not allowed", m[1])}
		}
	}

	// Every FROM/JOIN target must be the bound table or a CTE defined inside
	// the query itself. Cross-dataset access never passes.
	ctes := collectCTENames(stmt)
	for _, m := range fromRe.FindAllStringSubmatch(stmt, -1) {
		name := strings.ToLower(strings.Trim(m[1], `"`))
		if strings.EqualFold(name, h.TableName) || ctes[name] {
			continue
		}
		return &ExecutionError{
			Kind:   ErrSyntax,
			Detail: fmt.Sprintf("query references table %q outside the bound dataset %q", name, h.TableName),
		}
	}

	return nil
}

// collectCTENames extracts names introduced by WITH ... AS so that CTE
// references are not mistaken for foreign tables.
var cteRe = regexp.MustCompile(`(?i)(?:\bwith\b|,)\s*("?[a-zA-Z_][a-zA-Z0-9_]*"?)\s+as\s*\(`)

func collectCTENames(stmt string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range cteRe.FindAllStringSubmatch(stmt, -1) {
		names[strings.ToLower(strings.Trim(m[1], `"`))] = true
	}
	return names
}

// stripLiteralsAndComments blanks out string literals and SQL comments so the
// keyword and table checks cannot be confused by quoted content.
func stripLiteralsAndComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	inSingle := false
	inLineComment := false
	inBlockComment := false

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
				b.WriteRune(c)
			}
		case inBlockComment:
			if c == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				inBlockComment = false
				i++
			}
		case inSingle:
			if c == '\'' {
				// '' escapes a quote inside a literal
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++
					continue
				}
				inSingle = false
			}
		case c == '\'':
			inSingle = true
			b.WriteRune(' ')
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inLineComment = true
			i++
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			inBlockComment = true
			i++
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
