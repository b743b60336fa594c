package trends

// keywordBattery covers every normalizer convention: plain string, comma,
// pipe, semicolon, bracketed list and a literal sequence.
var keywordBattery = []KeywordParam{
	KeywordText("artificial intelligence"),
	KeywordText("AI, machine learning, data science"),
	KeywordText("AI|machine learning|data science"),
	KeywordText("AI;machine learning;data science"),
	KeywordText(`["AI", "machine learning", "data science"]`),
	KeywordList("AI", "machine learning", "data science"),
}

// DiagnoseKeywords runs the normalizer over the fixed battery.
func (g *Gateway) DiagnoseKeywords() []KeywordDiagnostic {
	out := make([]KeywordDiagnostic, 0, len(keywordBattery))
	for _, p := range keywordBattery {
		var input any = p.String()
		if p.IsList() {
			input = append([]string(nil), p.values...)
		}
		out = append(out, KeywordDiagnostic{
			Input:  input,
			Output: normalizeKeywords(p, g.defaultKeyword),
		})
	}
	return out
}
