package a

import "regexp"

type query struct{}

type jq struct{}

// gojq stands in for the gojq package; the analyzer matches by name.
var gojq jq

func (jq) Parse(src string) (*query, error) { return &query{}, nil }

func badRegexp(codes []string) {
	for _, code := range codes {
		re := regexp.MustCompile(`^HERA\.`) // want "regexp.MustCompile called inside loop"
		_ = re.MatchString(code)
	}
}

func badRegexpCompile(codes []string) {
	for _, code := range codes {
		re, _ := regexp.Compile(`^HERA\.`) // want "regexp.Compile called inside loop"
		_ = re.MatchString(code)
	}
}

func badJQ(rules []string) {
	for _, rule := range rules {
		q, _ := gojq.Parse(rule) // want "gojq.Parse called inside loop"
		_ = q
	}
}

var smartCode = regexp.MustCompile(`^HERA\.`)

func good(codes []string) {
	for _, code := range codes {
		_ = smartCode.MatchString(code)
	}
}
