package usecase

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
)

// ParseMode selects how a responder message is decoded. The strategies are
// never chained: a structured parse failure is reported, not retried as
// plain text.
type ParseMode int

const (
	ModeStructured ParseMode = iota
	ModePlainText
)

func (m ParseMode) String() string {
	if m == ModePlainText {
		return "plain_text"
	}
	return "structured"
}

// ParseModeFromString maps "plain_text"/"plain" to ModePlainText; anything
// else is structured.
func ParseModeFromString(s string) ParseMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain_text", "plain", "text":
		return ModePlainText
	default:
		return ModeStructured
	}
}

var firstInteger = regexp.MustCompile(`\b\d+\b`)

type exercisePayload struct {
	Exercise *string `json:"exercise"`
	Answer   *string `json:"answer"`
}

// ParseExercise decodes {"exercise": "...", "answer": "<int>"}. A
// surrounding markdown code fence is stripped first.
func ParseExercise(content string) (model.ExerciseResult, error) {
	fail := func(err error) (model.ExerciseResult, error) {
		return model.ExerciseResult{}, &domain.ParseError{Op: "parse_exercise", Raw: content, Err: err}
	}

	body := stripFence(content)
	if body == "" {
		return fail(errors.New("empty content"))
	}
	var p exercisePayload
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return fail(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fail(errors.New("trailing data after object"))
	}
	if p.Exercise == nil {
		return fail(errors.New("missing exercise"))
	}
	if p.Answer == nil {
		return fail(errors.New("missing answer"))
	}
	n, err := strconv.Atoi(strings.TrimSpace(*p.Answer))
	if err != nil {
		return fail(err)
	}
	return model.ExerciseResult{Exercise: *p.Exercise, Answer: n}, nil
}

// ExtractFirstInteger returns the first standalone run of digits in text
// that fits in an int.
func ExtractFirstInteger(text string) (int, bool) {
	for _, m := range firstInteger.FindAllString(text, -1) {
		if n, err := strconv.Atoi(m); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ParseContent applies mode to a responder message. In plain-text mode the
// whole message is the exercise and its first integer the answer.
func ParseContent(content string, mode ParseMode) (model.ExerciseResult, error) {
	if mode == ModeStructured {
		return ParseExercise(content)
	}
	n, ok := ExtractFirstInteger(content)
	if !ok {
		return model.ExerciseResult{}, &domain.ParseError{Op: "parse_plain_text", Raw: content, Err: errors.New("no integer found")}
	}
	return model.ExerciseResult{Exercise: strings.TrimSpace(content), Answer: n}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (```json) and the closing fence.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
